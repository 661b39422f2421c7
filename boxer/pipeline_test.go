package boxer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"boxer/boxer"
	"boxer/boxer/mock"
	"boxer/core"
	"boxer/utils/unittest"
	"boxer/validator"
)

func TestSubmitBlockRejectsBadHex(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	for _, payload := range []string{"abc", "zz00", "0x00", "00 11", "ä0"} {
		_, _, err := boxer.SubmitBlock(chain.Shared, controller, payload)
		assert.ErrorIs(t, err, boxer.ErrDecode, "payload %q", payload)
	}
	controller.AssertNotCalled(t, "ProcessBlock", testifymock.Anything)
}

func TestSubmitBlockRejectsSchema(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	for _, payload := range []string{"", "00", "ff", "8200", "82a0a0"} {
		_, _, err := boxer.SubmitBlock(chain.Shared, controller, payload)
		assert.ErrorIs(t, err, boxer.ErrSchema, "payload %q", payload)
	}
	controller.AssertNotCalled(t, "ProcessBlock", testifymock.Anything)
}

func TestSubmitBlockRejectsHeader(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	blk := chain.MineChain(t, chain.Miner(unittest.Address(t)), 1)[0]
	blk.Header.ParentHash[0] ^= 0xff

	_, _, err := boxer.SubmitBlock(chain.Shared, controller, unittest.Hex(t, blk))
	assert.ErrorIs(t, err, boxer.ErrHeaderVerification)
	assert.ErrorIs(t, err, validator.ErrUnknownParent)
	controller.AssertNotCalled(t, "ProcessBlock", testifymock.Anything)
}

func TestSubmitBlockSubmitsOnce(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	blk := chain.MineChain(t, chain.Miner(unittest.Address(t)), 1)[0]
	controller.
		On("ProcessBlock", testifymock.MatchedBy(func(v *core.BlockView) bool { return v.Hash() == blk.Hash() })).
		Return(true, nil).
		Once()

	view, outcome, err := boxer.SubmitBlock(chain.Shared, controller, unittest.Hex(t, blk))
	require.NoError(t, err)
	assert.Equal(t, boxer.OutcomeTip, outcome)
	assert.Equal(t, blk.Hash(), view.Hash())
	controller.AssertNumberOfCalls(t, "ProcessBlock", 1)
}

func TestSubmitBlockSideBranchIsSuccess(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	blk := chain.MineChain(t, chain.Miner(unittest.Address(t)), 1)[0]
	controller.On("ProcessBlock", testifymock.Anything).Return(false, nil).Once()

	_, outcome, err := boxer.SubmitBlock(chain.Shared, controller, unittest.Hex(t, blk))
	require.NoError(t, err)
	assert.Equal(t, boxer.OutcomeSide, outcome)
}

func TestSubmitBlockKnownBlock(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	blk := chain.Extend(t, chain.Miner(unittest.Address(t)), 1)[0]
	controller.On("ProcessBlock", testifymock.Anything).Return(false, nil).Once()

	_, outcome, err := boxer.SubmitBlock(chain.Shared, controller, unittest.Hex(t, blk))
	require.NoError(t, err)
	assert.Equal(t, boxer.OutcomeKnown, outcome)
	assert.Equal(t, "known", outcome.String())
	controller.AssertNumberOfCalls(t, "ProcessBlock", 1)
}

func TestSubmitBlockProcessingError(t *testing.T) {
	chain := unittest.NewChain(t, unittest.Consensus())
	controller := mock.NewChainController(t)

	blk := chain.MineChain(t, chain.Miner(unittest.Address(t)), 1)[0]
	cause := errors.New("disk on fire")
	controller.On("ProcessBlock", testifymock.Anything).Return(false, cause).Once()

	_, _, err := boxer.SubmitBlock(chain.Shared, controller, unittest.Hex(t, blk))
	assert.ErrorIs(t, err, boxer.ErrProcessing)
	assert.ErrorIs(t, err, cause)
}
