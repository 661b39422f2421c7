package boxer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"boxer/core"
	"boxer/core/config"
	"boxer/validator"
)

// Stage failures. Each wraps the collaborator's own error.
var (
	ErrDecode             = errors.New("malformed hex payload")
	ErrSchema             = core.ErrSchema
	ErrHeaderVerification = errors.New("header verification failed")
	ErrProcessing         = errors.New("block processing failed")
)

// SharedState is the read side of the node the driver consumes.
type SharedState interface {
	Snapshot() *core.Snapshot
	Consensus() *config.Consensus
	SubscribeNewBlock(name string) *core.NewBlockSubscription
}

// ChainController is the block acceptance entry point.
type ChainController interface {
	ProcessBlock(block *core.BlockView) (bool, error)
}

// Outcome is what an accepted submission did to the chain.
type Outcome int

const (
	// OutcomeSide means the block was stored off the best chain.
	OutcomeSide Outcome = iota
	// OutcomeTip means the block moved the best chain.
	OutcomeTip
	// OutcomeKnown means the block was already stored before submission.
	OutcomeKnown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTip:
		return "tip"
	case OutcomeKnown:
		return "known"
	default:
		return "side"
	}
}

// SubmitBlock runs payload through decode, schema check, view construction,
// header verification and submission, stopping at the first failure. A block
// kept on a side branch or already stored is still a success.
func SubmitBlock(shared SharedState, chain ChainController, payload string) (*core.BlockView, Outcome, error) {
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return nil, OutcomeSide, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	reader, err := core.VerifyBlock(raw)
	if err != nil {
		return nil, OutcomeSide, err
	}
	block := reader.View()

	snapshot := shared.Snapshot()
	resolver := validator.NewHeaderResolver(block.Header(), snapshot)
	if err := validator.NewHeaderVerifier(snapshot, shared.Consensus()).Verify(resolver); err != nil {
		return block, OutcomeSide, fmt.Errorf("%w: %w", ErrHeaderVerification, err)
	}

	// stored headers never go away, so a hit here stays a hit for ProcessBlock
	known := snapshot.HeaderByHash(block.Hash()) != nil
	tipChanged, err := chain.ProcessBlock(block)
	if err != nil {
		return block, OutcomeSide, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	switch {
	case tipChanged:
		return block, OutcomeTip, nil
	case known:
		return block, OutcomeKnown, nil
	default:
		return block, OutcomeSide, nil
	}
}

// stageOf names the pipeline stage err came from.
func stageOf(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrHeaderVerification):
		return "header"
	case errors.Is(err, ErrProcessing):
		return "process"
	default:
		return "unknown"
	}
}
