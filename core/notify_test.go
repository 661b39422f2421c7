package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"boxer/core"
	"boxer/utils/unittest"
)

func testView(t *testing.T, number uint64) *core.BlockView {
	blk := core.GenesisBlock(unittest.Consensus())
	blk.Header.Number = number
	return unittest.View(t, blk)
}

func TestNotifyControllerFanOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := core.NewNotifyController(unittest.Logger())
	a := n.SubscribeNewBlock("a")
	b := n.SubscribeNewBlock("b")
	assert.Equal(t, "a", a.Name())

	view := testView(t, 1)
	n.NotifyNewBlock(view)
	for _, sub := range []*core.NewBlockSubscription{a, b} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, view.Hash(), ev.Block.Hash())
		case <-time.After(time.Second):
			require.Fail(t, "event not delivered", sub.Name())
		}
	}

	a.Unsubscribe()
	unittest.RequireClosedBefore(t, a.Err(), time.Second, "unsubscribe closes Err")

	n.NotifyNewBlock(testView(t, 2))
	select {
	case <-a.Events():
		require.Fail(t, "unsubscribed listener received an event")
	default:
	}
	<-b.Events()

	n.Stop()
	unittest.RequireClosedBefore(t, b.Err(), time.Second, "stop closes every subscription")
	n.Stop()
}

func TestNotifyControllerSubscribeAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := core.NewNotifyController(unittest.Logger())
	n.Stop()

	sub := n.SubscribeNewBlock("late")
	unittest.RequireClosedBefore(t, sub.Err(), time.Second, "late subscription starts closed")
	n.NotifyNewBlock(testView(t, 1))
	sub.Unsubscribe()
}
