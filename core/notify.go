package core

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog"
)

// newBlockChanSize is the buffer of every new-block subscription.
const newBlockChanSize = 256

// NewBlockEvent is posted for every block that becomes part of the best chain.
type NewBlockEvent struct {
	Block *BlockView
}

// NotifyController fans accepted blocks out to named subscribers.
type NotifyController struct {
	log   zerolog.Logger
	feed  event.Feed
	scope event.SubscriptionScope
}

// NewNotifyController returns a running controller.
func NewNotifyController(log zerolog.Logger) *NotifyController {
	return &NotifyController{log: log.With().Str("component", "notify").Logger()}
}

// NewBlockSubscription delivers new-block events until unsubscribed or the
// controller stops. Err() is closed in both cases.
type NewBlockSubscription struct {
	name   string
	events chan NewBlockEvent
	sub    event.Subscription
}

// SubscribeNewBlock registers a named subscriber. Subscribing to a stopped
// controller yields a subscription whose Err() is already closed.
func (n *NotifyController) SubscribeNewBlock(name string) *NewBlockSubscription {
	ch := make(chan NewBlockEvent, newBlockChanSize)
	s := &NewBlockSubscription{name: name, events: ch}
	sub := n.feed.Subscribe(ch)
	if s.sub = n.scope.Track(sub); s.sub == nil {
		// scope already closed
		sub.Unsubscribe()
		s.sub = event.NewSubscription(func(<-chan struct{}) error { return nil })
		n.log.Warn().Str("subscriber", name).Msg("subscribed to a stopped notify controller")
		return s
	}
	n.log.Debug().Str("subscriber", name).Msg("new block subscriber registered")
	return s
}

// NotifyNewBlock posts b to every subscriber. It blocks while a subscriber's
// buffer is full.
func (n *NotifyController) NotifyNewBlock(b *BlockView) {
	sent := n.feed.Send(NewBlockEvent{Block: b})
	n.log.Trace().Str("hash", b.Hash().String()).Int("subscribers", sent).Msg("new block notified")
}

// Stop closes every subscription. Subsequent notifications reach nobody.
func (n *NotifyController) Stop() {
	n.scope.Close()
}

// Name returns the subscriber name.
func (s *NewBlockSubscription) Name() string { return s.name }

// Events returns the event channel. It is never closed; watch Err().
func (s *NewBlockSubscription) Events() <-chan NewBlockEvent { return s.events }

// Err is closed when the subscription ends.
func (s *NewBlockSubscription) Err() <-chan error { return s.sub.Err() }

// Unsubscribe ends the subscription.
func (s *NewBlockSubscription) Unsubscribe() { s.sub.Unsubscribe() }
