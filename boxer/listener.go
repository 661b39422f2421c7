package boxer

import (
	"github.com/rs/zerolog"

	"boxer/core"
)

// listenerName identifies the driver's subscription on the notify bus.
const listenerName = "boxer"

// listen writes one new-block frame per event until the subscription ends.
// A closed subscription leaves the command loop running without
// announcements.
func listen(sub *core.NewBlockSubscription, out *FrameWriter, metrics *Metrics, log zerolog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-sub.Events():
			hash := ev.Block.Hash()
			if err := out.WriteFrame(NewBlockFrame(hash)); err != nil {
				log.Error().Err(err).Str("hash", hash.String()).Msg("failed to write new block frame")
				continue
			}
			metrics.notified()
		case err := <-sub.Err():
			log.Error().Err(err).Str("subscriber", sub.Name()).Msg("new block channel closed, listener stopped")
			return
		}
	}
}
