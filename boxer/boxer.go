// Package boxer drives a node over a line protocol: blocks arrive as hex
// frames on the input, are verified and submitted to the chain, and every
// block that joins the best chain is announced on the output.
package boxer

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"boxer/core"
)

// Boxer owns the command loop and the notification listener.
type Boxer struct {
	shared  SharedState
	chain   ChainController
	out     *FrameWriter
	metrics *Metrics
	log     zerolog.Logger

	startOnce sync.Once
	sub       *core.NewBlockSubscription
	done      chan struct{}
}

// New returns a driver writing frames to out. metrics may be nil.
func New(shared SharedState, chain ChainController, out io.Writer, metrics *Metrics, log zerolog.Logger) *Boxer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Boxer{
		shared:  shared,
		chain:   chain,
		out:     NewFrameWriter(out),
		metrics: metrics,
		log:     log.With().Str("component", "boxer").Logger(),
	}
}

// AnnounceTip writes the tip frame for the current snapshot.
func (b *Boxer) AnnounceTip() error {
	tip := b.shared.Snapshot().TipHeader()
	if err := b.out.WriteFrame(TipFrame(tip.Number)); err != nil {
		return err
	}
	b.log.Info().Uint64("number", tip.Number).Msg("tip announced")
	return nil
}

// Start subscribes to new blocks, announces the tip and then starts the
// listener, so the tip frame always precedes every new block frame.
// Subsequent calls do nothing.
func (b *Boxer) Start() error {
	var err error
	b.startOnce.Do(func() {
		b.sub = b.shared.SubscribeNewBlock(listenerName)
		if err = b.AnnounceTip(); err != nil {
			b.sub.Unsubscribe()
			return
		}
		b.done = make(chan struct{})
		go listen(b.sub, b.out, b.metrics, b.log, b.done)
	})
	return err
}

// Serve runs the command loop until r is exhausted. A final line without a
// terminator is still handled. It returns nil on EOF and the read error
// otherwise.
func (b *Boxer) Serve(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			b.HandleLine(line)
		}
		if errors.Is(err, io.EOF) {
			b.log.Info().Msg("input closed")
			return nil
		}
		if err != nil {
			b.log.Error().Err(err).Msg("failed to read input")
			return err
		}
	}
}

// Run starts the driver and serves r.
func (b *Boxer) Run(r io.Reader) error {
	if err := b.Start(); err != nil {
		return err
	}
	return b.Serve(r)
}

// HandleLine processes one input line. Failures are logged and dropped.
func (b *Boxer) HandleLine(line string) {
	frame, err := ParseFrame(line)
	if err != nil {
		b.metrics.frameReceived("malformed")
		b.log.Warn().Err(err).Msg("frame dropped")
		return
	}

	switch frame.Method {
	case MethodNewBlock:
		b.metrics.frameReceived(frame.Method)
		b.submit(frame)
	default:
		b.metrics.frameReceived("unsupported")
		b.log.Warn().
			Err(ErrUnsupportedMethod).
			Str("id", frame.ID).
			Str("method", frame.Method).
			Msg("frame dropped")
	}
}

func (b *Boxer) submit(frame Frame) {
	block, outcome, err := SubmitBlock(b.shared, b.chain, frame.Payload)
	if err != nil {
		stage := stageOf(err)
		b.metrics.requestFailed(stage)
		b.log.Error().Err(err).Str("id", frame.ID).Str("stage", stage).Msg("block rejected")
		return
	}
	b.metrics.blockSubmitted(outcome)
	b.log.Info().
		Str("id", frame.ID).
		Uint64("number", block.Number()).
		Str("hash", block.Hash().String()).
		Stringer("outcome", outcome).
		Msg("block submitted")
}

// Close stops the listener and waits for it to exit.
func (b *Boxer) Close() error {
	if b.sub == nil {
		return nil
	}
	b.sub.Unsubscribe()
	if b.done != nil {
		<-b.done
	}
	return nil
}
