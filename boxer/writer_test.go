package boxer_test

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxer/boxer"
)

// recordingWriter keeps every Write call separately.
type recordingWriter struct {
	mu     sync.Mutex
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, append([]byte{}, p...))
	return len(p), nil
}

func TestFrameWriterOneWritePerFrame(t *testing.T) {
	rec := &recordingWriter{}
	fw := boxer.NewFrameWriter(rec)

	const writers, frames = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := strings.Repeat(fmt.Sprintf("%x", i), 512)
			for j := 0; j < frames; j++ {
				require.NoError(t, fw.WriteFrame(boxer.Frame{ID: fmt.Sprintf("%04d", i), Method: "NBLK", Payload: payload}))
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, rec.writes, writers*frames)
	for _, w := range rec.writes {
		require.True(t, bytes.HasSuffix(w, []byte("\n")))
		line := string(w[:len(w)-1])
		assert.NotContains(t, line, "\n")
		f, err := boxer.ParseFrame(line)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat(f.ID[3:], 512), f.Payload, "frame payload must not mix writers")
	}
}
