package boxer

import (
	"io"
	"sync"
)

// FrameWriter is the single sink both the command loop and the listener
// write to. Every frame reaches the underlying writer in one Write call.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes f followed by a newline.
func (fw *FrameWriter) WriteFrame(f Frame) error {
	line := make([]byte, 0, len(f.ID)+len(f.Method)+len(f.Payload)+1)
	line = append(line, f.ID...)
	line = append(line, f.Method...)
	line = append(line, f.Payload...)
	line = append(line, '\n')

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(line)
	return err
}
