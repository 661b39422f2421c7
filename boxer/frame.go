package boxer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"boxer/core/header"
)

const (
	idLen     = 4
	methodLen = 4

	// FrameHeaderLen is the id plus the method.
	FrameHeaderLen = idLen + methodLen

	// DriverID marks frames the driver emits on its own.
	DriverID = "0000"

	MethodNewBlock = "NBLK"
	MethodTip      = "TIPH"
)

var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// Frame is one line of the protocol.
type Frame struct {
	ID      string
	Method  string
	Payload string
}

// ParseFrame splits a line into id, method and payload. Surrounding
// whitespace, including the line terminator, is ignored. Id and method are
// eight ASCII characters; any other byte there makes the line malformed.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	if len(line) < FrameHeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(line), FrameHeaderLen)
	}
	for i := 0; i < FrameHeaderLen; i++ {
		if line[i] >= utf8.RuneSelf {
			return Frame{}, fmt.Errorf("%w: non-ASCII byte at offset %d", ErrMalformedFrame, i)
		}
	}
	return Frame{
		ID:      line[:idLen],
		Method:  line[idLen:FrameHeaderLen],
		Payload: line[FrameHeaderLen:],
	}, nil
}

// String renders the frame without a line terminator.
func (f Frame) String() string {
	return f.ID + f.Method + f.Payload
}

// TipFrame announces the best block number.
func TipFrame(number uint64) Frame {
	return Frame{ID: DriverID, Method: MethodTip, Payload: fmt.Sprintf("%016x", number)}
}

// NewBlockFrame announces a block that joined the best chain.
func NewBlockFrame(hash header.Hash) Frame {
	return Frame{ID: DriverID, Method: MethodNewBlock, Payload: hash.String()}
}
