package recognizer

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
)

// Request is one recognition call over a window of normalized samples.
type Request struct {
	Samples    []float32
	SampleRate int
	BeamWidth  int
	Language   string
	VADFilter  bool
}

// Recognizer turns a window of audio into text. Implementations are shared
// by every session and must return "" without error for empty input.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Recognizer interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Recognize(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Error carries an engine-specific kind for clients.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
	KindUnknown  = "unknown"
)

// Kind classifies err for the outbound error message.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) && re.Kind != "" {
		return re.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return KindUnknown
}

// Silent never recognizes anything.
type Silent struct{}

func (Silent) Recognize(context.Context, Request) (string, error) {
	return "", nil
}
