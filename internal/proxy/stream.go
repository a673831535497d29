package proxy

import (
	"context"
	"errors"
	"io"

	sse "github.com/tmaxmax/go-sse"
)

// Stream is the minimal pull-based iterator contract used for inbound
// SSE decoding; WriteHealedSSEStream consumes the upstream events
// through it and heals them as it writes. Mirrors the teacher's
// streams.Stream[T] contract.
type Stream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// StreamEvent is one decoded Server-Sent Event.
type StreamEvent struct {
	LastEventID string
	Type        string
	Data        []byte
}

// sseDecoder adapts an upstream SSE response body to Stream[*StreamEvent].
//
// Not concurrency-safe: Next/Close must only be called from one goroutine.
type sseDecoder struct {
	ctx       context.Context
	sseStream *sse.Stream
	current   *StreamEvent
	err       error
	closed    bool
}

// newSSEDecoder wraps rc as a Stream of decoded SSE events. The
// MaxEventSize is raised above go-sse's default since a single JSON
// Schema tool-call delta can be large.
func newSSEDecoder(ctx context.Context, rc io.ReadCloser) *sseDecoder {
	return &sseDecoder{
		ctx: ctx,
		sseStream: sse.NewStreamWithConfig(rc, &sse.StreamConfig{
			MaxEventSize: 8 * 1024 * 1024,
		}),
	}
}

func (d *sseDecoder) Next() bool {
	if d.err != nil || d.closed {
		return false
	}

	select {
	case <-d.ctx.Done():
		d.err = d.ctx.Err()
		_ = d.Close()

		return false
	default:
	}

	event, err := d.sseStream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			_ = d.Close()
			return false
		}

		d.err = err
		_ = d.Close()

		return false
	}

	d.current = &StreamEvent{
		LastEventID: event.LastEventID,
		Type:        event.Type,
		Data:        []byte(event.Data),
	}

	return true
}

func (d *sseDecoder) Current() *StreamEvent { return d.current }
func (d *sseDecoder) Err() error            { return d.err }

func (d *sseDecoder) Close() error {
	if d.closed {
		return nil
	}

	d.closed = true

	if d.sseStream != nil {
		return d.sseStream.Close()
	}

	return nil
}
