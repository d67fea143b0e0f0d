package readers

import (
	"errors"
	"io"
	"sync"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// ErrEmptyStream is returned when the upstream closes before its first event
var ErrEmptyStream = errors.New("upstream returned an empty stream")

// AnthropicDeltaSource turns native Anthropic SDK stream events into Deltas
type AnthropicDeltaSource struct {
	stream    *ssestream.Stream[anthropic.MessageStreamEventUnion]
	requestID string
	closeOnce sync.Once
	closeErr  error
	primed    *anthropic.MessageStreamEventUnion // first event, replayed by Next
}

// NewAnthropicDeltaSource validates the stream by reading its first event, so
// that 401/429/5xx answers surface before any response header is written.
func NewAnthropicDeltaSource(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], requestID string) (*AnthropicDeltaSource, error) {
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err != nil {
			return nil, err
		}
		return nil, ErrEmptyStream
	}

	first := stream.Current()
	return &AnthropicDeltaSource{
		stream:    stream,
		requestID: requestID,
		primed:    &first,
	}, nil
}

// Next implements contracts.DeltaSource. Events that carry no text
// (ping, content_block_start/stop, message_delta, tool input) are skipped.
func (r *AnthropicDeltaSource) Next() (contracts.Delta, error) {
	for {
		var event anthropic.MessageStreamEventUnion
		if r.primed != nil {
			event = *r.primed
			r.primed = nil
		} else {
			if !r.stream.Next() {
				if err := r.stream.Err(); err != nil {
					return contracts.ErrorDelta{Err: err}, nil
				}
				return nil, io.EOF
			}
			event = r.stream.Current()
		}

		if d, ok := toDelta(event); ok {
			return d, nil
		}
	}
}

func toDelta(event anthropic.MessageStreamEventUnion) (contracts.Delta, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return contracts.StartDelta{}, true
	case anthropic.ContentBlockDeltaEvent:
		if ev.Delta.Type == "text_delta" {
			return contracts.ContentDelta{Text: ev.Delta.Text}, true
		}
	case anthropic.MessageStopEvent:
		return contracts.EndDelta{}, true
	}
	return nil, false
}

// Close closes the SDK stream, which aborts the upstream response body
func (r *AnthropicDeltaSource) Close() error {
	r.closeOnce.Do(func() {
		if r.stream != nil {
			r.closeErr = r.stream.Close()
		}
	})
	return r.closeErr
}

// RequestID returns the request this source belongs to
func (r *AnthropicDeltaSource) RequestID() string {
	return r.requestID
}
