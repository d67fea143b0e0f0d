package writers

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"
)

type connState struct{ connected bool }

func (c *connState) IsConnected() bool { return c.connected }

func (c *connState) Done() <-chan struct{} {
	done := make(chan struct{})
	if !c.connected {
		close(done)
	}
	return done
}

type brokenPipe struct{}

func (brokenPipe) Write([]byte) (int, error) {
	return 0, errors.New("write tcp 10.0.0.1:443: broken pipe")
}

func TestHTTPStreamWriterWritesAndFlushes(t *testing.T) {
	var out bytes.Buffer
	w := NewHTTPStreamWriter(bufio.NewWriter(&out), &connState{connected: true}, "r", false)

	frame := []byte("data: {}\n\n")
	if err := w.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(nil); err != nil {
		t.Fatalf("empty Write: %v", err)
	}
	if out.Len() != 0 {
		t.Fatal("data reached the connection before Flush")
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if out.String() != string(frame) {
		t.Fatalf("out = %q", out.String())
	}
	if w.TotalBytes() != int64(len(frame)) {
		t.Fatalf("TotalBytes = %d", w.TotalBytes())
	}
}

func TestHTTPStreamWriterDisconnected(t *testing.T) {
	var out bytes.Buffer
	w := NewHTTPStreamWriter(bufio.NewWriter(&out), &connState{connected: false}, "r", true)

	if err := w.Write([]byte("data: x\n\n")); !contracts.IsCancelled(err) {
		t.Fatalf("Write = %v, want cancellation", err)
	}
	if err := w.Flush(); !contracts.IsCancelled(err) {
		t.Fatalf("Flush = %v, want cancellation", err)
	}
	if err := w.Close(errors.New("boom")); err != nil {
		t.Fatalf("Close = %v, want nil for a gone client", err)
	}
	if out.Len() != 0 {
		t.Fatalf("wrote %q to a disconnected client", out.String())
	}
}

func TestHTTPStreamWriterBrokenPipeIsCancellation(t *testing.T) {
	w := NewHTTPStreamWriter(bufio.NewWriterSize(brokenPipe{}, 16), &connState{connected: true}, "r", false)

	err := w.Write([]byte(strings.Repeat("x", 64)))
	if !contracts.IsCancelled(err) {
		t.Fatalf("Write = %v, want cancellation", err)
	}
}

func TestHTTPStreamWriterCloseErrorRecord(t *testing.T) {
	tests := []struct {
		name       string
		errorEvent bool
		cause      error
		want       string
	}{
		{
			name:       "failure with error events",
			errorEvent: true,
			cause:      contracts.NewUpstreamStreamError("r", errors.New("overloaded")),
			want:       `event: error` + "\n" + `data: {"error":{"message":"upstream stream failed: overloaded","type":"upstream_stream"}}` + "\n\n",
		},
		{
			name:       "failure without error events",
			errorEvent: false,
			cause:      contracts.NewUpstreamStreamError("r", errors.New("overloaded")),
			want:       "",
		},
		{
			name:       "cancellation never reports",
			errorEvent: true,
			cause:      contracts.NewCancelledError("r", nil),
			want:       "",
		},
		{
			name:       "clean close",
			errorEvent: true,
			cause:      nil,
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := NewHTTPStreamWriter(bufio.NewWriter(&out), &connState{connected: true}, "r", tt.errorEvent)

			if err := w.Close(tt.cause); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if out.String() != tt.want {
				t.Fatalf("out = %q, want %q", out.String(), tt.want)
			}

			if err := w.Close(tt.cause); err != nil {
				t.Fatalf("second Close: %v", err)
			}
			if out.String() != tt.want {
				t.Fatal("second Close wrote again")
			}
		})
	}
}

func TestFastHTTPConnectionStateWithoutContext(t *testing.T) {
	state := NewFastHTTPConnectionState(nil)
	if state.IsConnected() {
		t.Fatal("nil context reported connected")
	}
	select {
	case <-state.Done():
	default:
		t.Fatal("Done not closed for nil context")
	}
}
