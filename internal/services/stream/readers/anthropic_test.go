package readers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	messageStart = "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-20241022","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n"
	blockStart = "event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n"
	ping      = "event: ping\n" + `data: {"type": "ping"}` + "\n\n"
	blockStop = "event: content_block_stop\n" + `data: {"type":"content_block_stop","index":0}` + "\n\n"
	msgDelta  = "event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}` + "\n\n"
	messageStop = "event: message_stop\n" + `data: {"type":"message_stop"}` + "\n\n"
)

func textDelta(text string) string {
	return "event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"` + text + `"}}` + "\n\n"
}

func sseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openSource(t *testing.T, srv *httptest.Server) (*AnthropicDeltaSource, error) {
	t.Helper()
	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	stream := client.Messages.NewStreaming(context.Background(), anthropic.MessageNewParams{
		MaxTokens: 64,
		Model:     anthropic.Model("claude-3-5-sonnet-20241022"),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("hi"))},
	})
	return NewAnthropicDeltaSource(stream, "req_test")
}

func drain(t *testing.T, src contracts.DeltaSource) ([]contracts.Delta, error) {
	t.Helper()
	var out []contracts.Delta
	for range 32 {
		d, err := src.Next()
		if err != nil {
			return out, err
		}
		out = append(out, d)
		if _, ok := d.(contracts.EndDelta); ok {
			return out, nil
		}
		if _, ok := d.(contracts.ErrorDelta); ok {
			return out, nil
		}
	}
	t.Fatal("source never ended")
	return nil, nil
}

func TestAnthropicDeltaSourceMapsEvents(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		messageStart+blockStart+ping+textDelta("Hello")+textDelta(` there`)+blockStop+msgDelta+messageStop)

	src, err := openSource(t, srv)
	if err != nil {
		t.Fatalf("NewAnthropicDeltaSource: %v", err)
	}
	defer src.Close()

	deltas, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	want := []contracts.Delta{
		contracts.StartDelta{},
		contracts.ContentDelta{Text: "Hello"},
		contracts.ContentDelta{Text: " there"},
		contracts.EndDelta{},
	}
	if len(deltas) != len(want) {
		t.Fatalf("got %d deltas %+v, want %d", len(deltas), deltas, len(want))
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Fatalf("delta %d = %#v, want %#v", i, deltas[i], want[i])
		}
	}
}

func TestAnthropicDeltaSourceRequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
		},
		{
			name:   "overloaded",
			status: 529,
			body:   `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sseServer(t, tt.status, tt.body)

			src, err := openSource(t, srv)
			if err == nil {
				src.Close()
				t.Fatal("expected an error before streaming")
			}
			var apiErr *anthropic.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %T %v, want *anthropic.Error", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestAnthropicDeltaSourceInBandError(t *testing.T) {
	errorEvent := "event: error\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n"
	srv := sseServer(t, http.StatusOK, messageStart+textDelta("par")+errorEvent)

	src, err := openSource(t, srv)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	deltas, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	last, ok := deltas[len(deltas)-1].(contracts.ErrorDelta)
	if !ok {
		t.Fatalf("last delta = %#v, want ErrorDelta", deltas[len(deltas)-1])
	}
	if last.Err == nil || !strings.Contains(last.Err.Error(), "Overloaded") {
		t.Fatalf("error delta = %v", last.Err)
	}
}

func TestAnthropicDeltaSourceEOFWithoutStop(t *testing.T) {
	srv := sseServer(t, http.StatusOK, messageStart+textDelta("cut"))

	src, err := openSource(t, srv)
	if err != nil {
		t.Fatal(err)
	}

	deltas, err := drain(t, src)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v after %+v, want io.EOF", err, deltas)
	}
	if len(deltas) != 2 {
		t.Fatalf("got %+v", deltas)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if src.RequestID() != "req_test" {
		t.Fatalf("RequestID = %q", src.RequestID())
	}
}

func TestAnthropicDeltaSourceEmptyStream(t *testing.T) {
	srv := sseServer(t, http.StatusOK, "")

	if _, err := openSource(t, srv); !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("err = %v, want ErrEmptyStream", err)
	}
}
