package messages

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/circuitbreaker"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/session"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	streamBody = "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-20241022","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":1}}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"
	overloadedBody = `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`
	invalidBody    = `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`
)

// upstream answers with statuses in order, then keeps repeating the last one
type upstream struct {
	mu       sync.Mutex
	statuses []int
	requests atomic.Int32
	models   []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(u.requests.Add(1)) - 1

	var body struct {
		Model string `json:"model"`
	}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)
	u.mu.Lock()
	u.models = append(u.models, body.Model)
	status := u.statuses[min(n, len(u.statuses)-1)]
	u.mu.Unlock()

	switch status {
	case http.StatusOK:
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, streamBody)
	case http.StatusBadRequest:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, invalidBody)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, overloadedBody)
	}
}

func newTestService(t *testing.T, u http.Handler, maxRetries int, breaker Breaker) (*MessagesService, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)

	ms := NewMessagesService(models.AnthropicConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		MaxTokens:      64,
		TitleModel:     "claude-3-5-haiku-20241022",
		MaxRetries:     maxRetries,
		RetryBackoffMs: 100,
	}, breaker)
	var waits []time.Duration
	ms.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return ms, &waits
}

func testParams(ms *MessagesService) anthropic.MessageNewParams {
	return ms.BuildParams("claude-3-5-sonnet-20241022", "be kind", []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("hello")),
	})
}

func TestOpenerRetriesRetryableErrors(t *testing.T) {
	u := &upstream{statuses: []int{529, 500, http.StatusOK}}
	ms, waits := newTestService(t, u, 2, nil)

	src, err := ms.Opener(testParams(ms), "req_test")(context.Background())
	if err != nil {
		t.Fatalf("Opener: %v", err)
	}
	defer src.Close()

	if got := u.requests.Load(); got != 3 {
		t.Fatalf("requests = %d, want 3", got)
	}
	if len(*waits) != 2 || (*waits)[0] != 100*time.Millisecond || (*waits)[1] != 200*time.Millisecond {
		t.Fatalf("backoffs = %v, want [100ms 200ms]", *waits)
	}

	d, err := src.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(contracts.StartDelta); !ok {
		t.Fatalf("first delta = %#v", d)
	}
}

func TestOpenerStopsOnClientErrorsAndExhaustion(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		maxRetries   int
		wantRequests int32
		wantStatus   int
	}{
		{name: "bad request is final", statuses: []int{400}, maxRetries: 3, wantRequests: 1, wantStatus: 400},
		{name: "retries exhausted", statuses: []int{529}, maxRetries: 1, wantRequests: 2, wantStatus: 529},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &upstream{statuses: tt.statuses}
			ms, _ := newTestService(t, u, tt.maxRetries, nil)

			_, err := ms.Opener(testParams(ms), "req_test")(context.Background())
			var apiErr *anthropic.Error
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantStatus {
				t.Fatalf("expected an API error with status %d", tt.wantStatus)
			}
			if got := u.requests.Load(); got != tt.wantRequests {
				t.Fatalf("requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestOpenerHonorsBreaker(t *testing.T) {
	breaker := circuitbreaker.NewLocal("anthropic", circuitbreaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Hour,
	})
	u := &upstream{statuses: []int{529}}
	ms, _ := newTestService(t, u, 0, breaker)

	if _, err := ms.Opener(testParams(ms), "r1")(context.Background()); err == nil {
		t.Fatal("first open succeeded against an overloaded upstream")
	}
	if breaker.State(context.Background()) != circuitbreaker.Open {
		t.Fatal("breaker did not open")
	}

	_, err := ms.Opener(testParams(ms), "r2")(context.Background())
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if got := u.requests.Load(); got != 1 {
		t.Fatalf("requests = %d, open breaker still called upstream", got)
	}
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "bad request", err: &anthropic.Error{StatusCode: 400}, want: false},
		{name: "rate limited", err: &anthropic.Error{StatusCode: 429}, want: true},
		{name: "server error", err: &anthropic.Error{StatusCode: 503}, want: true},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countsAsFailure(tt.err); got != tt.want {
				t.Fatalf("countsAsFailure = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: &anthropic.Error{StatusCode: 429}, want: true},
		{err: &anthropic.Error{StatusCode: 500}, want: true},
		{err: &anthropic.Error{StatusCode: 529}, want: true},
		{err: &anthropic.Error{StatusCode: 401}, want: false},
		{err: errors.New("plain"), want: false},
	}
	for i, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("case %d: IsRetryable = %v, want %v", i, got, tt.want)
		}
	}
}

func TestBuildParams(t *testing.T) {
	temp := 0.2
	ms := NewMessagesService(models.AnthropicConfig{MaxTokens: 512, Temperature: &temp}, nil)

	params := ms.BuildParams("claude-3-5-haiku-20241022", "", nil)
	if params.MaxTokens != 512 || string(params.Model) != "claude-3-5-haiku-20241022" {
		t.Fatalf("params = %+v", params)
	}
	if len(params.System) != 0 {
		t.Fatal("empty system prompt was sent")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Fatalf("temperature = %+v", params.Temperature)
	}
}

func TestClientIsCached(t *testing.T) {
	ms := NewMessagesService(models.AnthropicConfig{APIKey: "k"}, nil)
	if ms.Client() != ms.Client() {
		t.Fatal("Client built twice for the same config")
	}
}

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
	}{
		{
			name:   "model title is sanitized",
			status: http.StatusOK,
			reply:  `"Migraine: triggers"`,
			want:   "Migraine triggers",
		},
		{
			name:   "empty reply falls back",
			status: http.StatusOK,
			reply:  `""`,
			want:   "My head hurts since Monday",
		},
		{
			name:   "upstream failure falls back",
			status: http.StatusInternalServerError,
			want:   "My head hurts since Monday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var model string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Model string `json:"model"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				model = body.Model

				w.Header().Set("Content-Type", "application/json")
				if tt.status != http.StatusOK {
					w.WriteHeader(tt.status)
					_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
					return
				}
				text, _ := json.Marshal(tt.reply)
				_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",`+
					`"content":[{"type":"text","text":`+string(text)+`}],"stop_reason":"end_turn","stop_sequence":null,`+
					`"usage":{"input_tokens":5,"output_tokens":3}}`)
			}))
			defer srv.Close()

			ms := NewMessagesService(models.AnthropicConfig{
				APIKey:     "k",
				BaseURL:    srv.URL,
				TitleModel: "claude-3-5-haiku-20241022",
			}, nil)

			got := ms.GenerateTitle(context.Background(), "My head hurts since Monday", "req_test")
			if got != tt.want {
				t.Fatalf("title = %q, want %q", got, tt.want)
			}
			if model != "claude-3-5-haiku-20241022" {
				t.Fatalf("title request used model %q", model)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext = %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext = %v", err)
	}
}

func TestSilentUpstreamHitsIdleTimeoutOnStart(t *testing.T) {
	stop := make(chan struct{})
	silent := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-stop:
		}
	})
	ms, _ := newTestService(t, silent, 0, nil)
	t.Cleanup(func() { close(stop) })

	sess := session.New(ms.Opener(testParams(ms), "req_silent"), session.Options{
		RequestID:   "req_silent",
		IdleTimeout: 100 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- sess.Start(context.Background()) }()

	select {
	case err := <-done:
		if kind, ok := contracts.KindOf(err); !ok || kind != contracts.IdleTimeout {
			t.Fatalf("err = %v, want idle timeout", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Start still blocked; state = %v", sess.State())
	}
	if sess.State() != session.Failed {
		t.Fatalf("state = %v, want failed", sess.State())
	}
}
