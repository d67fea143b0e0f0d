package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/encoder"
	"github.com/Egham-7/medchat/internal/services/stream/session"

	"github.com/gofiber/fiber/v2"
)

type sliceSource struct {
	deltas []contracts.Delta
}

func (s *sliceSource) Next() (contracts.Delta, error) {
	if len(s.deltas) == 0 {
		return nil, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *sliceSource) Close() error { return nil }

// serve runs app on a loopback listener; body stream writers need a real server
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func streamApp(deltas []contracts.Delta, cfg StreamConfig) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/stream", func(c *fiber.Ctx) error {
		src := &sliceSource{deltas: deltas}
		sess := session.New(func(context.Context) (contracts.DeltaSource, error) { return src, nil },
			session.Options{RequestID: "req_test", MessageID: "msg-1"})
		if err := sess.Start(context.Background()); err != nil {
			return err
		}
		return HandleSession(c, sess, cfg)
	})
	return app
}

func TestHandleSessionStreamsFrames(t *testing.T) {
	finished := make(chan error, 1)
	app := streamApp([]contracts.Delta{
		contracts.StartDelta{},
		contracts.ContentDelta{Text: "Drink "},
		contracts.ContentDelta{Text: "water."},
		contracts.EndDelta{},
	}, StreamConfig{OnFinish: func(err error) { finished <- err }})
	base := serve(t, app)

	resp, err := http.Get(base + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache, no-transform",
		"X-Accel-Buffering": "no",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	records, rest := encoder.SplitRecords(body)
	if len(rest) != 0 {
		t.Fatalf("trailing partial record %q", rest)
	}
	if len(records) != 4 || !encoder.IsDone(records[3]) {
		t.Fatalf("records = %q", records)
	}
	for i, want := range []string{"Drink ", "Drink water.", "Drink water."} {
		snap, err := encoder.Decode(records[i])
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if snap.ID != "msg-1" || snap.Content != want {
			t.Fatalf("record %d = %+v, want content %q", i, snap, want)
		}
	}

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("OnFinish err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinish not called")
	}
}

func TestHandleSessionFailureWritesErrorEvent(t *testing.T) {
	finished := make(chan error, 1)
	app := streamApp([]contracts.Delta{
		contracts.ContentDelta{Text: "par"},
		contracts.ErrorDelta{Err: errors.New("overloaded")},
	}, StreamConfig{ErrorEvent: true, OnFinish: func(err error) { finished <- err }})
	base := serve(t, app)

	resp, err := http.Get(base + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if strings.Contains(string(body), "[DONE]") {
		t.Fatalf("failed stream carried the sentinel: %q", body)
	}
	if !strings.Contains(string(body), "event: error\n") || !strings.Contains(string(body), `"type":"upstream_stream"`) {
		t.Fatalf("body = %q, want an error record", body)
	}

	select {
	case err := <-finished:
		if kind, ok := contracts.KindOf(err); !ok || kind != contracts.UpstreamStream {
			t.Fatalf("OnFinish err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinish not called")
	}
}
