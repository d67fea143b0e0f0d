package handlers

import (
	"bufio"

	"github.com/Egham-7/medchat/internal/services/stream/session"
	"github.com/Egham-7/medchat/internal/services/stream/writers"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"
)

// StreamConfig controls how a started session is piped to the client
type StreamConfig struct {
	// ErrorEvent writes a best-effort error record before closing a failed stream
	ErrorEvent bool
	// OnFinish runs after the session reached a terminal state
	OnFinish func(err error)
}

// SetSSEHeaders marks the response as an unbuffered event stream
func SetSSEHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache, no-transform")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}

// HandleSession streams a session that has already been started. The
// upstream request must have been validated by Session.Start, because once
// the body stream writer runs the status line is gone.
func HandleSession(c *fiber.Ctx, sess *session.Session, cfg StreamConfig) error {
	requestID := sess.RequestID()
	fiberlog.Infof("[%s] Starting SSE stream for message %s", requestID, sess.ID())

	fasthttpCtx := c.Context()
	SetSSEHeaders(c)
	c.Status(fiber.StatusOK)

	fasthttpCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		connState := writers.NewFastHTTPConnectionState(fasthttpCtx)
		sink := writers.NewHTTPStreamWriter(w, connState, requestID, cfg.ErrorEvent)

		// fasthttpCtx is done on server shutdown, which cancels the session
		err := sess.Stream(fasthttpCtx, sink)
		if cfg.OnFinish != nil {
			cfg.OnFinish(err)
		}
	}))

	return nil
}
