package writers

import (
	"bufio"
	"encoding/json"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"

	"github.com/valyala/fasthttp"
)

// HTTPStreamWriter is the contracts.Sink for a fasthttp body stream
type HTTPStreamWriter struct {
	writer     *bufio.Writer
	connState  contracts.ConnectionState
	requestID  string
	totalBytes int64
	errorEvent bool
	closed     bool
}

// NewHTTPStreamWriter creates a new HTTP stream writer. With errorEvent set,
// closing with a failure cause first writes a best-effort "event: error" record.
func NewHTTPStreamWriter(writer *bufio.Writer, connState contracts.ConnectionState, requestID string, errorEvent bool) *HTTPStreamWriter {
	return &HTTPStreamWriter{
		writer:     writer,
		connState:  connState,
		requestID:  requestID,
		errorEvent: errorEvent,
	}
}

// Write writes data to the HTTP stream
func (w *HTTPStreamWriter) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if !w.connState.IsConnected() {
		return contracts.NewCancelledError(w.requestID, nil)
	}

	n, err := w.writer.Write(data)
	if n > 0 {
		w.totalBytes += int64(n)
	}

	if err != nil {
		if contracts.IsConnectionClosed(err) {
			return contracts.NewCancelledError(w.requestID, err)
		}
		return err
	}

	return nil
}

// Flush flushes buffered data
func (w *HTTPStreamWriter) Flush() error {
	if !w.connState.IsConnected() {
		return contracts.NewCancelledError(w.requestID, nil)
	}

	if err := w.writer.Flush(); err != nil {
		if contracts.IsConnectionClosed(err) {
			return contracts.NewCancelledError(w.requestID, err)
		}
		return err
	}

	return nil
}

// Close flushes what is left. It never writes the terminal sentinel; the
// session does that before closing on success.
func (w *HTTPStreamWriter) Close(cause error) error {
	if w.closed {
		return nil
	}
	w.closed = true

	if !w.connState.IsConnected() {
		return nil
	}

	if cause != nil && w.errorEvent && !contracts.IsExpectedError(cause) {
		if record, err := errorRecord(cause); err == nil {
			n, _ := w.writer.Write(record)
			w.totalBytes += int64(n)
		}
	}

	if err := w.writer.Flush(); err != nil {
		if contracts.IsConnectionClosed(err) {
			return contracts.NewCancelledError(w.requestID, err)
		}
		return err
	}
	return nil
}

func errorRecord(cause error) ([]byte, error) {
	errType := "stream_error"
	if kind, ok := contracts.KindOf(cause); ok {
		errType = kind.String()
	}
	payload, err := json.Marshal(map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": cause.Error(),
		},
	})
	if err != nil {
		return nil, err
	}
	record := make([]byte, 0, len(payload)+24)
	record = append(record, "event: error\ndata: "...)
	record = append(record, payload...)
	record = append(record, "\n\n"...)
	return record, nil
}

// TotalBytes returns total bytes written
func (w *HTTPStreamWriter) TotalBytes() int64 {
	return w.totalBytes
}

// FastHTTPConnectionState wraps FastHTTP context for connection state
type FastHTTPConnectionState struct {
	ctx *fasthttp.RequestCtx
}

// NewFastHTTPConnectionState creates connection state from FastHTTP context
func NewFastHTTPConnectionState(ctx *fasthttp.RequestCtx) *FastHTTPConnectionState {
	return &FastHTTPConnectionState{ctx: ctx}
}

// IsConnected checks if client is still connected
func (c *FastHTTPConnectionState) IsConnected() bool {
	if c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Done returns channel that closes when client disconnects
func (c *FastHTTPConnectionState) Done() <-chan struct{} {
	if c.ctx == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.ctx.Done()
}
