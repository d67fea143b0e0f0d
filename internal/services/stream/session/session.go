// Package session runs one upstream stream through the accumulator and
// encoder into a client sink.
//
// A Session moves Idle -> Streaming -> {Completed | Failed | Cancelled}.
// Terminal states are absorbing and the sink handed to Stream is closed
// exactly once, whichever terminal transition happens first.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Egham-7/medchat/internal/services/stream/accumulator"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"
	"github.com/Egham-7/medchat/internal/services/stream/encoder"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// State is the lifecycle position of a Session
type State int32

const (
	Idle State = iota
	Streaming
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

var (
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("session already started")
	// ErrAlreadyStreaming is returned by a second call to Stream
	ErrAlreadyStreaming = errors.New("session already attached to a sink")
	// ErrNotStarted is returned by Stream before a successful Start
	ErrNotStarted = errors.New("session not started")
	// errPrematureEOF marks an upstream that ended without an end-of-message delta
	errPrematureEOF = errors.New("upstream ended without end of message")
)

// Options tune a Session
type Options struct {
	// RequestID tags log lines and errors
	RequestID string
	// MessageID is the stable snapshot id; generated when empty
	MessageID string
	// IdleTimeout bounds the wait between deltas; zero disables it
	IdleTimeout time.Duration
	// Now stamps snapshots; defaults to time.Now
	Now func() time.Time
	// OnComplete receives the final snapshot after a clean completion
	OnComplete func(contracts.Snapshot)
}

// Session owns one upstream subscription and one output sink
type Session struct {
	opener contracts.Opener
	opts   Options
	acc    *accumulator.Accumulator

	mu             sync.Mutex
	state          State
	err            error
	source         contracts.DeltaSource
	upstreamCancel context.CancelFunc
	attached       bool
	sinkClosed     bool

	cancelled  atomic.Bool
	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// New creates an idle Session
func New(opener contracts.Opener, opts Options) *Session {
	if opts.MessageID == "" {
		opts.MessageID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		opener:   opener,
		opts:     opts,
		acc:      accumulator.New(opts.MessageID, opts.Now),
		cancelCh: make(chan struct{}),
	}
}

// ID returns the message id carried by every frame
func (s *Session) ID() string {
	return s.opts.MessageID
}

// RequestID returns the request id the session was created with
func (s *Session) RequestID() string {
	return s.opts.RequestID
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the session, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start issues the upstream call. A failure here happens before any frame is
// written, so the caller can still answer with a regular error response.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		if state == Cancelled {
			return s.Err()
		}
		return ErrAlreadyStarted
	}
	upstreamCtx, cancel := context.WithCancel(ctx)
	s.state = Streaming
	s.upstreamCancel = cancel
	s.mu.Unlock()

	// The idle timeout also bounds the wait for the upstream's first event.
	// The timer cancels the upstream context only while the open is running.
	var openTimedOut atomic.Bool
	var openTimer *time.Timer
	if s.opts.IdleTimeout > 0 {
		openTimer = time.AfterFunc(s.opts.IdleTimeout, func() {
			openTimedOut.Store(true)
			cancel()
		})
	}

	source, err := s.opener(upstreamCtx)
	if openTimer != nil {
		openTimer.Stop()
	}
	if err == nil && openTimedOut.Load() {
		// Opened just as the timer fired; the source's context is already gone
		_ = source.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case s.cancelled.Load():
			s.state = Cancelled
			s.err = contracts.NewCancelledError(s.opts.RequestID, err)
			return s.err
		case openTimedOut.Load():
			s.state = Failed
			s.err = contracts.NewIdleTimeoutError(s.opts.RequestID,
				fmt.Errorf("no upstream event within %v: %w", s.opts.IdleTimeout, err))
			fiberlog.Errorf("[%s] %v", s.opts.RequestID, s.err)
			return s.err
		}
		s.state = Failed
		s.err = contracts.NewUpstreamRequestError(s.opts.RequestID, err)
		fiberlog.Errorf("[%s] Upstream request failed: %v", s.opts.RequestID, err)
		return s.err
	}

	s.mu.Lock()
	s.source = source
	s.mu.Unlock()

	// Cancel may have raced the opener
	if s.cancelled.Load() {
		s.closeSource()
	}

	fiberlog.Debugf("[%s] Upstream stream opened for message %s", s.opts.RequestID, s.opts.MessageID)
	return nil
}

// Cancel stops the session from any goroutine. It is idempotent and never
// blocks on the sink.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancelOnce.Do(func() { close(s.cancelCh) })

	s.mu.Lock()
	if s.state == Idle {
		s.state = Cancelled
		s.err = contracts.NewCancelledError(s.opts.RequestID, nil)
	}
	cancel := s.upstreamCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeSource()
}

type pumped struct {
	delta contracts.Delta
	err   error
}

// Stream consumes the upstream and writes frames into sink until a terminal
// state is reached. It returns nil on Completed, otherwise a
// *contracts.StreamError describing why the stream ended.
func (s *Session) Stream(ctx context.Context, sink contracts.Sink) error {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		_ = sink.Close(ErrAlreadyStreaming)
		return ErrAlreadyStreaming
	}
	s.attached = true
	state, source, priorErr := s.state, s.source, s.err
	s.mu.Unlock()

	if state != Streaming || source == nil {
		err := priorErr
		if err == nil {
			err = ErrNotStarted
		}
		s.closeSink(sink, err)
		return err
	}

	startTime := time.Now()
	var totalFrames, totalBytes int64
	defer func() {
		duration := time.Since(startTime)
		fiberlog.Infof("[%s] Stream %s: %d frames, %d bytes in %v",
			s.opts.RequestID, s.State(), totalFrames, totalBytes, duration)
	}()

	deltas := make(chan pumped)
	done := make(chan struct{})
	defer close(done)
	go pump(source, deltas, done)

	var idle <-chan time.Time
	var timer *time.Timer
	if s.opts.IdleTimeout > 0 {
		timer = time.NewTimer(s.opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	written := 0
	write := func(frame []byte) error {
		if err := s.write(sink, frame); err != nil {
			return err
		}
		totalFrames++
		totalBytes += int64(len(frame))
		return nil
	}

	for {
		if s.cancelled.Load() {
			return s.finish(sink, Cancelled, contracts.NewCancelledError(s.opts.RequestID, nil))
		}

		var next pumped
		select {
		case <-ctx.Done():
			s.Cancel()
			return s.finish(sink, Cancelled, contracts.NewCancelledError(s.opts.RequestID, ctx.Err()))
		case <-s.cancelCh:
			return s.finish(sink, Cancelled, contracts.NewCancelledError(s.opts.RequestID, nil))
		case <-idle:
			fiberlog.Warnf("[%s] No upstream delta within %v", s.opts.RequestID, s.opts.IdleTimeout)
			return s.finish(sink, Failed, contracts.NewIdleTimeoutError(s.opts.RequestID,
				fmt.Errorf("no delta for %v", s.opts.IdleTimeout)))
		case next = <-deltas:
		}

		// Anything observed after cancellation is discarded
		if s.cancelled.Load() {
			return s.finish(sink, Cancelled, contracts.NewCancelledError(s.opts.RequestID, nil))
		}

		if next.err != nil {
			cause := next.err
			if errors.Is(cause, io.EOF) {
				cause = errPrematureEOF
			}
			return s.finish(sink, Failed, contracts.NewUpstreamStreamError(s.opts.RequestID, cause))
		}

		result, err := s.acc.Apply(next.delta)
		if err != nil {
			return s.finish(sink, Failed, contracts.NewUpstreamStreamError(s.opts.RequestID, err))
		}

		if snap := result.Snapshot; snap != nil && (result.Done || len(snap.Content) != written) {
			frame, err := encoder.Encode(*snap)
			if err != nil {
				fiberlog.Errorf("[%s] Failed to encode snapshot %s (%d bytes of content): %v",
					s.opts.RequestID, snap.ID, len(snap.Content), err)
				return s.finish(sink, Failed, contracts.NewEncodingError(s.opts.RequestID, err))
			}
			if err := write(frame); err != nil {
				return s.finishWriteError(sink, err)
			}
			written = len(snap.Content)
		}

		if result.Done {
			if err := write(encoder.Done()); err != nil {
				return s.finishWriteError(sink, err)
			}
			if err := s.finish(sink, Completed, nil); err != nil {
				return err
			}
			if s.opts.OnComplete != nil && result.Snapshot != nil {
				s.opts.OnComplete(*result.Snapshot)
			}
			return nil
		}

		if timer != nil {
			resetTimer(timer, s.opts.IdleTimeout)
		}

		if totalFrames > 0 && totalFrames%100 == 0 {
			fiberlog.Debugf("[%s] Stream progress: %d frames, %d bytes", s.opts.RequestID, totalFrames, totalBytes)
		}
	}
}

// pump is the only reader of source. The unbuffered hand-off keeps at most
// one delta in flight, so a slow sink stalls upstream reads.
func pump(source contracts.DeltaSource, out chan<- pumped, done <-chan struct{}) {
	for {
		d, err := source.Next()
		select {
		case out <- pumped{delta: d, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
		switch d.(type) {
		case contracts.EndDelta, contracts.ErrorDelta:
			return
		}
	}
}

func (s *Session) write(sink contracts.Sink, frame []byte) error {
	if s.cancelled.Load() {
		return contracts.NewCancelledError(s.opts.RequestID, nil)
	}
	if err := sink.Write(frame); err != nil {
		return err
	}
	return sink.Flush()
}

func (s *Session) finishWriteError(sink contracts.Sink, err error) error {
	if contracts.IsCancelled(err) || contracts.IsConnectionClosed(err) {
		fiberlog.Infof("[%s] Client went away during write", s.opts.RequestID)
		return s.finish(sink, Cancelled, contracts.NewCancelledError(s.opts.RequestID, err))
	}
	return s.finish(sink, Failed, contracts.NewUpstreamStreamError(s.opts.RequestID,
		fmt.Errorf("write frame: %w", err)))
}

// finish records the terminal state, releases the upstream and closes sink.
func (s *Session) finish(sink contracts.Sink, state State, err error) error {
	s.mu.Lock()
	if s.state == Streaming {
		s.state = state
		s.err = err
	} else {
		state, err = s.state, s.err
	}
	cancel := s.upstreamCancel
	s.mu.Unlock()

	s.closeSource()
	if cancel != nil {
		cancel()
	}

	switch {
	case err == nil:
	case contracts.IsExpectedError(err):
		fiberlog.Infof("[%s] Stream ended: %v", s.opts.RequestID, err)
	default:
		fiberlog.Errorf("[%s] Stream failed: %v", s.opts.RequestID, err)
	}

	s.closeSink(sink, err)
	return err
}

func (s *Session) closeSink(sink contracts.Sink, cause error) {
	s.mu.Lock()
	if s.sinkClosed {
		s.mu.Unlock()
		return
	}
	s.sinkClosed = true
	s.mu.Unlock()

	if err := sink.Close(cause); err != nil && !contracts.IsExpectedError(err) && !contracts.IsConnectionClosed(err) {
		fiberlog.Errorf("[%s] Error closing sink: %v", s.opts.RequestID, err)
	}
}

func (s *Session) closeSource() {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()
	if source == nil {
		return
	}
	if err := source.Close(); err != nil {
		fiberlog.Debugf("[%s] Error closing upstream: %v", s.opts.RequestID, err)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
