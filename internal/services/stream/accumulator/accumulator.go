// Package accumulator folds a sequence of Deltas into cumulative Snapshots.
package accumulator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"
)

// ErrOutOfOrder is returned for a Delta that cannot follow the deltas already applied
var ErrOutOfOrder = errors.New("delta out of order")

type phase int

const (
	phaseOpen phase = iota
	phaseContent
	phaseDone
)

// Result is the outcome of applying one Delta
type Result struct {
	// Snapshot is nil for control deltas that produce no output
	Snapshot *contracts.Snapshot
	// Done is set once the end-of-message delta has been applied
	Done bool
}

// Accumulator keeps the running text of one message.
// It is not safe for concurrent use.
type Accumulator struct {
	id    string
	now   func() time.Time
	buf   strings.Builder
	phase phase
}

// New creates an Accumulator whose snapshots carry id
func New(id string, now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{id: id, now: now}
}

// ID returns the message id carried by every snapshot
func (a *Accumulator) ID() string {
	return a.id
}

// Content returns the text accumulated so far
func (a *Accumulator) Content() string {
	return a.buf.String()
}

// Apply consumes one Delta
func (a *Accumulator) Apply(d contracts.Delta) (Result, error) {
	if a.phase == phaseDone {
		return Result{}, fmt.Errorf("%w: %s after end of message", ErrOutOfOrder, d.Kind())
	}

	switch d := d.(type) {
	case contracts.StartDelta:
		// A restart after content would shrink the snapshot
		if a.phase == phaseContent {
			return Result{}, fmt.Errorf("%w: start after content", ErrOutOfOrder)
		}
		a.buf.Reset()
		return Result{}, nil

	case contracts.ContentDelta:
		a.phase = phaseContent
		a.buf.WriteString(d.Text)
		return Result{Snapshot: a.snapshot()}, nil

	case contracts.EndDelta:
		a.phase = phaseDone
		return Result{Snapshot: a.snapshot(), Done: true}, nil

	case contracts.ErrorDelta:
		a.phase = phaseDone
		a.buf.Reset()
		if d.Err == nil {
			return Result{}, errors.New("upstream reported an error")
		}
		return Result{}, fmt.Errorf("upstream reported an error: %w", d.Err)

	default:
		return Result{}, fmt.Errorf("unknown delta %T", d)
	}
}

func (a *Accumulator) snapshot() *contracts.Snapshot {
	return &contracts.Snapshot{
		ID:        a.id,
		Role:      contracts.RoleAssistant,
		Content:   a.buf.String(),
		CreatedAt: a.now(),
	}
}
