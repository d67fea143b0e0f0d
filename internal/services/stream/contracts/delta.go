package contracts

import "time"

// DeltaKind names a Delta variant
type DeltaKind string

const (
	DeltaStart   DeltaKind = "start"
	DeltaContent DeltaKind = "content"
	DeltaEnd     DeltaKind = "end"
	DeltaError   DeltaKind = "error"
)

// Delta is one unit of upstream output. The set of variants is closed:
// StartDelta, ContentDelta, EndDelta and ErrorDelta.
type Delta interface {
	Kind() DeltaKind
	delta()
}

// StartDelta opens a message
type StartDelta struct{}

// ContentDelta carries incremental assistant text, verbatim.
type ContentDelta struct {
	Text string
}

// EndDelta closes a message normally
type EndDelta struct{}

// ErrorDelta reports an upstream failure in-band.
type ErrorDelta struct {
	Err error
}

func (StartDelta) Kind() DeltaKind   { return DeltaStart }
func (ContentDelta) Kind() DeltaKind { return DeltaContent }
func (EndDelta) Kind() DeltaKind     { return DeltaEnd }
func (ErrorDelta) Kind() DeltaKind   { return DeltaError }

func (StartDelta) delta()   {}
func (ContentDelta) delta() {}
func (EndDelta) delta()     {}
func (ErrorDelta) delta()   {}

// RoleAssistant is the only role a Snapshot carries
const RoleAssistant = "assistant"

// Snapshot is the full accumulated text of one in-progress message.
// Snapshots are values; a newer Snapshot supersedes an older one with the same ID.
type Snapshot struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
}
