// Package encoder serializes Snapshots into server-sent event records.
//
// Every record is a single "data:" line followed by a blank line. The JSON
// payload escapes control characters, so a newline inside assistant text is
// written as the two bytes `\n` and can never terminate a record early.
package encoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/medchat/internal/services/stream/contracts"

	"github.com/valyala/bytebufferpool"
)

// TimeLayout renders createdAt as ISO-8601 UTC with millisecond precision
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	dataPrefix = "data: "
	terminator = "\n\n"
)

var doneRecord = []byte(dataPrefix + "[DONE]" + terminator)

// ErrMalformedSnapshot is returned for snapshots that violate the frame contract
var ErrMalformedSnapshot = errors.New("malformed snapshot")

var framePool bytebufferpool.Pool

// frame fixes the field order of the wire payload
type frame struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// Encode renders one snapshot record
func Encode(s contracts.Snapshot) ([]byte, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrMalformedSnapshot)
	}
	if s.Role != contracts.RoleAssistant {
		return nil, fmt.Errorf("%w: role %q", ErrMalformedSnapshot, s.Role)
	}

	buf := framePool.Get()
	defer framePool.Put(buf)

	buf.B = append(buf.B, dataPrefix...)

	enc := json.NewEncoder(buf)
	// Markdown is full of <, > and &; keep them readable
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frame{
		ID:        s.ID,
		Role:      s.Role,
		Content:   s.Content,
		CreatedAt: s.CreatedAt.UTC().Format(TimeLayout),
	}); err != nil {
		return nil, err
	}
	// json.Encoder already terminated the line
	buf.B = append(buf.B, '\n')

	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out, nil
}

// Done returns the terminal sentinel record
func Done() []byte {
	out := make([]byte, len(doneRecord))
	copy(out, doneRecord)
	return out
}

// IsDone reports whether record is the terminal sentinel
func IsDone(record []byte) bool {
	return bytes.Equal(record, doneRecord)
}

// Decode parses a record produced by Encode
func Decode(record []byte) (contracts.Snapshot, error) {
	if !bytes.HasPrefix(record, []byte(dataPrefix)) || !bytes.HasSuffix(record, []byte(terminator)) {
		return contracts.Snapshot{}, fmt.Errorf("%w: not a data record", ErrMalformedSnapshot)
	}
	payload := record[len(dataPrefix) : len(record)-len(terminator)]
	if bytes.IndexByte(payload, '\n') >= 0 {
		return contracts.Snapshot{}, fmt.Errorf("%w: record spans multiple lines", ErrMalformedSnapshot)
	}

	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return contracts.Snapshot{}, fmt.Errorf("decode frame: %w", err)
	}
	createdAt, err := time.Parse(TimeLayout, f.CreatedAt)
	if err != nil {
		return contracts.Snapshot{}, fmt.Errorf("decode createdAt: %w", err)
	}

	return contracts.Snapshot{
		ID:        f.ID,
		Role:      f.Role,
		Content:   f.Content,
		CreatedAt: createdAt,
	}, nil
}

// SplitRecords splits a byte stream into complete records, returning any
// trailing partial record separately
func SplitRecords(stream []byte) (records [][]byte, rest []byte) {
	for {
		i := bytes.Index(stream, []byte(terminator))
		if i < 0 {
			return records, stream
		}
		records = append(records, stream[:i+len(terminator)])
		stream = stream[i+len(terminator):]
	}
}
