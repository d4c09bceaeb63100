package opcua

import (
	"fmt"
	"time"

	"github.com/plcwire/uabridge/internal/tags"
)

// Phase is the per-tag synchronization phase.
//
// Transitions:
//
//	Unknown ──notification──▶ Synced
//	Synced ──accepted command──▶ WritePending
//	WritePending ──notification──▶ Synced
//	WritePending ──deadline passed──▶ Synced (timeout reported once)
//
// A write timeout is an event, not a resting state: the tag keeps its
// last observed value, returns to Synced and accepts further commands.
type Phase int

const (
	// PhaseUnknown means no notification has been seen for the tag yet.
	PhaseUnknown Phase = iota

	// PhaseSynced means the last published value reflects the PLC.
	PhaseSynced

	// PhaseWritePending means a write was issued and the confirming
	// notification is still outstanding.
	PhaseWritePending
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseSynced:
		return "synced"
	case PhaseWritePending:
		return "write_pending"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// PendingWrite tracks one outstanding OPC UA write awaiting confirmation
// by a subscription notification. A newer accepted command replaces an
// older pending write; there is never more than one per tag.
type PendingWrite struct {
	// Value is the canonical value that was written.
	Value any

	// Deadline is when the write is reported as timed out.
	Deadline time.Time

	// IssuedAt is when the write call succeeded.
	IssuedAt time.Time
}

// TagState is the engine's per-tag bookkeeping. It is owned exclusively
// by the engine's consumer goroutine and needs no locking.
type TagState struct {
	Def tags.Definition

	Phase Phase

	// LastValue is the last canonical value published to the state topic.
	// Only meaningful when HasValue is true.
	LastValue any
	HasValue  bool

	// Pending is the outstanding write, nil if none.
	Pending *PendingWrite

	// LastChange is when LastValue was last published.
	LastChange time.Time

	// BadQuality latches a bad-status streak so it is reported once,
	// not once per notification.
	BadQuality bool
}

// valuesEqual compares two canonical values for exact equality.
//
// Values are canonical by the time they get here (bool, int64, float64 or
// string per the tag's declared type), so plain comparison is correct.
// Floats compare exactly: a change of any magnitude is a change, and a
// re-delivered identical reading is a duplicate.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return false
	}
}
