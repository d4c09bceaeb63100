package opcua

import (
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"
)

// ConnState represents the OPC UA session connection state.
type ConnState int

const (
	// StateDisconnected means no session exists.
	StateDisconnected ConnState = iota

	// StateConnecting means a connection attempt is in progress.
	StateConnecting

	// StateConnected means the session and subscription are live.
	StateConnected

	// StateDegraded means the session exists but the subscription has
	// failed; a reconnect is imminent.
	StateDegraded
)

// String returns a human-readable connection state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// EventKind discriminates session events.
type EventKind int

const (
	// EventDataChange carries a monitored item notification.
	EventDataChange EventKind = iota

	// EventStateChange reports a session connection state transition.
	EventStateChange

	// EventSessionFault reports a session-level failure. The session
	// will tear down and reconnect with backoff.
	EventSessionFault

	// EventSubscriptionWarning reports a per-item monitoring problem
	// (e.g. a node id the server refuses to monitor). The session stays up.
	EventSubscriptionWarning
)

// Event is what the session emits towards the engine. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind  EventKind
	State ConnState  // EventStateChange
	Data  DataChange // EventDataChange
	Err   error      // EventSessionFault, EventSubscriptionWarning

	// NodeID identifies the affected item for EventSubscriptionWarning.
	NodeID string
}

// DataChange is a single monitored item notification.
type DataChange struct {
	// NodeID is the string form of the source node id, used for
	// registry lookup.
	NodeID string

	// Value is the raw variant value as decoded by the OPC UA stack.
	Value any

	// SourceTime is the server-reported source timestamp.
	// Zero when the server did not provide one.
	SourceTime time.Time

	// Status is the quality of the value.
	Status ua.StatusCode
}
