package opcua

import (
	"sort"
	"time"
)

// TagSnapshot is a point-in-time view of one tag for the status API.
type TagSnapshot struct {
	Path         string    `json:"path"`
	NodeID       string    `json:"node_id"`
	Type         string    `json:"type"`
	Mode         string    `json:"mode"`
	Phase        string    `json:"phase"`
	Value        string    `json:"value,omitempty"`
	PendingWrite bool      `json:"pending_write"`
	LastChange   time.Time `json:"last_change,omitzero"`
}

// Snapshot is a point-in-time view of the whole engine.
type Snapshot struct {
	OPCUAState    string        `json:"opcua_state"`
	MQTTConnected bool          `json:"mqtt_connected"`
	Availability  string        `json:"availability"`
	TagCount      int           `json:"tag_count"`
	Counters      Counters      `json:"counters"`
	Tags          []TagSnapshot `json:"tags"`
}

// Snapshot captures the engine state for the status API.
// Safe to call from any goroutine.
func (e *Engine) Snapshot() Snapshot {
	e.connMu.Lock()
	opcState := e.opcState
	mqttUp := e.mqttUp
	availability := e.availability
	e.connMu.Unlock()

	if availability == "" {
		availability = "unknown"
	}

	snap := Snapshot{
		OPCUAState:    opcState.String(),
		MQTTConnected: mqttUp,
		Availability:  availability,
		Counters: Counters{
			Published:        e.published.Load(),
			CommandsAccepted: e.commandsAccepted.Load(),
			CommandsRejected: e.commandsRejected.Load(),
			WriteTimeouts:    e.writeTimeouts.Load(),
			SessionFaults:    e.sessionFaults.Load(),
			DroppedEvents:    e.droppedEvents.Load(),
		},
	}

	e.stateMu.RLock()
	snap.TagCount = len(e.states)
	snap.Tags = make([]TagSnapshot, 0, len(e.states))
	for _, st := range e.states {
		ts := TagSnapshot{
			Path:         st.Def.Path,
			NodeID:       st.Def.NodeID,
			Type:         st.Def.Type.String(),
			Mode:         st.Def.Mode.String(),
			Phase:        st.Phase.String(),
			PendingWrite: st.Pending != nil,
			LastChange:   st.LastChange,
		}
		if st.HasValue {
			ts.Value = FormatValue(st.LastValue)
		}
		snap.Tags = append(snap.Tags, ts)
	}
	e.stateMu.RUnlock()

	sort.Slice(snap.Tags, func(i, j int) bool {
		return snap.Tags[i].Path < snap.Tags[j].Path
	})

	return snap
}

// Healthy reports whether both legs of the bridge are up.
func (e *Engine) Healthy() bool {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return e.opcState == StateConnected && e.mqttUp
}
