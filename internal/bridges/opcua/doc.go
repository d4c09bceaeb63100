// Package opcua bridges an OPC UA server onto MQTT topics.
//
// Two collaborating pieces live here:
//
//   - Session owns the OPC UA connection: endpoint discovery, security,
//     one subscription covering every registry node, failure detection
//     and reconnection with exponential backoff. It emits Events.
//
//   - Engine consumes session events and MQTT commands through a single
//     bounded queue and keeps the per-tag synchronization state: what was
//     last published, whether a write is awaiting confirmation, and the
//     combined availability of both connections.
//
// # Data flow
//
//	PLC ──notification──▶ Session ──Event──▶ Engine ──publish──▶ <prefix>/state/<path>
//	<prefix>/cmd/<path> ──command──▶ Engine ──Write──▶ Session ──▶ PLC
//
// A write is not considered done when the server accepts it; it is done
// when the subscription delivers a notification for the written node.
// Until then the tag is write-pending, and whatever value that
// notification carries wins.
//
// # Availability
//
// The retained topic <prefix>/meta/availability is "online" only while
// both the OPC UA session and the broker connection are up. The MQTT
// LWT publishes the same "offline" payload on a crash, so consumers
// cannot tell an orderly outage from a dead bridge, which is the point.
package opcua
