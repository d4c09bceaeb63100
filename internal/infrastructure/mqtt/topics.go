package mqtt

import "strings"

// Topics builds the bridge's MQTT topic names from the configured prefix.
//
// The topic scheme is flat and mirrors the tag paths:
//
//	<prefix>/state/<tag path>     retained tag values, PLC → MQTT
//	<prefix>/cmd/<tag path>       commands, MQTT → PLC (rw tags only)
//	<prefix>/meta/availability    retained "online"/"offline"
//
// Tag paths may contain slashes ("Sollwert/Temp_Halle"), so the command
// subscription uses a multi-level wildcard and CommandPath recovers the
// tag path from an incoming topic.
type Topics struct {
	// Prefix is the configured topic prefix, e.g. "opcua/line-3".
	Prefix string
}

// State returns the state topic for a tag path.
//
// Example: opcua/line-3/state/Istwerte/Temp_Halle
func (t Topics) State(path string) string {
	return t.Prefix + "/state/" + path
}

// Command returns the command topic for a tag path.
//
// Example: opcua/line-3/cmd/Sollwert/Temp_Halle
func (t Topics) Command(path string) string {
	return t.Prefix + "/cmd/" + path
}

// CommandFilter returns the subscription pattern matching every command topic.
//
// Pattern: <prefix>/cmd/#
func (t Topics) CommandFilter() string {
	return t.Prefix + "/cmd/#"
}

// CommandPath extracts the tag path from a command topic.
// Returns false if the topic is not under this prefix's command branch
// or the remaining path is empty.
func (t Topics) CommandPath(topic string) (string, bool) {
	prefix := t.Prefix + "/cmd/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	path := strings.Trim(topic[len(prefix):], "/")
	if path == "" {
		return "", false
	}
	return path, true
}

// Availability returns the retained availability topic.
//
// Example: opcua/line-3/meta/availability
func (t Topics) Availability() string {
	return t.Prefix + "/meta/availability"
}

// Availability payloads. The LWT uses PayloadOffline so a broker-detected
// crash looks the same to subscribers as a reported outage.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)
