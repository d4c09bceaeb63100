// Package tags loads and indexes the tag definition file.
//
// The tag file is the sole source of the bridge's tag registry: a YAML
// document with two top-level sequences, "read" and "rw", each listing
// {path, node, type} entries. Tags under "read" flow PLC → MQTT only;
// tags under "rw" additionally accept MQTT command messages.
//
// The registry is built once at startup and never mutated afterwards.
// A malformed or missing tag file is fatal. Changing tags requires a
// process restart, which keeps the monitored-item set on the OPC UA
// session exactly in sync with the registry at all times.
//
// # Usage
//
//	reg, err := tags.Load("/etc/uabridge/tags.yaml")
//	if err != nil {
//	    return err // fatal at startup
//	}
//	def, ok := reg.ByPath("Sollwert/Temp_Halle")
package tags
