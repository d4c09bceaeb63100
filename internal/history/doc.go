// Package history records published tag values to InfluxDB.
//
// The history sink receives every value the bridge publishes to a
// state topic and writes it as a point in the "tag_values" measurement,
// tagged with the tag path and timestamped with the OPC UA source
// timestamp. Points are batched and flushed asynchronously so the
// bridge's publish path never blocks on the time-series backend.
//
// History is optional: when disabled in config the bridge runs without
// it and values are only visible on MQTT.
package history
