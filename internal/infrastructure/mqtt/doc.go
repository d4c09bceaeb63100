// Package mqtt provides MQTT client connectivity for the bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the availability topic
//   - Connection health monitoring
//
// # Architecture
//
// The bridge mirrors OPC UA tag values onto MQTT state topics and
// accepts write commands from MQTT command topics. The broker decouples
// PLC access from the consumers (dashboards, historians, automations).
//
//	OPC UA server ↔ uabridge ↔ MQTT Broker ↔ Consumers
//
// The client itself publishes nothing: which topics carry what, and when
// the availability topic flips, is decided by the sync engine. Only the
// LWT is configured here so that a crash is indistinguishable from a
// reported outage.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	err = client.Subscribe(topics.CommandFilter(), 1,
//	    func(topic string, payload []byte, retained bool) error {
//	        log.Printf("Received: %s = %s (retained=%v)", topic, payload, retained)
//	        return nil
//	    })
//
//	client.PublishState(topics.State("Istwerte/Temp_Halle"), []byte("22.5"))
package mqtt
