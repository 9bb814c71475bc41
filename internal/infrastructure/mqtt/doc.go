// Package mqtt provides MQTT client connectivity for the ReSet panel.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - A retained panel status with a Last Will for offline detection
//
// # Architecture
//
// When the settings daemons run on another host, a bridge re-exposes their
// D-Bus API over MQTT. The panel publishes requests and receives responses
// and forwarded signals through the broker:
//
//	Panel ↔ MQTT Broker ↔ Bridge ↔ ReSet daemon (D-Bus)
//
// Topic builders live in Topics; see topics.go for the hierarchy.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) whenever the broker is not on localhost
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllEvents("audio"), 1, handler)
package mqtt
