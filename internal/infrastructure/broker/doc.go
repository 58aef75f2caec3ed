// Package broker runs an in-process MQTT broker.
//
// Single-box installs do not need a separate Mosquitto: when
// mqtt.embedded.enabled is set, thingd starts this broker before the MQTT
// client connects, and the client points at it like any other broker.
// Tests use it the same way to exercise the MQTT bindings end to end.
//
// The broker is mochi-mqtt/server/v2 with a single TCP listener. With no
// credentials configured every client is accepted; with credentials set,
// clients must present the same username and password.
//
// # Usage
//
//	b, err := broker.New(cfg.MQTT.Embedded, cfg.MQTT.Auth, slogger)
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop(context.Background())
package broker
