// Package brokertest starts an embedded MQTT broker for tests.
package brokertest

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/broker"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

// Start runs a broker on a free loopback port for the lifetime of t and
// returns an MQTT client configuration pointing at it.
func Start(t testing.TB) config.MQTTConfig {
	t.Helper()

	port := freePort(t)
	b, err := broker.New(config.EmbeddedBrokerConfig{Host: "127.0.0.1", Port: port}, config.MQTTAuthConfig{}, nil)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("broker.Start() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // best-effort shutdown in test cleanup
		b.Stop(context.Background())
	})

	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: "things-test-" + strings.ReplaceAll(t.Name(), "/", "-"),
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix:    "things",
		RequestTimeout: 5,
	}
}

func freePort(t testing.TB) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
