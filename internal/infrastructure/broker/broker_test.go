package broker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startBroker(t *testing.T, creds config.MQTTAuthConfig) *Broker {
	t.Helper()
	b, err := New(config.EmbeddedBrokerConfig{Host: "127.0.0.1", Port: freePort(t)}, creds, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		b.Stop(context.Background())
	})
	return b
}

func connect(t *testing.T, b *Broker, id, user, pass string) (pahomqtt.Client, error) {
	t.Helper()
	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://" + b.Address()).
		SetClientID(id).
		SetConnectTimeout(2 * time.Second)
	if user != "" {
		opts.SetUsername(user)
		opts.SetPassword(pass)
	}
	c := pahomqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(3 * time.Second) {
		return nil, errors.New("connect timeout")
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	t.Cleanup(func() { c.Disconnect(100) })
	return c, nil
}

func TestBroker_StartStop(t *testing.T) {
	b := startBroker(t, config.MQTTAuthConfig{})

	if !b.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if b.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
	if err := b.Publish("things/x", nil, 0, false); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Publish() after Stop error = %v, want ErrNotRunning", err)
	}
}

func TestBroker_Address(t *testing.T) {
	b, err := New(config.EmbeddedBrokerConfig{Host: "127.0.0.1", Port: 18830}, config.MQTTAuthConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got, want := b.Address(), net.JoinHostPort("127.0.0.1", strconv.Itoa(18830)); got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	b := startBroker(t, config.MQTTAuthConfig{})

	c, err := connect(t, b, "sub", "", "")
	if err != nil {
		t.Fatalf("connect error = %v", err)
	}

	got := make(chan string, 1)
	tok := c.Subscribe("things/lamp/properties/on", 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		got <- string(m.Payload())
	})
	if !tok.WaitTimeout(2*time.Second) || tok.Error() != nil {
		t.Fatalf("Subscribe() error = %v", tok.Error())
	}

	if err := b.Publish("things/lamp/properties/on", []byte("true"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-got:
		if payload != "true" {
			t.Errorf("payload = %q, want true", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBroker_Credentials(t *testing.T) {
	b := startBroker(t, config.MQTTAuthConfig{Username: "thingd", Password: "secret"})

	tests := []struct {
		name    string
		user    string
		pass    string
		wantErr bool
	}{
		{name: "valid", user: "thingd", pass: "secret"},
		{name: "wrong password", user: "thingd", pass: "nope", wantErr: true},
		{name: "anonymous", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := connect(t, b, "client-"+tt.name, tt.user, tt.pass)
			if (err != nil) != tt.wantErr {
				t.Errorf("connect error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
