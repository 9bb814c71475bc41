//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_RequestResponseRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "reset-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	err = client.Subscribe(Topics{}.AllResponses("audio"), 1, func(topic string, payload []byte) error {
		received <- LastSegment(topic) + ":" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	client.subMu.RLock()
	_, tracked := client.subscriptions[Topics{}.AllResponses("audio")]
	client.subMu.RUnlock()
	if !tracked {
		t.Error("subscription not tracked")
	}

	if err := client.PublishJSON(Topics{}.Response("audio", "req-1"), map[string]bool{"ok": true}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `req-1:{"ok":true}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for response")
	}

	if err := client.Unsubscribe(Topics{}.AllResponses("audio")); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	client.subMu.RLock()
	n := len(client.subscriptions)
	client.subMu.RUnlock()
	if n != 0 {
		t.Errorf("%d subscriptions tracked after unsubscribe", n)
	}
}

func TestIntegration_OnConnectCallback(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "reset-int-callback"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
}
