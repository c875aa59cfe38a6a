//go:build integration

package mqtt

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-valve/internal/protocol"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "valvecore-int-connect"

	client, err := Connect(cfg, "valve-int-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "valvecore-int-device"
	device, err := Connect(cfg, "valve-int-02")
	if err != nil {
		t.Fatalf("Connect(device) error = %v", err)
	}
	defer device.Close()

	cfg.Broker.ClientID = "valvecore-int-cloud"
	cloud, err := Connect(cfg, "cloud")
	if err != nil {
		t.Fatalf("Connect(cloud) error = %v", err)
	}
	defer cloud.Close()

	received := make(chan []byte, 1)
	if err := device.SubscribeInbound(1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}); err != nil {
		t.Fatalf("SubscribeInbound() error = %v", err)
	}
	if n := device.SubscriptionCount(); n != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", n)
	}

	time.Sleep(100 * time.Millisecond)

	cmd := `{"event":"set_valve_basic","valve_data":{"set_angle":true,"angle":90}}`
	if err := cloud.Publish(device.Topics().CmdData(), []byte(cmd), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != cmd {
			t.Errorf("payload = %s, want %s", got, cmd)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "valvecore-int-status"
	device, err := Connect(cfg, "valve-int-03")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer device.Close()

	time.Sleep(200 * time.Millisecond)

	cfg.Broker.ClientID = "valvecore-int-watcher"
	watcher, err := Connect(cfg, "watcher")
	if err != nil {
		t.Fatalf("Connect(watcher) error = %v", err)
	}
	defer watcher.Close()

	var online atomic.Bool
	done := make(chan struct{}, 1)
	err = watcher.Subscribe(device.Topics().Status(), 1, func(_ string, payload []byte) error {
		var st protocol.StatusData
		if json.Unmarshal(payload, &st) == nil && st.Status == protocol.StatusOnline {
			online.Store(true)
		}
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("no retained status")
	}
	if !online.Load() {
		t.Error("retained status is not online")
	}
}
