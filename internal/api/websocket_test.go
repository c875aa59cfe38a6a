package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valve/internal/protocol"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

func dialLocal(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding %q: %v", data, err)
	}
	return msg
}

func handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, `{"event":"request_device_info","passkey":"`+testPasskey+`"}`)
	msg := receive(t, conn)
	if msg["event"] != protocol.EventDeviceInfo || msg["device_id"] != testDeviceID {
		t.Fatalf("handshake reply = %v", msg)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_RejectsUntilHandshake(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialLocal(t, env)

	// None of these get a reply; if one did, it would arrive before device_info.
	send(t, conn, `{"event":"device_basic_info","data":{"user_id":"u1","device_id":"valve-01"}}`)
	send(t, conn, `{"event":"set_valve_basic","valve_data":{"set_angle":true,"angle":90}}`)
	send(t, conn, `{"event":"request_device_info","passkey":"guess"}`)
	send(t, conn, `not json`)

	handshake(t, conn)

	if got := env.store.Requested(); got != (valve.RequestedControl{}) {
		t.Errorf("unauthorised set_valve_basic applied: %+v", got)
	}
}

func TestWebSocket_BasicInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.UpdateObserved(func(s *valve.ObservedState) {
		s.IsOpen = true
		s.Angle = valve.OpenAngle
	})
	conn := dialLocal(t, env)
	handshake(t, conn)

	// Another device's request is ignored.
	send(t, conn, `{"event":"device_basic_info","data":{"user_id":"u1","device_id":"valve-99"}}`)
	send(t, conn, `{"event":"device_basic_info","data":{"user_id":"u1","device_id":"valve-01"}}`)

	msg := receive(t, conn)
	if msg["event"] != protocol.EventValveData {
		t.Fatalf("event = %v, want valve_data", msg["event"])
	}
	vd, ok := msg["get_valvedata"].(map[string]any)
	if !ok {
		t.Fatalf("get_valvedata missing in %v", msg)
	}
	if vd["is_open"] != true || vd["angle"] != float64(valve.OpenAngle) {
		t.Errorf("get_valvedata = %v", vd)
	}
}

func TestWebSocket_SetValveBasicClearsModes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.SetRequested(valve.RequestedControl{ScheduleMode: true, SensorMode: true})
	conn := dialLocal(t, env)
	handshake(t, conn)

	send(t, conn, `{"event":"set_valve_basic","valve_data":{"name":"valve","set_angle":true,"angle":0}}`)

	want := valve.RequestedControl{SetAngle: true, Angle: 0}
	waitFor(t, "requested control", func() bool { return env.store.Requested() == want })
}

func TestWebSocket_WifiRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := dialLocal(t, env)
	handshake(t, conn)

	send(t, conn, `{"event":"set_valve_wifi","wifi_data":{"ssid":"home","password":"secret"}}`)

	// The rejection is only counted; the connection stays usable.
	send(t, conn, `{"event":"device_basic_info","data":{"device_id":"valve-01"}}`)
	if msg := receive(t, conn); msg["event"] != protocol.EventValveData {
		t.Errorf("event = %v, want valve_data", msg["event"])
	}
}

func TestWebSocket_BroadcastReachesAuthorisedOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	authorised := dialLocal(t, env)
	dialLocal(t, env)
	handshake(t, authorised)

	waitFor(t, "both clients", func() bool { return env.srv.Hub().ClientCount() == 2 })

	doc := protocol.NewValveData(testDeviceID, time.Now(), env.store.Observed())
	if n := env.srv.Hub().Broadcast(doc); n != 1 {
		t.Errorf("Broadcast() reached %d clients, want 1", n)
	}
	if msg := receive(t, authorised); msg["event"] != protocol.EventValveData {
		t.Errorf("event = %v, want valve_data", msg["event"])
	}
	if n := env.srv.Hub().AuthorisedCount(); n != 1 {
		t.Errorf("AuthorisedCount() = %d, want 1", n)
	}
}

func TestHub_BroadcastAndClose(t *testing.T) {
	hub := NewHub(logging.Discard())
	a := &WSClient{hub: hub, send: make(chan []byte, 1)}
	b := &WSClient{hub: hub, send: make(chan []byte, 1)}
	a.authorised.Store(true)
	hub.Register(a)
	hub.Register(b)

	if n := hub.Broadcast(map[string]string{"event": "valve_data"}); n != 1 {
		t.Errorf("Broadcast() = %d, want 1", n)
	}
	if len(a.send) != 1 || len(b.send) != 0 {
		t.Errorf("queued a=%d b=%d, want 1 and 0", len(a.send), len(b.send))
	}

	// A full buffer drops instead of blocking.
	hub.Broadcast(map[string]string{"event": "valve_data"})

	hub.closeAll()
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after closeAll", hub.ClientCount())
	}
	// Unregister after closeAll must not double-close.
	hub.Unregister(a)
	a.trySend([]byte("late"))
}
