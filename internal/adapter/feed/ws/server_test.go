package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hivescan/internal/app/status"

	"github.com/gorilla/websocket"
)

func TestFeed_PushesSnapshots(t *testing.T) {
	reg := status.NewRegistry()
	reg.Set("000", status.WorkerStatus{WorkerID: "000", Username: "alpha", Message: "Scanning"})
	reg.SetOverseer(status.OverseerStatus{Message: "Queue 3"})

	s := NewServer(reg, 20*time.Millisecond)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f.Type != "status" || f.Snapshot.Workers["000"].Username != "alpha" || f.Snapshot.Overseer.Message != "Queue 3" {
			t.Fatalf("unexpected frame: %+v", f)
		}
	}
	if s.Clients() != 1 {
		t.Fatalf("expected one client, got %d", s.Clients())
	}
}
