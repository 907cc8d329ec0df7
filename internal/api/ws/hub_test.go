package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PushesAttendance(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	rec := models.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		PersonName: "Alice",
		Confidence: 0.8,
		MarkedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := hub.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt dto.WSEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != models.EventAttendanceMarked || evt.Record.PersonName != "Alice" || evt.SessionID != rec.SessionID {
		t.Errorf("event = %+v", evt)
	}
}

func TestHub_SessionFilter(t *testing.T) {
	hub, url := startHub(t)
	watched := uuid.New()
	conn := dial(t, url+"?sessionId="+watched.String())
	waitClients(t, hub, 1)

	_ = hub.Append(context.Background(), models.AttendanceRecord{SessionID: uuid.New(), PersonName: "Bob"})
	_ = hub.Append(context.Background(), models.AttendanceRecord{SessionID: watched, PersonName: "Carol"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt dto.WSEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Record.PersonName != "Carol" {
		t.Errorf("got event for %s, want only the watched session", evt.Record.PersonName)
	}
}

func TestHub_RejectsBadFilter(t *testing.T) {
	_, url := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?sessionId=nope", nil)
	if err == nil {
		t.Fatal("dial should fail")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("resp = %v", resp)
	}
}
