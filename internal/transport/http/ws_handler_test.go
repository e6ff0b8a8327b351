package http

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/quiztest"
)

func TestWebSocketSaveSubmitFlow(t *testing.T) {
	server, _ := newTestServer(t, runningExercise("ex-1", domain.ModeSynchronized))

	u := "ws" + server.URL[len("http"):] + "/ws?exerciseId=ex-1&participantId=p1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(typ string, i int) {
		t.Helper()
		msg := map[string]any{
			"type":    typ,
			"payload": map[string]any{"answers": quiztest.PatternSubmission("ex-1", "p1", i).Answers},
		}
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write %s: %v", typ, err)
		}
	}

	send("save", 1)
	_, payload := readNext(conn, t, "saved")
	if payload["submitted"] != false {
		t.Fatalf("expected unsubmitted entry, got %+v", payload)
	}

	send("submit", 0)
	_, payload = readNext(conn, t, "submitted")
	if payload["type"] != string(domain.SubmissionManual) {
		t.Fatalf("expected MANUAL submission, got %+v", payload)
	}

	send("save", 1)
	_, payload = readNext(conn, t, "error")
	if payload["code"] != "already_submitted" {
		t.Fatalf("expected already_submitted error, got %+v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer"}); err != nil {
		t.Fatalf("write unsupported: %v", err)
	}
	readNext(conn, t, "error")
}

func TestWebSocketRequiresParticipant(t *testing.T) {
	server, _ := newTestServer(t, runningExercise("ex-1", domain.ModeSynchronized))

	u := "ws" + server.URL[len("http"):] + "/ws?exerciseId=ex-1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400 response, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
