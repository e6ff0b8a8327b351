package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-exercise-service/internal/app"
)

// WSHandler keeps one connection per participant for saving and submitting live answers.
type WSHandler struct {
	service  *app.QuizService
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets. Clients send "save" and "submit" messages carrying
// their answers and get back the stored submission or an error.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	exerciseID := r.URL.Query().Get("exerciseId")
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		participantID = r.Header.Get(participantHeader)
	}
	if exerciseID == "" || participantID == "" {
		http.Error(w, "missing exerciseId or participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	log := h.log.With("exercise", exerciseID, "participant", participantID)

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("ws write error", "error", err)
				// unblock the reader and discard whatever is still queued
				conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var submit bool
		switch inbound.Type {
		case "save":
		case "submit":
			submit = true
		default:
			send <- errorMessage("", "unsupported message type")
			continue
		}

		var req submissionRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil {
			send <- errorMessage("bad_request", "invalid submission payload")
			continue
		}
		sub, err := h.service.SaveOrSubmitLive(r.Context(), exerciseID, participantID, req.submission(), submit)
		if err != nil {
			_, code, known := classify(err)
			if !known {
				log.Error("live submission failed", "error", err)
				send <- errorMessage("", http.StatusText(http.StatusInternalServerError))
				continue
			}
			send <- errorMessage(code, err.Error())
			continue
		}
		typ := "saved"
		if submit {
			typ = "submitted"
		}
		send <- outboundMessage[any]{Type: typ, Payload: sub}
	}

	close(send)
	<-writerDone
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}
