package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quizdesk/internal/domain"
)

// SessionSource is the session state published to the browser shell.
type SessionSource interface {
	Observe() (<-chan bool, func())
	Session() domain.Session
}

type SessionHandler struct {
	sessions SessionSource
	upgrader websocket.Upgrader
}

func NewSessionHandler(sessions SessionSource) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
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

type sessionPayload struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (h *SessionHandler) payload(authenticated bool) sessionPayload {
	p := sessionPayload{Authenticated: authenticated}
	if !authenticated {
		return p
	}
	if s := h.sessions.Session(); s.Identity != nil {
		p.Email = s.Identity.Email
		p.DisplayName = s.Identity.DisplayName
	}
	return p
}

// ServeWS streams every authenticated-state change as a "session" message.
// A client may send {"type":"status"} to get the current snapshot.
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.sessions.Observe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblocks the read loop below
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case authenticated, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "session", Payload: h.payload(authenticated)}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "status":
			reply = outboundMessage[any]{Type: "session", Payload: h.payload(h.sessions.Session().Authenticated)}
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if !enqueue(send, writerDone, reply) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has quit.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// NewMux routes the session stream and the health probe.
func NewMux(handler *SessionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Health)
	mux.HandleFunc("/ws/session", handler.ServeWS)
	return mux
}
