package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"assessment-service/internal/app"
	"assessment-service/internal/auth"
	"assessment-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.AttemptService
	identity auth.Provider
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, identity auth.Provider) *WSHandler {
	return &WSHandler{
		service:  service,
		identity: identity,
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

type selectPayload struct {
	Option string `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type navigatePayload struct {
	To app.Destination `json:"to"`
}

// ServeWS upgrades the request and runs one attempt for the lifetime of the
// connection. Closing the connection tears the attempt down.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	assessmentID := r.URL.Query().Get("assessmentId")
	if assessmentID == "" {
		http.Error(w, "missing assessmentId", http.StatusBadRequest)
		return
	}
	isRetake, _ := strconv.ParseBool(r.URL.Query().Get("retake"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	user, err := h.identity.Identify(r)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[navigatePayload]{Type: "navigate", Payload: navigatePayload{To: app.DestinationSignIn}})
		return
	}

	attempt, err := h.service.Start(r.Context(), assessmentID, user, isRetake)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		_ = conn.WriteJSON(outboundMessage[navigatePayload]{Type: "navigate", Payload: navigatePayload{To: app.EscapeFor(err)}})
		return
	}

	updates, cancel := attempt.Subscribe()
	defer cancel()
	defer h.service.Leave(r.Context(), attempt)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		navigated := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "state", Payload: snap}}
				if snap.Navigate != app.DestinationNone && !navigated {
					navigated = true
					msgs = append(msgs, outboundMessage[any]{Type: "navigate", Payload: navigatePayload{To: snap.Navigate}})
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					case <-writerDone:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(message string) bool {
		return enqueue(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		ok := true
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				ok = reply("invalid select payload")
			} else if err := attempt.Select(payload.Option); err != nil {
				ok = reply(err.Error())
			}
		case "submit":
			if _, err := attempt.Submit(); err != nil {
				ok = reply(err.Error())
			}
		default:
			ok = reply("unsupported message type")
		}
		if !ok {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer goroutine. It reports false once the writer
// has exited.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
