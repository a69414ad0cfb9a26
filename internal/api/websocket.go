package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the page event feed
const (
	// Client -> Server messages
	MsgTypePing      = "ping"
	MsgTypeAck       = "ack"
	MsgTypeKeepAlive = "keepalive"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeState     = "state"
	MsgTypeAlert     = "alert"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSAlertPayload carries one blocking alert
type WSAlertPayload struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// EventHandlerImpl pushes page state changes to the browser over a websocket
type EventHandlerImpl struct {
	sessions       SessionManager
	upgrader       websocket.Upgrader
	maxMessageSize int64
	logger         *slog.Logger
}

// NewEventHandler creates a new websocket event handler. maxMessageSize bounds
// client messages in bytes.
func NewEventHandler(sessions SessionManager, maxMessageSize int64, logger *slog.Logger) EventHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 64 * 1024
	}
	return &EventHandlerImpl{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMessageSize: maxMessageSize,
		logger:         logger.With("component", "websocket"),
	}
}

// HandleWebSocket upgrades the connection and streams the page state until
// either side goes away or the session is closed.
func (h *EventHandlerImpl) HandleWebSocket(c echo.Context) error {
	p, err := pageFor(c, h.sessions)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	h.logger.Debug("client connected", "session", p.ID())

	if err := h.send(ws, WSMessage{Type: MsgTypeConnected, ID: p.ID(), Timestamp: time.Now().UnixMilli()}); err != nil {
		return nil
	}

	states, cancel := p.Subscribe()
	defer cancel()

	replies := make(chan WSMessage, 8)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ws, states, replies, done)
	}()

	ws.SetReadLimit(h.maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		h.sessions.TouchSession(p.ID())
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection error", "session", p.ID(), "error", err)
			}
			break
		}

		var reply *WSMessage
		switch msg.Type {
		case MsgTypePing:
			// An open page counts as activity for idle cleanup
			h.sessions.TouchSession(p.ID())
			reply = &WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()}
		case MsgTypeAck:
			p.AckAlert()
		case MsgTypeKeepAlive:
			h.sessions.TouchSession(p.ID())
		default:
			reply = errorMessage("Unknown message type: "+msg.Type, "INVALID_TYPE")
		}

		if reply != nil {
			select {
			case replies <- *reply:
			case <-done:
			}
		}
	}

	close(done)
	wg.Wait()
	h.logger.Debug("client disconnected", "session", p.ID())
	return nil
}

// writeLoop owns every write to ws. It ends when the reader is done or the
// page closes its subscription.
func (h *EventHandlerImpl) writeLoop(ws *websocket.Conn, states <-chan models.PageState, replies <-chan WSMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var lastAlert int64
	for {
		select {
		case st, ok := <-states:
			if !ok {
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				ws.Close()
				return
			}
			if err := h.send(ws, WSMessage{Type: MsgTypeState, Payload: mustJSON(st), Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
			for _, alert := range newAlerts(st.Alerts, lastAlert) {
				payload := WSAlertPayload{ID: alert.ID, Message: alert.Message}
				if err := h.send(ws, WSMessage{Type: MsgTypeAlert, Payload: mustJSON(payload), Timestamp: time.Now().UnixMilli()}); err != nil {
					return
				}
				lastAlert = alert.ID
			}
		case msg := <-replies:
			if err := h.send(ws, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// newAlerts returns the pending alerts with an ID above lastSent
func newAlerts(alerts []models.Alert, lastSent int64) []models.Alert {
	for i, a := range alerts {
		if a.ID > lastSent {
			return alerts[i:]
		}
	}
	return nil
}

func (h *EventHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		h.logger.Debug("write failed", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

func errorMessage(message, code string) *WSMessage {
	return &WSMessage{
		Type:      MsgTypeError,
		Payload:   mustJSON(WSErrorResponse{Message: message, Code: code}),
		Timestamp: time.Now().UnixMilli(),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
