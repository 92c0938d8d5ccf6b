package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"

	"github.com/pdf-extractor/backend/internal/query"
)

// WebSocket message types for the submission event stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeStatus    = "status"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// EventsHandlerImpl streams a session's submission transitions
type EventsHandlerImpl struct {
	sessions SessionRegistry
	upgrader websocket.Upgrader
	logger   hclog.Logger
}

// NewEventsHandler creates a new WebSocket events handler
func NewEventsHandler(sessions SessionRegistry, logger hclog.Logger) *EventsHandlerImpl {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventsHandlerImpl{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		logger: logger,
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (w *wsConn) send(msgType, id string, payload interface{}) error {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(msg)
}

// HandleEvents upgrades to WebSocket, sends the current submission status
// and then every transition until either side goes away.
func (h *EventsHandlerImpl) HandleEvents(c echo.Context) error {
	sess, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	logger := h.logger.With("session", sess.ID)
	logger.Debug("event stream connected")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	conn := &wsConn{ws: ws}
	updates := sess.Flow.Subscribe(ctx)

	if err := conn.send(MsgTypeConnected, sess.ID, sess.Flow.Status()); err != nil {
		return nil
	}

	go h.readLoop(conn, cancel, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("event stream closed")
			return nil
		case st, ok := <-updates:
			if !ok {
				_ = conn.send(MsgTypeError, sess.ID, WSErrorResponse{Message: query.ErrFlowClosed.Error(), Code: "SESSION_CLOSED"})
				return nil
			}
			if err := conn.send(MsgTypeStatus, sess.ID, st); err != nil {
				logger.Debug("failed to send status", "error", err)
				return nil
			}
		}
	}
}

// readLoop answers pings and cancels the stream when the client leaves.
func (h *EventsHandlerImpl) readLoop(conn *wsConn, cancel context.CancelFunc, logger hclog.Logger) {
	defer cancel()
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("event stream read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			_ = conn.send(MsgTypePong, msg.ID, nil)
		default:
			_ = conn.send(MsgTypeError, msg.ID, WSErrorResponse{Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"})
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
