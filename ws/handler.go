// Package ws is the realtime transport adapter: it turns websocket messages
// into session calls and session events into websocket messages.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scriv.town/session"
)

// How long teardown may take once a client stops or drops. Covers the
// bridge drain plus one archive attempt.
const teardownTimeout = 30 * time.Second

type clientMessage struct {
	Event        string `json:"event"`
	LanguageCode string `json:"language_code,omitempty"`
	Chunk        string `json:"chunk,omitempty"`
}

type serverMessage struct {
	Event        string `json:"event"`
	SessionID    string `json:"session_id,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	Text         string `json:"text,omitempty"`
	IsPartial    bool   `json:"is_partial,omitempty"`
	ArchiveRef   string `json:"archive_ref,omitempty"`
	Message      string `json:"message,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Handler upgrades connections and runs one read loop per client. Writes
// are serialized per connection, so the session's event pump and the read
// loop's replies never interleave mid-frame.
type Handler struct {
	Manager *session.Manager

	logger *log.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHandler(logger *log.Logger) *Handler {
	return &Handler{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "error", err)
		return
	}

	connID := uuid.NewString()
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()

	h.logger.Info("client connected", "conn", connID, "remote", r.RemoteAddr)
	c.send(serverMessage{Event: "connected", SessionID: connID})

	h.readLoop(connID, c)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	h.Manager.Disconnect(ctx, connID)
	cancel()

	h.mu.Lock()
	delete(h.clients, connID)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info("client disconnected", "conn", connID)
}

func (h *Handler) readLoop(connID string, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read", "conn", connID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(serverMessage{Event: "error", Message: "malformed message"})
			continue
		}

		h.dispatch(connID, c, msg)
	}
}

func (h *Handler) dispatch(connID string, c *client, msg clientMessage) {
	switch msg.Event {
	case "start_transcription":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		_, err := h.Manager.Start(ctx, connID, msg.LanguageCode)
		cancel()
		if err != nil {
			c.send(serverMessage{Event: "error", Message: startErrorMessage(err)})
		}

	case "audio_chunk":
		frame, err := base64.StdEncoding.DecodeString(msg.Chunk)
		if err != nil {
			c.send(serverMessage{Event: "error", Message: "invalid base64 audio chunk"})
			return
		}
		if err := h.Manager.Frame(connID, frame); err != nil {
			c.send(serverMessage{Event: "error", Message: frameErrorMessage(err)})
		}

	case "stop_transcription":
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		err := h.Manager.Stop(ctx, connID)
		cancel()
		if err != nil {
			c.send(serverMessage{Event: "error", Message: stopErrorMessage(err)})
		}

	default:
		c.send(serverMessage{Event: "error", Message: "unknown event: " + msg.Event})
	}
}

// Emit implements session.Emitter. Events for a connection are delivered in
// call order; emits for connections that already dropped are discarded.
func (h *Handler) Emit(connID string, ev session.TransportEvent) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	var msg serverMessage
	switch ev.Kind {
	case session.EventStarted:
		msg = serverMessage{
			Event:        "transcription_started",
			SessionID:    connID,
			LanguageCode: ev.Language,
		}
	case session.EventResult:
		msg = serverMessage{
			Event:     "transcription_result",
			Text:      ev.Text,
			IsPartial: !ev.IsFinal,
		}
	case session.EventStopped:
		msg = serverMessage{
			Event:      "transcription_stopped",
			ArchiveRef: ev.ArchiveRef,
		}
	case session.EventError:
		msg = serverMessage{Event: "error", Message: ev.Message}
	default:
		return
	}

	if err := c.send(msg); err != nil {
		h.logger.Debug("emit", "conn", connID, "event", string(ev.Kind), "error", err)
	}
}

func startErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return "transcription already active for this connection"
	case errors.Is(err, session.ErrSessionStartFailed):
		return "could not start transcription: " + err.Error()
	default:
		return err.Error()
	}
}

func frameErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotActive):
		return "no active transcription session"
	case errors.Is(err, session.ErrSessionClosed):
		return "transcription session already closed"
	default:
		return "audio chunk not processed: " + err.Error()
	}
}

func stopErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotActive):
		return "no active transcription session"
	case errors.Is(err, session.ErrSessionClosed):
		return "transcription session already closed"
	default:
		return err.Error()
	}
}
