package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/infrastructure/monitoring"
	"github.com/replayio/devtools-sub005/internal/session"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	eventBuffer  = 256
)

// Message is one frame sent to an observer
type Message struct {
	Type    string         `json:"type"`
	Session string         `json:"session,omitempty"`
	Roots   []string       `json:"roots,omitempty"`
	Event   *session.Event `json:"event,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Handler streams node events of one session over a WebSocket
type Handler struct {
	sessions *session.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *session.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Observers are read-only, so any origin may watch
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the event stream route
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/sessions/:sid/events", h.HandleConnection)
}

// HandleConnection upgrades the request and forwards session events until
// the client leaves or the session closes
func (h *Handler) HandleConnection(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	events, cancel := s.Events(eventBuffer)
	defer cancel()

	info := s.Info()
	if err := h.send(conn, Message{Type: "hello", Session: info.ID, Roots: info.Roots}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readLoop(conn, done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				h.send(conn, Message{Type: "closed", Session: info.ID})
				h.closeFrame(conn, websocket.CloseNormalClosure, "session closed")
				return
			}
			if err := h.send(conn, Message{Type: "event", Event: &e}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop consumes client frames so that pongs and close frames are
// processed. Clients have nothing to say on this stream.
func (h *Handler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", "ignored")
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordWSMessage("out", msg.Type)
	}
	return nil
}

func (h *Handler) closeFrame(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
