package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msglog/msglog/internal/msglog"
)

const (
	frameEdit  = "edit"
	frameError = "error"
)

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// frame is a server-to-client websocket message.
type frame struct {
	Type   string             `json:"type"`
	Notice *msglog.EditNotice `json:"notice,omitempty"`
	Error  string             `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one websocket connection. Writes are serialized with mu; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(f)
}

// hub tracks connected websocket clients.
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*client]bool
	closed  bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, clients: map[*client]bool{}}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *hub) broadcast(f frame) {
	for _, c := range h.snapshot() {
		if err := c.send(f); err != nil {
			h.logger.Warn("websocket broadcast failed", "remote", c.conn.RemoteAddr().String(), "err", err)
			h.remove(c)
			c.conn.Close()
		}
	}
}

// closeAll disconnects every client and refuses new ones.
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = map[*client]bool{}
	h.mu.Unlock()

	for c := range clients {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}

// handleWebSocket reads Event frames from the client and applies them. Edits recorded by any client are broadcast to all clients; errors go back to the sender only.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageBytes)

	c := &client{conn: conn}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	defer func() {
		s.hub.remove(c)
		conn.Close()
	}()
	remote := conn.RemoteAddr().String()
	s.logger.Info("websocket connected", "remote", remote)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "remote", remote, "err", err)
			}
			break
		}

		var reply string
		var ev msglog.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			reply = "invalid event: " + err.Error()
		} else if _, err := s.apply(ev); err != nil {
			reply = err.Error()
		}
		if reply == "" {
			continue
		}
		if err := c.send(frame{Type: frameError, Error: reply}); err != nil {
			s.logger.Warn("websocket send failed", "remote", remote, "err", err)
			break
		}
	}
	s.logger.Info("websocket disconnected", "remote", remote)
}
