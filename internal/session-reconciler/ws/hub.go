package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 2 * time.Second

// Hub mantém as conexões WebSocket e replica a visão do reconciliador
// para todas elas
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	snapshot func() interface{}

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// conn serializa as escritas: gorilla/websocket não aceita escritores concorrentes
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// NewHub recebe a política de origem e a função que produz a visão atual
func NewHub(allowOrigin func(r *http.Request) bool, snapshot func() interface{}, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		snapshot: snapshot,
		conns:    make(map[*conn]struct{}),
	}
}

// OriginChecker aceita as origens listadas; "*" libera qualquer uma
func OriginChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleWS envia a visão atual na conexão e depois responde snapshot/ping
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws}
	defer ws.Close()

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("ws client connected", zap.String("client_id", c.id), zap.String("remote", r.RemoteAddr))
	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		h.log.Debug("ws client disconnected", zap.String("client_id", c.id))
	}()

	h.sendSnapshot(c)
	for {
		var msg ClientMsg
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "snapshot":
			h.sendSnapshot(c)
		case "ping":
			b, _ := json.Marshal(ServerMsg{Type: "pong"})
			_ = c.write(b)
		}
	}
}

func (h *Hub) sendSnapshot(c *conn) {
	if h.snapshot == nil {
		return
	}
	b, err := json.Marshal(ServerMsg{Type: "view", Payload: h.snapshot()})
	if err != nil {
		h.log.Warn("ws snapshot marshal", zap.Error(err))
		return
	}
	_ = c.write(b)
}

// Broadcast envia a visão para todos os clientes conectados
func (h *Hub) Broadcast(view interface{}) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(ServerMsg{Type: "view", Payload: view})
	if err != nil {
		h.log.Warn("ws broadcast marshal", zap.Error(err))
		return
	}
	for _, c := range conns {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("client_id", c.id), zap.Error(err))
		}
	}
}

// Clients devolve quantas conexões estão abertas
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
