package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// client serializa escritas numa conexão (gorilla não aceita writers concorrentes)
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket de navegadores e suas inscrições por esporte
// subs: mapeia esporte para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe por esporte e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	defer conn.Close()
	h.log.Debug("ws client connected", zap.String("client_id", c.id))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.Sport]; !ok {
				h.subs[msg.Sport] = make(map[*client]struct{})
			}
			h.subs[msg.Sport][c] = struct{}{}
			h.mu.Unlock()
			ack, _ := json.Marshal(ClientMsg{Type: "subscribed", Sport: msg.Sport})
			_ = c.write(ack)
		case "unsubscribe":
			h.remove(c, msg.Sport)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	// Remove o cliente de todas as inscrições ao desconectar
	h.mu.Lock()
	for sport, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, sport)
		}
	}
	h.mu.Unlock()
	h.log.Debug("ws client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) remove(c *client, sport string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sport]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, sport)
		}
	}
}

// Broadcast envia o aviso para os inscritos no esporte e em "*"; retorna quantos receberam
func (h *Hub) Broadcast(n events.ViewChanged) int {
	h.mu.RLock()
	var targets []*client
	for c := range h.subs[n.Sport] {
		targets = append(targets, c)
	}
	for c := range h.subs[AllSports] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	b, err := json.Marshal(struct {
		Type string `json:"type"`
		events.ViewChanged
	}{Type: "view_changed", ViewChanged: n})
	if err != nil {
		return 0
	}
	sent := 0
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Subscribers conta clientes inscritos em um esporte
func (h *Hub) Subscribers(sport string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sport])
}
