package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config do cliente. Zeros usam os defaults.
type Config struct {
	URL               string
	JoinTimeout       time.Duration
	PushTimeout       time.Duration
	HeartbeatInterval time.Duration
	ReconnectWait     time.Duration
	WriteTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// JoinResult é a resposta "ok" de um join. Seq é a posição da resposta na ordem de chegada:
// mensagens do tópico com Seq menor chegaram antes do join.
type JoinResult struct {
	JoinRef  string
	Response json.RawMessage
	Seq      uint64
}

type result struct {
	payload replyPayload
	seq     uint64
	err     error
}

// Client fala o protocolo de canais Phoenix (v2) sobre gorilla/websocket.
// Respostas são correlacionadas por ref dentro do próprio cliente, então Join/Push
// podem ser chamados de quem consome Messages() sem travar a leitura.
type Client struct {
	cfg Config
	log *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	lost    chan struct{}
	pending map[string]chan result
	joined  map[string]string // topic -> join_ref
	closed  bool

	ref      atomic.Uint64
	seq      atomic.Uint64
	inbox    chan Message
	messages chan Message
	done     chan struct{}

	OnFrame     func(Message) // opcional: chamado para cada mensagem entregue (ex.: espelho Kafka)
	OnReconnect func()        // opcional: chamado por Start a cada reconexão (não na primeira conexão)

	// OnJoinReply é chamado com cada resposta "ok" de join, na mesma ordem de leitura de OnFrame
	OnJoinReply func(topic, joinRef string, response json.RawMessage)
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:      cfg.withDefaults(),
		log:      log,
		pending:  make(map[string]chan result),
		joined:   make(map[string]string),
		inbox:    make(chan Message),
		messages: make(chan Message),
		done:     make(chan struct{}),
	}
	go c.pump()
	return c
}

// Messages entrega as mensagens de canal (tudo que não é resposta de request) na ordem de chegada
func (c *Client) Messages() <-chan Message { return c.messages }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect abre a conexão e inicia leitura e heartbeat
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return err
}

func (c *Client) connect(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.conn != nil {
		lost := c.lost
		c.mu.Unlock()
		return lost, nil
	}
	c.mu.Unlock()

	endpoint, err := socketURL(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	lost := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	c.conn, c.lost = conn, lost
	c.mu.Unlock()

	go c.readLoop(conn, lost)
	go c.heartbeatLoop(conn, lost)

	c.log.Info("connected to live odds channel", zap.String("url", endpoint))
	return lost, nil
}

// Start mantém a conexão viva: reconecta após ReconnectWait sempre que ela cai.
// Tópicos não são refeitos aqui; quem precisa deles usa OnReconnect.
// Retorna quando ctx é cancelado.
func (c *Client) Start(ctx context.Context) error {
	connected := false
	for {
		lost, err := c.connect(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			c.log.Warn("channel connect failed", zap.Error(err))
		} else {
			if connected && c.OnReconnect != nil {
				c.OnReconnect()
			}
			connected = true
			select {
			case <-ctx.Done():
				c.log.Info("context canceled, stopping channel client")
				return c.Close()
			case <-lost:
				c.log.Warn("channel connection closed")
			}
		}

		select {
		case <-ctx.Done():
			c.log.Info("context canceled, stopping channel client")
			return c.Close()
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

// Join entra no tópico. Resposta de erro vira *ReplyError; sem resposta dentro de
// JoinTimeout retorna ErrTimeout.
func (c *Client) Join(ctx context.Context, topic string, params any) (JoinResult, error) {
	ref := c.nextRef()
	res, err := c.request(ctx, Message{JoinRef: ref, Ref: ref, Topic: topic, Event: EventJoin}, params, c.cfg.JoinTimeout)
	if err != nil {
		return JoinResult{}, err
	}
	if res.Status != StatusOK {
		return JoinResult{}, &ReplyError{Topic: topic, Event: EventJoin, Status: res.Status, Response: res.Response}
	}

	c.mu.Lock()
	c.joined[topic] = ref
	c.mu.Unlock()
	return JoinResult{JoinRef: ref, Response: res.Response, Seq: res.seq}, nil
}

// Push envia um comando no tópico e espera a resposta
func (c *Client) Push(ctx context.Context, topic, event string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	joinRef := c.joined[topic]
	c.mu.Unlock()

	res, err := c.request(ctx, Message{JoinRef: joinRef, Ref: c.nextRef(), Topic: topic, Event: event}, params, c.cfg.PushTimeout)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusOK {
		return nil, &ReplyError{Topic: topic, Event: event, Status: res.Status, Response: res.Response}
	}
	return res.Response, nil
}

// Leave sai do tópico. O tópico deixa de ser considerado joined antes da resposta.
func (c *Client) Leave(ctx context.Context, topic string) error {
	c.mu.Lock()
	joinRef, ok := c.joined[topic]
	delete(c.joined, topic)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	res, err := c.request(ctx, Message{JoinRef: joinRef, Ref: c.nextRef(), Topic: topic, Event: EventLeave}, nil, c.cfg.PushTimeout)
	if err != nil {
		return err
	}
	if res.Status != StatusOK {
		return &ReplyError{Topic: topic, Event: EventLeave, Status: res.Status, Response: res.Response}
	}
	return nil
}

// JoinRef retorna a join_ref ativa do tópico
func (c *Client) JoinRef(topic string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.joined[topic]
	return ref, ok
}

// Close encerra a conexão; requests pendentes falham com ErrClosed
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPending(ErrClosed)
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Client) request(ctx context.Context, m Message, params any, timeout time.Duration) (reply, error) {
	payload := []byte("{}")
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return reply{}, fmt.Errorf("encode %s params: %w", m.Event, err)
		}
		payload = b
	}
	m.Payload = payload

	wait := make(chan result, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reply{}, ErrClosed
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return reply{}, ErrNotConnected
	}
	c.pending[m.Ref] = wait
	c.mu.Unlock()

	if err := c.write(conn, m); err != nil {
		c.forget(m.Ref)
		return reply{}, fmt.Errorf("send %s: %w", m.Event, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-wait:
		return reply{replyPayload: r.payload, seq: r.seq}, r.err
	case <-timer.C:
		c.forget(m.Ref)
		return reply{}, fmt.Errorf("%w: %s %s after %s", ErrTimeout, m.Event, m.Topic, timeout)
	case <-ctx.Done():
		c.forget(m.Ref)
		return reply{}, ctx.Err()
	}
}

// reply é um phx_reply já decodificado, com a ordem de chegada
type reply struct {
	replyPayload
	seq uint64
}

func (c *Client) forget(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

// failPending precisa de c.mu
func (c *Client) failPending(err error) {
	for ref, ch := range c.pending {
		ch <- result{err: err}
		delete(c.pending, ref)
	}
}

func (c *Client) write(conn *websocket.Conn, m Message) error {
	b, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) readLoop(conn *websocket.Conn, lost chan struct{}) {
	defer c.dropConnection(conn, lost)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.log.Warn("read message failed", zap.Error(err))
				}
			}
			return
		}

		m, err := DecodeFrame(data)
		if err != nil {
			c.log.Warn("invalid frame", zap.Error(err))
			continue
		}
		m.ReceivedAt = time.Now()
		m.Seq = c.seq.Add(1)

		if m.Event == EventReply {
			c.resolve(m) // sem pendente: heartbeat ou request já expirado
			continue
		}
		c.deliver(m)
	}
}

func (c *Client) resolve(m Message) bool {
	c.mu.Lock()
	wait, ok := c.pending[m.Ref]
	delete(c.pending, m.Ref)
	c.mu.Unlock()
	if !ok {
		return false
	}

	var p replyPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		wait <- result{err: fmt.Errorf("decode reply: %w", err)}
		return true
	}
	// join_ref == ref identifica a resposta de um phx_join
	if p.Status == StatusOK && m.JoinRef != "" && m.JoinRef == m.Ref && c.OnJoinReply != nil {
		c.OnJoinReply(m.Topic, m.JoinRef, p.Response)
	}
	wait <- result{payload: p, seq: m.Seq}
	return true
}

// dropConnection falha os requests pendentes e avisa cada tópico com um phx_error sintético
func (c *Client) dropConnection(conn *websocket.Conn, lost chan struct{}) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.failPending(ErrNotConnected)
	joined := c.joined
	c.joined = make(map[string]string)
	c.mu.Unlock()

	for topic, ref := range joined {
		c.deliver(Message{JoinRef: ref, Topic: topic, Event: EventError, Payload: json.RawMessage(`{"reason":"disconnected"}`), ReceivedAt: time.Now(), Seq: c.seq.Add(1)})
	}
	close(lost)
}

func (c *Client) deliver(m Message) {
	if c.OnFrame != nil {
		c.OnFrame(m)
	}
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

// pump desacopla a leitura do consumidor com uma fila sem limite, preservando a ordem
func (c *Client) pump() {
	var queue []Message
	for {
		var out chan<- Message
		var head Message
		if len(queue) > 0 {
			out, head = c.messages, queue[0]
		}
		select {
		case m := <-c.inbox:
			queue = append(queue, m)
		case out <- head:
			queue = queue[1:]
		case <-c.done:
			return
		}
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, lost chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-lost:
			return
		case <-ticker.C:
			m := Message{Ref: c.nextRef(), Topic: TopicPhoenix, Event: EventHeartbeat}
			if err := c.write(conn, m); err != nil {
				c.log.Debug("failed to send heartbeat", zap.Error(err))
			}
		}
	}
}

// socketURL garante o parâmetro vsn=2.0.0 exigido pelo serializer v2
func socketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	q := u.Query()
	if q.Get("vsn") == "" {
		q.Set("vsn", "2.0.0")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
