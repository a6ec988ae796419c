package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

type Config struct {
	Events   int // eventos por esporte
	Shards   int
	PageSize int
	Tick     time.Duration
	Seed     int64 // zero usa o relógio
}

// Server simula o servidor do canal "match:<sport>" no protocolo Phoenix v2
type Server struct {
	log      *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader

	OnConnections func(n int) // métricas
	OnSent        func(event string)

	mu     sync.Mutex
	rng    *rand.Rand
	sports map[string]*sportState
	conns  map[string]*peer
	ticks  int
}

type sportState struct {
	events []events.LiveEvent
	nextID int64
}

// peer é uma conexão de cliente; joins guarda topic -> join_ref
type peer struct {
	id    string
	ws    *websocket.Conn
	wmu   sync.Mutex
	joins map[string]string
}

func (p *peer) send(m channel.Message) error {
	b, err := channel.EncodeFrame(m)
	if err != nil {
		return err
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return p.ws.WriteMessage(websocket.TextMessage, b)
}

// outbound é um frame a enviar depois de soltar o lock
type outbound struct {
	to  *peer
	msg channel.Message
}

func New(cfg Config, log *zap.Logger) *Server {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 20
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		log:      log,
		cfg:      cfg,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
		rng:      rand.New(rand.NewSource(seed)),
		sports:   make(map[string]*sportState),
		conns:    make(map[string]*peer),
	}
	for _, sp := range Sports {
		st := &sportState{nextID: 1}
		for i := 0; i < cfg.Events; i++ {
			st.events = append(st.events, newEvent(s.rng, sp, s.eventID(sp, st)))
		}
		s.sports[sp] = st
	}
	return s
}

// ids distintos entre esportes: 1xxxx soccer, 2xxxx basketball...
func (s *Server) eventID(sport string, st *sportState) int64 {
	base := int64(10000)
	for i, sp := range Sports {
		if sp == sport {
			base *= int64(i + 1)
		}
	}
	id := base + st.nextID
	st.nextID++
	return id
}

// HandleWS aceita a conexão e processa frames até o cliente sair
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	p := &peer{id: uuid.NewString(), ws: ws, joins: make(map[string]string)}

	s.mu.Lock()
	s.conns[p.id] = p
	n := len(s.conns)
	s.mu.Unlock()
	s.connections(n)
	s.log.Info("channel client connected", zap.String("client_id", p.id))

	defer func() {
		s.mu.Lock()
		delete(s.conns, p.id)
		var out []outbound
		for topic := range p.joins {
			out = append(out, s.leaveLocked(p, topic)...)
		}
		n := len(s.conns)
		s.mu.Unlock()
		s.flush(out)
		s.connections(n)
		_ = ws.Close()
		s.log.Info("channel client disconnected", zap.String("client_id", p.id))
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		in, err := channel.DecodeFrame(data)
		if err != nil {
			s.log.Warn("invalid frame", zap.Error(err))
			continue
		}
		s.flush(s.handle(p, in))
	}
}

func (s *Server) handle(p *peer, in channel.Message) []outbound {
	switch in.Event {
	case channel.EventHeartbeat:
		return s.reply(p, in, channel.StatusOK, struct{}{})
	case channel.EventJoin:
		return s.join(p, in)
	case channel.EventLeave:
		s.mu.Lock()
		out := s.leaveLocked(p, in.Topic)
		s.mu.Unlock()
		return append(s.reply(p, in, channel.StatusOK, struct{}{}), out...)
	case topics.GetEventCount:
		var params events.EventCountParams
		_ = json.Unmarshal(in.Payload, &params)
		if params.Sport == "" {
			params.Sport, _ = topics.SportOf(in.Topic)
		}
		s.mu.Lock()
		st, ok := s.sports[params.Sport]
		var count events.EventCount
		if ok {
			count = s.countLocked(st)
		}
		s.mu.Unlock()
		if !ok {
			return s.reply(p, in, channel.StatusError, map[string]string{"reason": "unknown sport"})
		}
		return s.reply(p, in, channel.StatusOK, count)
	}
	return s.reply(p, in, channel.StatusError, map[string]string{"reason": "unknown event"})
}

func (s *Server) join(p *peer, in channel.Message) []outbound {
	sport, ok := topics.SportOf(in.Topic)
	s.mu.Lock()
	st, known := s.sports[sport]
	if !ok || !known {
		s.mu.Unlock()
		return s.reply(p, in, channel.StatusError, map[string]string{"reason": "unmatched topic"})
	}

	var params events.JoinParams
	_ = json.Unmarshal(in.Payload, &params)
	page := params.Page
	if page < 1 {
		page = 1
	}

	reply := events.JoinReply{Events: s.pageLocked(st, page), EventCount: s.countLocked(st)}
	viewers := s.viewersLocked(in.Topic)
	p.joins[in.Topic] = in.JoinRef

	state := events.PresenceState{}
	for _, id := range viewers {
		state[id] = json.RawMessage("{}")
	}
	state[p.id] = json.RawMessage("{}")
	out := s.presenceDiffLocked(in.Topic, p, map[string]json.RawMessage{p.id: json.RawMessage("{}")}, nil)
	s.mu.Unlock()

	res := s.reply(p, in, channel.StatusOK, reply)
	if m, err := s.message(in.Topic, in.JoinRef, topics.PresenceState, state); err == nil {
		res = append(res, outbound{to: p, msg: m})
	}
	s.log.Info("client joined", zap.String("client_id", p.id), zap.String("topic", in.Topic), zap.Int("page", page))
	return append(res, out...)
}

// leaveLocked remove o peer do tópico e avisa os demais
func (s *Server) leaveLocked(p *peer, topic string) []outbound {
	if _, ok := p.joins[topic]; !ok {
		return nil
	}
	delete(p.joins, topic)
	return s.presenceDiffLocked(topic, p, nil, map[string]json.RawMessage{p.id: json.RawMessage("{}")})
}

func (s *Server) presenceDiffLocked(topic string, except *peer, joins, leaves map[string]json.RawMessage) []outbound {
	diff := events.PresenceDiff{Joins: joins, Leaves: leaves}
	if diff.Joins == nil {
		diff.Joins = map[string]json.RawMessage{}
	}
	if diff.Leaves == nil {
		diff.Leaves = map[string]json.RawMessage{}
	}
	return s.broadcastLocked(topic, except, topics.PresenceDiff, diff)
}

func (s *Server) viewersLocked(topic string) []string {
	var ids []string
	for id, c := range s.conns {
		if _, ok := c.joins[topic]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) pageLocked(st *sportState, page int) []events.LiveEvent {
	from := (page - 1) * s.cfg.PageSize
	if from >= len(st.events) {
		return []events.LiveEvent{}
	}
	to := from + s.cfg.PageSize
	if to > len(st.events) {
		to = len(st.events)
	}
	return append([]events.LiveEvent(nil), st.events[from:to]...)
}

func (s *Server) countLocked(st *sportState) events.EventCount {
	total := len(st.events)
	pages := (total + s.cfg.PageSize - 1) / s.cfg.PageSize
	return events.EventCount{TotalPages: &pages, TotalEvents: &total}
}

// broadcastLocked monta um frame por assinante do tópico com o join_ref de cada um
func (s *Server) broadcastLocked(topic string, except *peer, event string, payload any) []outbound {
	var out []outbound
	for _, c := range s.conns {
		ref, ok := c.joins[topic]
		if !ok || c == except {
			continue
		}
		m, err := s.message(topic, ref, event, payload)
		if err != nil {
			s.log.Warn("encode payload failed", zap.String("event", event), zap.Error(err))
			return nil
		}
		out = append(out, outbound{to: c, msg: m})
	}
	return out
}

func (s *Server) message(topic, joinRef, event string, payload any) (channel.Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return channel.Message{}, err
	}
	return channel.Message{JoinRef: joinRef, Topic: topic, Event: event, Payload: b}, nil
}

func (s *Server) reply(p *peer, in channel.Message, status string, response any) []outbound {
	m, err := channel.Reply(in, status, response)
	if err != nil {
		s.log.Warn("encode reply failed", zap.String("event", in.Event), zap.Error(err))
		return nil
	}
	return []outbound{{to: p, msg: m}}
}

func (s *Server) flush(out []outbound) {
	for _, o := range out {
		if err := o.to.send(o.msg); err != nil {
			s.log.Warn("ws write failed", zap.String("client_id", o.to.id), zap.Error(err))
			_ = o.to.ws.Close()
			continue
		}
		if s.OnSent != nil {
			s.OnSent(o.msg.Event)
		}
	}
}

// DisconnectAll derruba todas as conexões abertas, simulando uma queda de rede.
// Retorna quantas foram fechadas.
func (s *Server) DisconnectAll() int {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.conns))
	for _, p := range s.conns {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		_ = p.ws.Close()
	}
	if len(peers) > 0 {
		s.log.Info("dropped all channel clients", zap.Int("clients", len(peers)))
	}
	return len(peers)
}

func (s *Server) connections(n int) {
	if s.OnConnections != nil {
		s.OnConnections(n)
	}
}

// Run gera atualizações a cada Tick até ctx ser cancelado
func (s *Server) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Step()
		}
	}
}

// Step executa um ciclo: batch_update com parte dos eventos, e periodicamente
// shard_data com o conjunto completo de cada shard e a troca de um evento (event_removed + novo).
func (s *Server) Step() {
	s.mu.Lock()
	s.ticks++
	var out []outbound
	for _, sport := range Sports {
		out = append(out, s.stepSportLocked(sport, s.sports[sport])...)
	}
	s.mu.Unlock()
	s.flush(out)
}

func (s *Server) stepSportLocked(sport string, st *sportState) []outbound {
	topic := topics.Match(sport)
	var out []outbound

	var updates []events.EventUpdate
	for i := range st.events {
		if s.rng.Intn(3) != 0 {
			continue
		}
		st.events[i] = tick(s.rng, st.events[i], s.cfg.Tick.Seconds())
		ev := st.events[i]
		updates = append(updates, events.EventUpdate{EventID: ev.ID, Event: &ev})
	}

	if s.ticks%7 == 0 && len(st.events) > 0 {
		i := s.rng.Intn(len(st.events))
		gone := st.events[i].ID
		st.events = append(st.events[:i], st.events[i+1:]...)
		out = append(out, s.broadcastLocked(topic, nil, topics.EventRemoved, events.EventRemoved{EventID: gone})...)

		ev := newEvent(s.rng, sport, s.eventID(sport, st))
		st.events = append(st.events, ev)
		updates = append(updates, events.EventUpdate{EventID: ev.ID, Event: &ev})
	}

	if len(updates) > 0 {
		out = append(out, s.broadcastLocked(topic, nil, topics.BatchUpdate, events.BatchUpdate{Updates: updates})...)
	}

	if s.ticks%5 == 0 {
		for shard := 0; shard < s.cfg.Shards; shard++ {
			out = append(out, s.broadcastLocked(topic, nil, topics.ShardData, s.shardLocked(sport, st, shard))...)
		}
	}
	return out
}

// shardLocked reparte os eventos por id módulo Shards
func (s *Server) shardLocked(sport string, st *sportState, shard int) events.ShardData {
	data := events.ShardData{
		ShardID: events.FlexString(fmt.Sprintf("%s-shard-%d", sport, shard)),
		Events:  []events.LiveEvent{},
	}
	for _, ev := range st.events {
		id, _ := strconv.ParseInt(ev.ID.String(), 10, 64)
		if int(id%int64(s.cfg.Shards)) == shard {
			data.Events = append(data.Events, ev)
		}
	}
	return data
}

// Events devolve uma cópia dos eventos atuais do esporte
func (s *Server) Events(sport string) []events.LiveEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sports[sport]
	if !ok {
		return nil
	}
	return append([]events.LiveEvent(nil), st.events...)
}
