package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/model"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

var (
	ErrNotSubscribed = errors.New("session: no active subscription")
	ErrStopped       = errors.New("session: not running")
)

// Channel é o que a sessão usa do adaptador de canal
type Channel interface {
	Join(ctx context.Context, topic string, params any) (channel.JoinResult, error)
	Push(ctx context.Context, topic, event string, params any) (json.RawMessage, error)
	Leave(ctx context.Context, topic string) error
	Messages() <-chan channel.Message
}

type State string

const (
	StateIdle     State = "idle"
	StateJoining  State = "joining"
	StateJoined   State = "joined"
	StateDegraded State = "degraded"
)

// Status descreve a inscrição atual
type Status struct {
	Sport     string `json:"sport"`
	Page      int    `json:"page"`
	Topic     string `json:"topic"`
	JoinRef   string `json:"joinRef,omitempty"`
	State     State  `json:"state"`
	LastError string `json:"lastError,omitempty"`
}

// ChannelJoinError: o join falhou. A sessão fica degradada com o último estado conhecido
// e só tenta de novo numa nova inscrição.
type ChannelJoinError struct {
	Topic string
	Err   error
}

func (e *ChannelJoinError) Error() string {
	return fmt.Sprintf("join %s: %v", e.Topic, e.Err)
}

func (e *ChannelJoinError) Unwrap() error { return e.Err }

type Options struct {
	CountRefreshInterval time.Duration // zero desliga o refresh periódico
}

// Session é a fila única de processamento: comandos (subscribe, refresh) e mensagens do canal
// são tratados um de cada vez pelo loop de Run, sem intercalação.
type Session struct {
	ch       Channel
	presence *presence.Tracker
	disp     *Dispatcher
	log      *zap.Logger
	opts     Options

	OnJoinError func() // métricas

	cmds    chan command
	running chan struct{}
	stopped chan struct{}

	// since é o Seq da resposta do join atual; só o loop de Run lê e escreve
	since uint64

	mu         sync.RWMutex
	status     Status
	pagination model.PaginationState
	joinCancel context.CancelFunc
}

type command struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

func New(ch Channel, disp *Dispatcher, opts Options, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ch:       ch,
		presence: disp.Presence,
		disp:     disp,
		log:      log,
		opts:     opts,
		cmds:     make(chan command),
		running:  make(chan struct{}),
		stopped:  make(chan struct{}),
		status:   Status{State: StateIdle},
	}
}

// Run processa a fila até ctx ser cancelado
func (s *Session) Run(ctx context.Context) error {
	close(s.running)
	defer close(s.stopped)

	var tick <-chan time.Time
	if s.opts.CountRefreshInterval > 0 {
		t := time.NewTicker(s.opts.CountRefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("context canceled, stopping session")
			return nil
		case cmd := <-s.cmds:
			cmd.done <- cmd.run(cmd.ctx)
		case m := <-s.ch.Messages():
			s.handle(m)
		case <-tick:
			if _, err := s.refreshCount(ctx); err != nil && !errors.Is(err, ErrNotSubscribed) {
				s.log.Warn("event count refresh failed", zap.Error(err))
			}
		}
	}
}

// Subscribe troca a inscrição: sai do tópico atual (descartando o que chegar dele),
// entra em match:<sport> com a página pedida e inicializa a store com o snapshot do join.
// Um join ainda em andamento é cancelado.
func (s *Session) Subscribe(ctx context.Context, sport string, page int) error {
	s.mu.Lock()
	if s.joinCancel != nil {
		s.joinCancel()
	}
	s.mu.Unlock()

	return s.exec(ctx, func(ctx context.Context) error {
		return s.subscribe(ctx, sport, page)
	})
}

// Rejoin refaz a última inscrição pedida (mesmo esporte e página), por exemplo depois que
// o transporte caiu e voltou. Sem inscrição anterior retorna ErrNotSubscribed.
func (s *Session) Rejoin(ctx context.Context) error {
	st := s.Status()
	if st.Topic == "" {
		return ErrNotSubscribed
	}
	s.log.Info("rejoining subscription", zap.String("topic", st.Topic), zap.Int("page", st.Page))
	return s.Subscribe(ctx, st.Sport, st.Page)
}

// RefreshCount pede get_event_count e espelha a paginação
func (s *Session) RefreshCount(ctx context.Context) (model.PaginationState, error) {
	var out model.PaginationState
	err := s.exec(ctx, func(ctx context.Context) error {
		p, err := s.refreshCount(ctx)
		out = p
		return err
	})
	return out, err
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Pagination() model.PaginationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

func (s *Session) exec(ctx context.Context, run func(context.Context) error) error {
	select {
	case <-s.running:
	default:
		return ErrStopped
	}
	cmd := command{ctx: ctx, run: run, done: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case err := <-cmd.done:
		return err
	case <-s.stopped:
		return ErrStopped
	}
}

func (s *Session) subscribe(ctx context.Context, sport string, page int) error {
	topic := topics.Match(sport)
	prev := s.Status()

	// joinCancel precisa existir antes do estado Joining ficar visível
	joinCtx, cancel := context.WithCancel(ctx)
	defer func() {
		s.mu.Lock()
		s.joinCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	// desmonta a inscrição anterior antes de qualquer coisa: a partir daqui
	// mensagens do tópico antigo são descartadas em handle
	s.mu.Lock()
	s.joinCancel = cancel
	s.status = Status{Sport: sport, Page: page, Topic: topic, State: StateJoining}
	s.mu.Unlock()
	if prev.Topic != "" && prev.State != StateDegraded {
		if err := s.ch.Leave(joinCtx, prev.Topic); err != nil {
			s.log.Warn("leave failed", zap.String("topic", prev.Topic), zap.Error(err))
		}
	}
	s.presence.Reset()

	res, err := s.ch.Join(joinCtx, topic, events.JoinParams{Page: page})
	if err != nil {
		return s.degrade(topic, err)
	}

	var reply events.JoinReply
	if len(res.Response) > 0 {
		if err := json.Unmarshal(res.Response, &reply); err != nil {
			return s.degrade(topic, fmt.Errorf("decode join reply: %w", err))
		}
	}

	// o que ainda estava na fila antes da resposta pertence à inscrição anterior,
	// mesmo quando o tópico é o mesmo (troca de página)
	s.since = res.Seq
	r := s.disp.Initialize(reply)

	s.mu.Lock()
	s.status = Status{Sport: sport, Page: page, Topic: topic, JoinRef: res.JoinRef, State: StateJoined}
	s.pagination = model.PaginationState{CurrentPage: page}
	mirrorCount(&s.pagination, reply.EventCount)
	s.mu.Unlock()

	s.log.Info("subscribed", zap.String("topic", topic), zap.Int("page", page), zap.Int("events", r.Inserted+r.Replaced))
	return nil
}

func (s *Session) degrade(topic string, err error) error {
	jerr := &ChannelJoinError{Topic: topic, Err: err}
	s.mu.Lock()
	s.status.State = StateDegraded
	s.status.JoinRef = ""
	s.status.LastError = jerr.Error()
	s.mu.Unlock()

	s.log.Warn("channel join failed, keeping last known state", zap.String("topic", topic), zap.Error(err))
	if s.OnJoinError != nil {
		s.OnJoinError()
	}
	return jerr
}

func (s *Session) refreshCount(ctx context.Context) (model.PaginationState, error) {
	st := s.Status()
	if st.State != StateJoined {
		return s.Pagination(), ErrNotSubscribed
	}
	resp, err := s.ch.Push(ctx, st.Topic, topics.GetEventCount, events.EventCountParams{Sport: st.Sport, Page: st.Page})
	if err != nil {
		return s.Pagination(), fmt.Errorf("get_event_count: %w", err)
	}
	var c events.EventCount
	if err := json.Unmarshal(resp, &c); err != nil {
		return s.Pagination(), fmt.Errorf("decode event count: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mirrorCount(&s.pagination, c)
	return s.pagination, nil
}

// handle roda no loop: descarta mensagens de inscrições antigas e aplica as demais
func (s *Session) handle(m channel.Message) {
	st := s.Status()
	if st.State != StateJoined || m.Topic != st.Topic || m.Seq < s.since || (m.JoinRef != "" && m.JoinRef != st.JoinRef) {
		if s.disp.OnDropped != nil {
			s.disp.OnDropped(m.Event, ReasonStale)
		}
		s.log.Debug("dropping message from stale subscription",
			zap.String("topic", m.Topic), zap.String("event", m.Event), zap.String("join_ref", m.JoinRef))
		return
	}

	switch m.Event {
	case channel.EventError, channel.EventClose:
		s.mu.Lock()
		s.status.State = StateDegraded
		s.status.JoinRef = ""
		s.status.LastError = fmt.Sprintf("channel %s on %s", m.Event, m.Topic)
		s.mu.Unlock()
		s.log.Warn("channel subscription lost, keeping last known state", zap.String("topic", m.Topic), zap.String("event", m.Event))
		return
	}

	_ = s.disp.Dispatch(m) // erros já registrados pelo dispatcher
}

func mirrorCount(p *model.PaginationState, c events.EventCount) {
	if c.TotalPages != nil {
		p.TotalPages = *c.TotalPages
	}
	if c.TotalEvents != nil {
		p.TotalCount = *c.TotalEvents
	}
}
