package feed

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Writer é o pedaço do kafka.Writer que o tap usa
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Tap espelha cada mensagem recebida do canal num tópico Kafka.
// Escritas passam por um circuit breaker: com o Kafka fora, o tap descarta em vez de acumular.
type Tap struct {
	w     Writer
	log   *zap.Logger
	cb    *gobreaker.CircuitBreaker[struct{}]
	queue chan events.FeedRecord

	OnError func(stage string) // métricas por fase
}

func NewTap(w Writer, buffer int, log *zap.Logger) *Tap {
	if buffer <= 0 {
		buffer = 1024
	}
	t := &Tap{w: w, log: log, queue: make(chan events.FeedRecord, buffer)}
	t.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-feed-tap",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return t
}

// Mirror enfileira a mensagem sem bloquear (chamado no caminho de leitura do canal)
func (t *Tap) Mirror(m channel.Message) {
	t.enqueue(events.FeedRecord{
		Topic:      m.Topic,
		Event:      m.Event,
		JoinRef:    m.JoinRef,
		Payload:    m.Payload,
		ReceivedAt: m.ReceivedAt,
	})
}

// MirrorJoin registra o snapshot do join para que o replay consiga reconstruir a visão
func (t *Tap) MirrorJoin(topic, joinRef string, response json.RawMessage) {
	t.enqueue(events.FeedRecord{
		Topic:      topic,
		Event:      JoinSnapshotEvent,
		JoinRef:    joinRef,
		Payload:    response,
		ReceivedAt: time.Now(),
	})
}

func (t *Tap) enqueue(r events.FeedRecord) {
	select {
	case t.queue <- r:
	default:
		t.fail("queue_full", nil)
	}
}

// State expõe o estado do breaker (healthz)
func (t *Tap) State() gobreaker.State { return t.cb.State() }

// Run drena a fila até ctx ser cancelado
func (t *Tap) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-t.queue:
			t.write(ctx, r)
		}
	}
}

func (t *Tap) write(ctx context.Context, r events.FeedRecord) {
	value, err := json.Marshal(r)
	if err != nil {
		t.fail("encode", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(r.Topic), // mesma partição por tópico preserva a ordem
		Value: value,
		Time:  r.ReceivedAt,
	}

	_, err = t.cb.Execute(func() (struct{}, error) {
		return struct{}{}, t.w.WriteMessages(ctx, msg)
	})
	switch {
	case err == nil:
		t.log.Debug("mirrored channel message", zap.String("topic", r.Topic), zap.String("event", r.Event))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.fail("breaker_open", nil)
	default:
		t.fail("write", err)
	}
}

func (t *Tap) fail(stage string, err error) {
	if err != nil {
		t.log.Warn("feed tap failed", zap.String("stage", stage), zap.Error(err))
	}
	if t.OnError != nil {
		t.OnError(stage)
	}
}
