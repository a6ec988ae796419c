package feed

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/model"
	"github.com/radieske/live-odds-client/internal/live-odds/session"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

// JoinSnapshotEvent marca no espelho o snapshot recebido no join
const JoinSnapshotEvent = topics.JoinSnapshot

// Reader é o pedaço do kafka.Reader que o replay usa
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Stats resume um replay
type Stats struct {
	Records int
	Applied int
	Skipped int
	Dropped int
}

// Replayer reconstrói a visão a partir do espelho Kafka passando cada registro
// pelo mesmo Dispatcher usado ao vivo.
type Replayer struct {
	Log        *zap.Logger
	Reader     Reader
	Dispatcher *session.Dispatcher
	Topic      string        // vazio aceita todos os tópicos do canal
	IdleStop   time.Duration // para quando nada chega nesse intervalo; zero espera até ctx

	OnConsumed func()       // métricas
	OnError    func(string) // métricas por fase

	joinRef string // join_ref do último snapshot aplicado
}

func (r *Replayer) Run(ctx context.Context) (Stats, error) {
	var st Stats
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.IdleStop > 0 {
			readCtx, cancel = context.WithTimeout(ctx, r.IdleStop)
		}
		m, err := r.Reader.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return st, nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				r.Log.Info("feed idle, replay finished", zap.Int("records", st.Records))
				return st, nil
			}
			r.fail("read", err)
			return st, err
		}

		st.Records++
		if r.OnConsumed != nil {
			r.OnConsumed()
		}

		var rec events.FeedRecord
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			r.fail("decode", err)
			st.Dropped++
			continue
		}
		if r.Topic != "" && rec.Topic != r.Topic {
			st.Skipped++
			continue
		}
		// mesmo filtro da sessão ao vivo: mensagem de um join anterior não entra na visão
		if rec.Event != JoinSnapshotEvent && rec.JoinRef != "" && r.joinRef != "" && rec.JoinRef != r.joinRef {
			r.Log.Debug("skipping record from stale join",
				zap.String("event", rec.Event), zap.String("join_ref", rec.JoinRef), zap.String("current", r.joinRef))
			st.Skipped++
			continue
		}

		if err := r.apply(rec); err != nil {
			st.Dropped++
			continue
		}
		st.Applied++
	}
}

func (r *Replayer) apply(rec events.FeedRecord) error {
	if rec.Event == JoinSnapshotEvent {
		var reply events.JoinReply
		if err := json.Unmarshal(rec.Payload, &reply); err != nil {
			r.fail("decode", err)
			return model.Malformed(rec.Event, err)
		}
		r.Dispatcher.Initialize(reply)
		r.joinRef = rec.JoinRef
		return nil
	}

	return r.Dispatcher.Dispatch(channel.Message{
		Topic:      rec.Topic,
		Event:      rec.Event,
		JoinRef:    rec.JoinRef,
		Payload:    rec.Payload,
		ReceivedAt: rec.ReceivedAt,
	})
}

func (r *Replayer) fail(stage string, err error) {
	r.Log.Warn("feed replay failed", zap.String("stage", stage), zap.Error(err))
	if r.OnError != nil {
		r.OnError(stage)
	}
}
