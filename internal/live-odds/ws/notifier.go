package ws

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Publisher publica payloads num canal Pub/Sub
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisBroadcaster publica no Redis Pub/Sub
type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}

// Notifier publica avisos de mudança da visão respeitando um limite de taxa.
// Avisos que chegam enquanto outro espera vaga são coalescidos: só o mais recente é publicado.
type Notifier struct {
	Pub     Publisher
	Channel string
	Limiter *rate.Limiter
	Log     *zap.Logger

	OnPublished func() // métricas
	OnCoalesced func() // métricas

	mu      sync.Mutex
	latest  *events.ViewChanged
	pending chan struct{}
	once    sync.Once
}

func (n *Notifier) init() {
	n.once.Do(func() { n.pending = make(chan struct{}, 1) })
}

// Notify nunca bloqueia; é chamado de dentro do loop da sessão
func (n *Notifier) Notify(v events.ViewChanged) {
	n.init()
	n.mu.Lock()
	replaced := n.latest != nil
	n.latest = &v
	n.mu.Unlock()

	if replaced && n.OnCoalesced != nil {
		n.OnCoalesced()
	}
	select {
	case n.pending <- struct{}{}:
	default:
	}
}

// Run publica os avisos pendentes até ctx ser cancelado
func (n *Notifier) Run(ctx context.Context) error {
	n.init()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.pending:
		}

		if err := n.Limiter.Wait(ctx); err != nil {
			return nil // ctx cancelado
		}

		n.mu.Lock()
		v := n.latest
		n.latest = nil
		n.mu.Unlock()
		if v == nil {
			continue
		}

		b, err := json.Marshal(v)
		if err != nil {
			n.Log.Warn("encode view notice failed", zap.Error(err))
			continue
		}
		if err := n.Pub.Publish(ctx, n.Channel, b); err != nil {
			n.Log.Warn("view notice publish failed", zap.Error(err))
			continue
		}
		if n.OnPublished != nil {
			n.OnPublished()
		}
	}
}

// LocalPublisher entrega o aviso direto no Hub desta instância (Redis desligado)
type LocalPublisher struct {
	Hub *Hub
}

func (p LocalPublisher) Publish(_ context.Context, _ string, payload []byte) error {
	var v events.ViewChanged
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.Hub.Broadcast(v)
	return nil
}
