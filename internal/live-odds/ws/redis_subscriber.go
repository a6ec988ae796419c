package ws

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Relay escuta o canal Redis Pub/Sub e repassa os avisos para os clientes do Hub.
// Várias instâncias do serviço podem publicar no mesmo canal; cada uma entrega aos seus clientes.
type Relay struct {
	Redis   *redis.Client
	Channel string
	Hub     *Hub
	Log     *zap.Logger
}

// Run bloqueia até ctx ser cancelado ou a inscrição cair
func (r *Relay) Run(ctx context.Context) error {
	sub := r.Redis.Subscribe(ctx, r.Channel)
	defer sub.Close() // encerra a inscrição ao finalizar

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.Log.Info("redis relay subscribed", zap.String("channel", r.Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var n events.ViewChanged
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		r.Log.Warn("ws relay unmarshal error", zap.Error(err))
		return
	}
	r.Hub.Broadcast(n) // envia aviso para todos os clientes inscritos
}
