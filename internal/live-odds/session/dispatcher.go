package session

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/model"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

// Motivos de descarte reportados em OnDropped
const (
	ReasonDecode          = "decode"
	ReasonMissingIdentity = "missing_identity"
	ReasonStale           = "stale_subscription"
)

// Dispatcher decodifica uma mensagem do canal e aplica na store ou no tracker de presença.
// Não é seguro para uso concorrente: quem chama garante uma mensagem por vez, na ordem de chegada.
type Dispatcher struct {
	Log      *zap.Logger
	Store    *store.Store
	Presence *presence.Tracker

	OnApplied         func(kind string)         // métricas
	OnDropped         func(kind, reason string) // métricas
	OnPresenceAnomaly func()                    // métricas
	OnChanged         func(version uint64)      // nova versão publicada na store
}

// Dispatch aplica a mensagem. Mensagens malformadas são descartadas (total ou parcialmente)
// e retornam *model.MalformedUpdateError; nada aqui é fatal.
func (d *Dispatcher) Dispatch(m channel.Message) error {
	var err error
	switch m.Event {
	case topics.BatchUpdate:
		err = d.batchUpdate(m)
	case topics.EventRemoved:
		err = d.eventRemoved(m)
	case topics.ShardData:
		err = d.shardData(m)
	case topics.PresenceState:
		err = d.presenceState(m)
	case topics.PresenceDiff:
		err = d.presenceDiff(m)
	default:
		d.log().Debug("ignoring channel event", zap.String("event", m.Event), zap.String("topic", m.Topic))
		return nil
	}

	if err != nil {
		var mu *model.MalformedUpdateError
		if errors.As(err, &mu) {
			d.log().Warn("dropped malformed update", zap.String("event", m.Event), zap.String("topic", m.Topic), zap.Error(err))
		}
		return err
	}
	if d.OnApplied != nil {
		d.OnApplied(m.Event)
	}
	return nil
}

func (d *Dispatcher) batchUpdate(m channel.Message) error {
	var p events.BatchUpdate
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return d.malformed(m.Event, ReasonDecode, err)
	}

	ups := make([]store.Update, 0, len(p.Updates))
	dropped := 0
	for _, u := range p.Updates {
		if u.Event == nil {
			dropped++
			continue
		}
		w := *u.Event
		if w.ID == "" {
			w.ID = u.EventID // registro sem id herda o event_id do par
		}
		ev, err := model.FromWire(w)
		if err != nil {
			dropped++
			continue
		}
		ups = append(ups, store.Update{EventID: u.EventID.String(), Event: ev})
	}

	res := d.Store.ApplyBatch(ups)
	d.changed(res)
	return d.partial(m.Event, dropped+res.Dropped, len(p.Updates))
}

func (d *Dispatcher) eventRemoved(m channel.Message) error {
	var p events.EventRemoved
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return d.malformed(m.Event, ReasonDecode, err)
	}
	if p.EventID == "" {
		return d.malformed(m.Event, ReasonMissingIdentity, model.ErrMissingIdentity)
	}
	d.changed(d.Store.RemoveEvent(p.EventID.String()))
	return nil
}

func (d *Dispatcher) shardData(m channel.Message) error {
	var p events.ShardData
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return d.malformed(m.Event, ReasonDecode, err)
	}

	shard := p.ShardID.String()
	if shard == "" {
		shard = m.Topic
	}
	evs, dropped := convert(p.Events)
	d.changed(d.Store.ApplyShard(shard, evs))
	return d.partial(m.Event, dropped, len(p.Events))
}

func (d *Dispatcher) presenceState(m channel.Message) error {
	var p events.PresenceState
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return d.malformed(m.Event, ReasonDecode, err)
	}
	d.Presence.ApplyState(len(p))
	return nil
}

func (d *Dispatcher) presenceDiff(m channel.Message) error {
	var p events.PresenceDiff
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return d.malformed(m.Event, ReasonDecode, err)
	}
	if _, err := d.Presence.ApplyDiff(len(p.Joins), len(p.Leaves)); err != nil {
		d.log().Warn("presence anomaly, count clamped at zero", zap.Error(err))
		if d.OnPresenceAnomaly != nil {
			d.OnPresenceAnomaly()
		}
	}
	return nil
}

// Initialize substitui a store pelo snapshot do join e zera a presença.
// Eventos sem identidade são descartados.
func (d *Dispatcher) Initialize(reply events.JoinReply) store.Result {
	evs, dropped := convert(reply.Events)
	if dropped > 0 {
		d.log().Warn("dropped join snapshot events without identity", zap.Int("dropped", dropped))
		if d.OnDropped != nil {
			d.OnDropped(channel.EventJoin, ReasonMissingIdentity)
		}
	}
	d.Presence.Reset()
	res := d.Store.Initialize(evs)
	d.changed(res)
	return res
}

// convert descarta registros sem identidade
func convert(ws []events.LiveEvent) ([]model.Event, int) {
	out := make([]model.Event, 0, len(ws))
	dropped := 0
	for _, w := range ws {
		ev, err := model.FromWire(w)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, ev)
	}
	return out, dropped
}

func (d *Dispatcher) changed(res store.Result) {
	if res.Changed() && d.OnChanged != nil {
		d.OnChanged(res.Version)
	}
}

func (d *Dispatcher) partial(kind string, dropped, total int) error {
	if dropped == 0 {
		return nil
	}
	return d.malformed(kind, ReasonMissingIdentity,
		fmt.Errorf("%w: %d of %d records", model.ErrMissingIdentity, dropped, total))
}

func (d *Dispatcher) malformed(kind, reason string, err error) error {
	if d.OnDropped != nil {
		d.OnDropped(kind, reason)
	}
	return model.Malformed(kind, err)
}

func (d *Dispatcher) log() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
