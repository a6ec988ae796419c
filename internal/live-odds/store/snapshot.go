package store

import (
	"reflect"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

// Snapshot é uma visão imutável e consistente da store em uma versão.
// Pode ser lida de qualquer goroutine sem lock.
type Snapshot struct {
	version uint64
	events  []model.Event
	index   map[string]int
}

var emptySnapshot = &Snapshot{index: map[string]int{}}

func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Len() int { return len(s.events) }

// Events retorna os eventos na ordem de chegada. A cópia é só do slice: Markets e Options
// continuam compartilhados com o snapshot e não podem ser alterados por quem chama.
// Para alterar um evento use Get ou Event.Clone.
func (s *Snapshot) Events() []model.Event {
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Get devolve uma cópia profunda do evento; alterar o retorno não afeta o snapshot
func (s *Snapshot) Get(id string) (model.Event, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Event{}, false
	}
	return s.events[i].Clone(), true
}

func (s *Snapshot) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.ID
	}
	return out
}

// builder monta a próxima versão a partir de uma cópia da atual
type builder struct {
	events  []model.Event
	index   map[string]int
	removed map[string]struct{}
}

func newBuilder(from *Snapshot) *builder {
	b := &builder{
		events: make([]model.Event, len(from.events), len(from.events)+8),
		index:  make(map[string]int, len(from.index)),
	}
	copy(b.events, from.events)
	for id, i := range from.index {
		b.index[id] = i
	}
	return b
}

type outcome int

const (
	inserted outcome = iota
	replaced
	unchanged
)

// upsert substitui no lugar ou adiciona no fim. Registro igual ao atual não conta como mudança.
func (b *builder) upsert(ev model.Event) outcome {
	_, wasRemoved := b.removed[ev.ID]
	delete(b.removed, ev.ID)
	if i, ok := b.index[ev.ID]; ok {
		if !wasRemoved && reflect.DeepEqual(b.events[i], ev) {
			return unchanged
		}
		b.events[i] = ev
		return replaced
	}
	b.index[ev.ID] = len(b.events)
	b.events = append(b.events, ev)
	return inserted
}

// remove marca para remoção; a compactação acontece em build
func (b *builder) remove(id string) bool {
	if _, ok := b.index[id]; !ok {
		return false
	}
	if _, done := b.removed[id]; done {
		return false
	}
	if b.removed == nil {
		b.removed = make(map[string]struct{})
	}
	b.removed[id] = struct{}{}
	return true
}

func (b *builder) build(version uint64) *Snapshot {
	if len(b.removed) > 0 {
		kept := b.events[:0]
		for _, ev := range b.events {
			if _, gone := b.removed[ev.ID]; gone {
				continue
			}
			kept = append(kept, ev)
		}
		b.events = kept
		b.index = make(map[string]int, len(kept))
		for i, ev := range kept {
			b.index[ev.ID] = i
		}
	}
	return &Snapshot{version: version, events: b.events, index: b.index}
}
