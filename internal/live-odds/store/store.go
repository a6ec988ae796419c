package store

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

// Store é o dono canônico dos eventos ao vivo (id -> evento).
// Mutações são serializadas e cada uma publica um novo Snapshot imutável (copy-on-write);
// leitores usam Snapshot() sem bloquear.
type Store struct {
	log *zap.Logger

	mu      sync.Mutex
	owner   map[string]string // id -> shard dono do evento (protegido por mu)
	current atomic.Pointer[Snapshot]
}

// Update é um par {event_id, event} de um batch_update
type Update struct {
	EventID string
	Event   model.Event
}

// Result resume o efeito de uma operação
type Result struct {
	Inserted  int
	Replaced  int
	Unchanged int // substituições idênticas ao registro atual; não geram versão
	Removed   int
	Dropped   int
	Version   uint64
}

// Changed indica se a operação gerou uma nova versão
func (r Result) Changed() bool { return r.Inserted+r.Replaced+r.Removed > 0 }

func (r *Result) count(o outcome) {
	switch o {
	case inserted:
		r.Inserted++
	case replaced:
		r.Replaced++
	default:
		r.Unchanged++
	}
}

func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{log: log, owner: make(map[string]string)}
	s.current.Store(emptySnapshot)
	return s
}

// Snapshot retorna a versão atual (imutável)
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Initialize substitui o mapa inteiro; usado uma vez por join.
// Sempre gera uma nova versão, mesmo com lista vazia.
func (s *Store) Initialize(evs []model.Event) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	b := newBuilder(emptySnapshot)
	var res Result
	for _, ev := range evs {
		if ev.ID == "" {
			res.Dropped++
			continue
		}
		res.count(b.upsert(ev.Clone()))
	}
	s.owner = make(map[string]string)

	res.Version = cur.version + 1
	s.current.Store(b.build(res.Version))
	s.logDropped("initialize", res)
	return res
}

// ApplyShard reconcilia um shard: o payload é o conjunto completo e atual do shard.
// Eventos que pertenciam a shardID e não vieram no payload são removidos.
// Eventos de outros shards não são tocados.
func (s *Store) ApplyShard(shardID string, evs []model.Event) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	b := newBuilder(cur)
	var res Result

	present := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		if ev.ID == "" {
			res.Dropped++
			continue
		}
		present[ev.ID] = struct{}{}
		res.count(b.upsert(ev.Clone()))
		// evento que aparece em outro shard passa a pertencer a este
		s.owner[ev.ID] = shardID
	}

	for id, owner := range s.owner {
		if owner != shardID {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		if b.remove(id) {
			res.Removed++
		}
		delete(s.owner, id)
	}

	s.publish(cur, b, &res)
	s.logDropped("shard_data", res, zap.String("shard_id", shardID))
	return res
}

// ApplyBatch faz upsert de cada par: insere se ausente, senão substitui o registro inteiro.
func (s *Store) ApplyBatch(ups []Update) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	b := newBuilder(cur)
	var res Result
	for _, u := range ups {
		id := u.EventID
		if id == "" {
			id = u.Event.ID
		}
		// o registro precisa ser consistente com a chave
		if id == "" || (u.Event.ID != "" && u.Event.ID != id) {
			res.Dropped++
			continue
		}
		ev := u.Event.Clone()
		ev.ID = id
		res.count(b.upsert(ev))
	}

	s.publish(cur, b, &res)
	s.logDropped("batch_update", res)
	return res
}

// RemoveEvent remove o evento se existir; senão não faz nada.
func (s *Store) RemoveEvent(id string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	res := Result{Version: cur.version}
	if !cur.Has(id) {
		return res
	}
	b := newBuilder(cur)
	b.remove(id)
	delete(s.owner, id)
	res.Removed = 1

	s.publish(cur, b, &res)
	return res
}

// ShardOf retorna o shard dono do evento, se houver
func (s *Store) ShardOf(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.owner[id]
	return sh, ok
}

// publish só cria nova versão quando algo mudou
func (s *Store) publish(cur *Snapshot, b *builder, res *Result) {
	if !res.Changed() {
		res.Version = cur.version
		return
	}
	res.Version = cur.version + 1
	s.current.Store(b.build(res.Version))
}

func (s *Store) logDropped(op string, res Result, fields ...zap.Field) {
	if res.Dropped == 0 {
		return
	}
	s.log.Warn("dropped events without identity",
		append(fields, zap.String("op", op), zap.Int("dropped", res.Dropped))...)
}
