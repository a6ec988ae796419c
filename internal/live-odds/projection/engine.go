package projection

import (
	"sync"
	"sync/atomic"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

// Source é o que o engine precisa de um snapshot da store
type Source interface {
	Version() uint64
	Events() []model.Event
}

// View é a projeção já calculada para (versão, esporte). Não deve ser alterada por quem lê.
type View struct {
	Version uint64        `json:"version"`
	Sport   string        `json:"sport"`
	Events  []model.Event `json:"events"`
	Groups  []Group       `json:"groups"`

	index map[string]int
}

// Find busca um evento da view pelo id
func (v *View) Find(id string) (model.Event, bool) {
	i, ok := v.index[id]
	if !ok {
		return model.Event{}, false
	}
	return v.Events[i], true
}

// Engine memoiza as views da versão atual, uma por filtro de esporte. Só recalcula quando
// muda a versão do snapshot ou aparece um filtro novo; presença e paginação não entram na chave.
// Uma versão nova descarta todas as views da anterior.
type Engine struct {
	policy GroupingPolicy

	mu      sync.Mutex
	version uint64
	views   map[string]*View // sport -> view da versão atual

	recomputations atomic.Uint64
	onRecompute    func()
}

func NewEngine(policy GroupingPolicy) *Engine {
	return &Engine{policy: policy}
}

// OnRecompute registra callback chamado a cada recálculo (métricas)
func (e *Engine) OnRecompute(fn func()) { e.onRecompute = fn }

func (e *Engine) Policy() GroupingPolicy { return e.policy }

func (e *Engine) View(src Source, sport string) *View {
	version := src.Version()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.views == nil || e.version != version {
		e.version, e.views = version, make(map[string]*View)
	}
	if v, ok := e.views[sport]; ok {
		return v
	}

	evs := FilterBySport(src.Events(), sport)
	v := &View{
		Version: version,
		Sport:   sport,
		Events:  evs,
		Groups:  GroupByCompetition(evs, e.policy),
		index:   make(map[string]int, len(evs)),
	}
	for i, ev := range evs {
		v.index[ev.ID] = i
	}

	e.views[sport] = v
	e.recomputations.Add(1)
	if e.onRecompute != nil {
		e.onRecompute()
	}
	return v
}

// Recomputations conta quantas vezes a view foi de fato recalculada
func (e *Engine) Recomputations() uint64 { return e.recomputations.Load() }
