package presence

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPresenceInvariant indica um diff que levaria a contagem abaixo de zero
var ErrPresenceInvariant = errors.New("presence count would go negative")

type State int

const (
	Uninitialized State = iota
	Synced
	Updated
)

func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case Updated:
		return "updated"
	default:
		return "uninitialized"
	}
}

// Tracker mantém a contagem de espectadores a partir de presence_state e presence_diff.
// As mensagens chegam pela mesma fila ordenada da store; o lock só protege leituras concorrentes.
type Tracker struct {
	mu        sync.RWMutex
	state     State
	count     int
	anomalies int
}

func NewTracker() *Tracker { return &Tracker{} }

// ApplyState define a contagem como a cardinalidade do conjunto recebido
func (t *Tracker) ApplyState(viewers int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if viewers < 0 {
		viewers = 0
	}
	t.count = viewers
	t.state = Synced
	return t.count
}

// ApplyDiff soma joins e subtrai leaves. Um diff antes de qualquer state parte de zero.
// Se o resultado ficasse negativo, a contagem é travada em zero e ErrPresenceInvariant é retornado.
func (t *Tracker) ApplyDiff(joins, leaves int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.count
	next := prev + joins - leaves
	t.state = Updated
	if next < 0 {
		t.anomalies++
		t.count = 0
		return 0, fmt.Errorf("%w: count=%d joins=%d leaves=%d", ErrPresenceInvariant, prev, joins, leaves)
	}
	t.count = next
	return t.count, nil
}

// Reset volta ao estado inicial; usado ao trocar de inscrição
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Uninitialized
	t.count = 0
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Anomalies conta quantos diffs foram travados em zero
func (t *Tracker) Anomalies() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.anomalies
}
