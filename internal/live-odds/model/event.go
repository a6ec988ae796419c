package model

import (
	"fmt"
	"strings"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Event é a visão interna de um evento ao vivo.
// Depois de criado um Event nunca é alterado: atualizações substituem o registro inteiro.
type Event struct {
	ID              string        `json:"id"`
	Sport           string        `json:"sport"`
	CompetitionName string        `json:"competitionName,omitempty"`
	HomeTeam        string        `json:"homeTeam"`
	AwayTeam        string        `json:"awayTeam"`
	ElapsedSeconds  int           `json:"elapsedSeconds"`
	ScoreHome       string        `json:"scoreHome"`
	ScoreAway       string        `json:"scoreAway"`
	Cards           Cards         `json:"cards"`
	Markets         []MarketEntry `json:"markets"`
}

type Cards struct {
	YellowHome int `json:"yellowHome"`
	YellowAway int `json:"yellowAway"`
	RedHome    int `json:"redHome"`
	RedAway    int `json:"redAway"`
}

// MarketEntry é uma linha de um mercado. Entradas com o mesmo MarketID
// e handicaps diferentes formam uma escada de handicap.
type MarketEntry struct {
	MarketID int64    `json:"marketId"`
	Handicap *float64 `json:"handicap,omitempty"`
	Options  []Option `json:"options"`
}

type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PaginationState espelha a paginação informada pelo servidor
type PaginationState struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalCount  int `json:"totalCount"`
}

// FromWire converte o registro do canal. Sem id o registro é inválido.
func FromWire(w events.LiveEvent) (Event, error) {
	id := strings.TrimSpace(w.ID.String())
	if id == "" {
		return Event{}, ErrMissingIdentity
	}

	ev := Event{
		ID:              id,
		Sport:           w.Sport,
		CompetitionName: w.CmpName,
		HomeTeam:        w.T1.N,
		AwayTeam:        w.T2.N,
		ElapsedSeconds:  int(w.Et),
		ScoreHome:       score(w.Stats.A, 0),
		ScoreAway:       score(w.Stats.A, 1),
	}
	if w.YellowCards != nil {
		ev.Cards.YellowHome, ev.Cards.YellowAway = w.YellowCards.Team1, w.YellowCards.Team2
	}
	if w.RedCards != nil {
		ev.Cards.RedHome, ev.Cards.RedAway = w.RedCards.Team1, w.RedCards.Team2
	}

	ev.Markets = make([]MarketEntry, 0, len(w.Odds))
	for _, o := range w.Odds {
		entry := MarketEntry{MarketID: o.ID}
		if o.Ha != nil {
			h := *o.Ha
			entry.Handicap = &h
		}
		// nomes de opção são únicos dentro da entrada; repetidos ficam com a primeira ocorrência
		seen := make(map[string]struct{}, len(o.O))
		for _, opt := range o.O {
			if _, dup := seen[opt.N]; dup {
				continue
			}
			seen[opt.N] = struct{}{}
			entry.Options = append(entry.Options, Option{Name: opt.N, Value: opt.V.String()})
		}
		ev.Markets = append(ev.Markets, entry)
	}
	return ev, nil
}

func score(a []events.FlexString, i int) string {
	if i < len(a) && a[i] != "" {
		return a[i].String()
	}
	return "0"
}

// HomeLabel / AwayLabel retornam o nome do time ou o rótulo padrão
func (e Event) HomeLabel() string {
	if e.HomeTeam == "" {
		return "Team 1"
	}
	return e.HomeTeam
}

func (e Event) AwayLabel() string {
	if e.AwayTeam == "" {
		return "Team 2"
	}
	return e.AwayTeam
}

// MatchClock formata o tempo de jogo como m:ss
func (e Event) MatchClock() string {
	secs := e.ElapsedSeconds
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Clone faz cópia profunda; a store guarda só cópias para não compartilhar slices com quem chamou.
func (e Event) Clone() Event {
	out := e
	if e.Markets != nil {
		out.Markets = make([]MarketEntry, len(e.Markets))
		for i, m := range e.Markets {
			out.Markets[i] = m.clone()
		}
	}
	return out
}

func (m MarketEntry) clone() MarketEntry {
	out := MarketEntry{MarketID: m.MarketID}
	if m.Handicap != nil {
		h := *m.Handicap
		out.Handicap = &h
	}
	if m.Options != nil {
		out.Options = append([]Option(nil), m.Options...)
	}
	return out
}

// HasHandicap indica handicap presente e diferente de zero
func (m MarketEntry) HasHandicap() bool {
	return m.Handicap != nil && *m.Handicap != 0
}

// HandicapValue retorna o handicap ou zero quando ausente
func (m MarketEntry) HandicapValue() float64 {
	if m.Handicap == nil {
		return 0
	}
	return *m.Handicap
}
