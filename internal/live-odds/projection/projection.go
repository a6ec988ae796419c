package projection

import (
	"sort"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

// UnknownCompetition é o nome usado quando o evento não informa competição
const UnknownCompetition = "Unknown League"

// GroupingPolicy define a ordem de iteração dos grupos de competição
type GroupingPolicy string

const (
	FirstOccurrence GroupingPolicy = "first_occurrence"
	Alphabetic      GroupingPolicy = "alphabetic"
)

// ParsePolicy aceita os nomes da config; vazio ou desconhecido cai em FirstOccurrence
func ParsePolicy(s string) GroupingPolicy {
	if GroupingPolicy(s) == Alphabetic {
		return Alphabetic
	}
	return FirstOccurrence
}

type Group struct {
	Competition string        `json:"competition"`
	Events      []model.Event `json:"events"`
}

type MarketGroup struct {
	MarketID int64               `json:"marketId"`
	Entries  []model.MarketEntry `json:"entries"`
}

// FilterBySport retorna a subsequência do esporte, preservando a ordem.
// Esporte vazio não filtra.
func FilterBySport(evs []model.Event, sport string) []model.Event {
	out := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if sport == "" || ev.Sport == sport {
			out = append(out, ev)
		}
	}
	return out
}

// GroupByCompetition agrupa por nome de competição mantendo a ordem relativa dentro de cada grupo
func GroupByCompetition(evs []model.Event, policy GroupingPolicy) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, ev := range evs {
		name := ev.CompetitionName
		if name == "" {
			name = UnknownCompetition
		}
		i, ok := pos[name]
		if !ok {
			i = len(groups)
			pos[name] = i
			groups = append(groups, Group{Competition: name})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	if policy == Alphabetic {
		sort.SliceStable(groups, func(a, b int) bool { return groups[a].Competition < groups[b].Competition })
	}
	return groups
}

// GroupMarkets junta as entradas de odds por id de mercado, em ordem crescente de id.
// Dentro do mercado as entradas mantêm a ordem do payload.
func GroupMarkets(ev model.Event) []MarketGroup {
	var groups []MarketGroup
	pos := make(map[int64]int)
	for _, m := range ev.Markets {
		i, ok := pos[m.MarketID]
		if !ok {
			i = len(groups)
			pos[m.MarketID] = i
			groups = append(groups, MarketGroup{MarketID: m.MarketID})
		}
		groups[i].Entries = append(groups[i].Entries, m)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].MarketID < groups[b].MarketID })
	return groups
}
