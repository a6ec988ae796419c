package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Sports são os esportes servidos pelo simulador
var Sports = []string{"soccer", "basketball", "tennis"}

var (
	teams = map[string][]string{
		"soccer":     {"Flamengo", "Palmeiras", "Grêmio", "Internacional", "Corinthians", "Santos", "São Paulo", "Vasco"},
		"basketball": {"Flamengo Basquete", "Franca", "Minas", "Paulistano", "Bauru", "Pinheiros"},
		"tennis":     {"Fonseca", "Meligeni", "Wild", "Monteiro", "Seyboth", "Pigossi"},
	}
	competitions = map[string][]string{
		"soccer":     {"Brasileirão Série A", "Copa do Brasil", ""},
		"basketball": {"NBB", "Liga Sul-Americana"},
		"tennis":     {"ATP Rio", "Challenger São Paulo"},
	}
)

// newEvent gera um evento com os mercados 1777 (1/X/2), 16 (over/under em escada) e 11 (handicap)
func newEvent(rng *rand.Rand, sport string, id int64) events.LiveEvent {
	ts := teams[sport]
	i := rng.Intn(len(ts))
	j := (i + 1 + rng.Intn(len(ts)-1)) % len(ts)
	cmps := competitions[sport]

	ev := events.LiveEvent{
		ID:      events.FlexString(strconv.FormatInt(id, 10)),
		Sport:   sport,
		CmpName: cmps[rng.Intn(len(cmps))],
		T1:      events.Team{N: ts[i]},
		T2:      events.Team{N: ts[j]},
		Stats:   events.Stats{A: []events.FlexString{"0", "0"}},
	}
	if sport == "soccer" {
		ev.YellowCards = &events.CardCount{}
		ev.RedCards = &events.CardCount{}
	}
	ev.Odds = freshOdds(rng, sport)
	return ev
}

func freshOdds(rng *rand.Rand, sport string) []events.OddsEntry {
	odds := []events.OddsEntry{{ID: 1777, O: []events.OddsOption{
		{N: "1", V: price(rng, 1.40, 3.50)},
		{N: "X", V: price(rng, 2.50, 4.50)},
		{N: "2", V: price(rng, 2.00, 5.00)},
	}}}
	if sport == "tennis" {
		odds[0].O = append(odds[0].O[:1], odds[0].O[2])
	}
	for _, ha := range []float64{1.5, 2.5, 3.5} {
		h := ha
		odds = append(odds, events.OddsEntry{ID: 16, Ha: &h, O: []events.OddsOption{
			{N: "Over", V: price(rng, 1.50, 2.50)},
			{N: "Under", V: price(rng, 1.50, 2.50)},
		}})
	}
	for _, ha := range []float64{-0.5, 0.5} {
		h := ha
		odds = append(odds, events.OddsEntry{ID: 11, Ha: &h, O: []events.OddsOption{
			{N: "1", V: price(rng, 1.60, 2.40)},
			{N: "2", V: price(rng, 1.60, 2.40)},
		}})
	}
	return odds
}

// tick avança o relógio e mexe em placar/odds; devolve o novo registro completo
func tick(rng *rand.Rand, ev events.LiveEvent, elapsed float64) events.LiveEvent {
	ev.Et += elapsed
	if rng.Intn(10) == 0 {
		side := rng.Intn(2)
		n, _ := strconv.Atoi(ev.Stats.A[side].String())
		a := append([]events.FlexString(nil), ev.Stats.A...)
		a[side] = events.FlexString(strconv.Itoa(n + 1))
		ev.Stats.A = a
	}
	if ev.YellowCards != nil && rng.Intn(20) == 0 {
		c := *ev.YellowCards
		c.Team1++
		ev.YellowCards = &c
	}
	ev.Odds = freshOdds(rng, ev.Sport)
	return ev
}

// price gera uma odd aleatória entre min e max com duas casas
func price(rng *rand.Rand, min, max float64) events.FlexString {
	v := math.Round((rng.Float64()*(max-min)+min)*100) / 100
	return events.FlexString(fmt.Sprintf("%.2f", v))
}
