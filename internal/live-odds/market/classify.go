package market

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

// Category é o formato de renderização de um mercado
type Category string

const (
	OverUnderTable Category = "OVER_UNDER_TABLE"
	ThreeWayRow    Category = "THREE_WAY_ROW"
	HandicapTable  Category = "HANDICAP_TABLE"
	GenericRows    Category = "GENERIC_ROWS"
)

const (
	rowWidth       = 3
	missingValue   = "N/A"
	tieLabel       = "Tie"
	paddingLabel   = "..."
	minGenericCols = 2
)

// Market é a estrutura canônica de exibição de um mercado já classificado
type Market struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name,omitempty"`
	Category Category `json:"category"`
	Columns  []string `json:"columns,omitempty"`
	Rows     []Row    `json:"rows"`
}

type Row struct {
	Handicap *float64 `json:"handicap,omitempty"`
	Label    string   `json:"label,omitempty"`
	Cells    []Cell   `json:"cells"`
}

// Cell com Placeholder=true não corresponde a nenhuma opção do payload
type Cell struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Classify decide a categoria pela união dos nomes de opção, nesta precedência:
// Over/Under/Exactly, depois 1/X/2 sem handicap, depois 1/X/2 com handicap, senão genérico.
// Sempre retorna uma categoria.
func Classify(marketID int64, entries []model.MarketEntry, home, away string) Market {
	names := optionNames(entries)
	m := Market{ID: marketID}

	switch {
	case containsAny(names, "Over", "Under", "Exactly"):
		m.Category = OverUnderTable
		m.Columns = names
		m.Rows = overUnderRows(entries, names)
	case containsAny(names, "1", "X", "2") && !firstHasHandicap(entries):
		m.Category = ThreeWayRow
		m.Rows = threeWayRows(entries, home, away)
	case containsAny(names, "1", "X", "2"):
		m.Category = HandicapTable
		m.Columns = make([]string, len(names))
		for i, n := range names {
			m.Columns[i] = sideLabel(n, home, away)
		}
		m.Rows = handicapRows(entries, names)
	default:
		m.Category = GenericRows
		m.Rows = genericRows(entries)
	}
	return m
}

// optionNames retorna os nomes distintos de todas as entradas, ordenados
func optionNames(entries []model.MarketEntry) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range entries {
		for _, o := range e.Options {
			if _, ok := seen[o.Name]; ok {
				continue
			}
			seen[o.Name] = struct{}{}
			out = append(out, o.Name)
		}
	}
	sort.Strings(out)
	return out
}

func containsAny(names []string, want ...string) bool {
	for _, n := range names {
		for _, w := range want {
			if n == w {
				return true
			}
		}
	}
	return false
}

func firstHasHandicap(entries []model.MarketEntry) bool {
	return len(entries) > 0 && entries[0].HasHandicap()
}

func sideLabel(name, home, away string) string {
	switch name {
	case "1":
		return home
	case "2":
		return away
	case "X":
		return tieLabel
	}
	return name
}

// byHandicap ordena uma cópia das entradas; handicap ausente conta como zero
func byHandicap(entries []model.MarketEntry) []model.MarketEntry {
	out := append([]model.MarketEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].HandicapValue() < out[j].HandicapValue() })
	return out
}

func lookup(e model.MarketEntry, name string) (string, bool) {
	for _, o := range e.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

func overUnderRows(entries []model.MarketEntry, names []string) []Row {
	sorted := byHandicap(entries)
	rows := make([]Row, 0, len(sorted))
	for _, e := range sorted {
		row := Row{Handicap: e.Handicap, Label: "ha (" + plainHandicap(e) + ")"}
		for _, n := range names {
			v, ok := lookup(e, n)
			if !ok {
				row.Cells = append(row.Cells, Cell{Label: n, Value: missingValue, Placeholder: true})
				continue
			}
			row.Cells = append(row.Cells, Cell{Label: n, Value: v})
		}
		rows = append(rows, row)
	}
	return rows
}

func threeWayRows(entries []model.MarketEntry, home, away string) []Row {
	var cells []Cell
	for _, e := range entries {
		for _, o := range e.Options {
			cells = append(cells, Cell{Label: sideLabel(o.Name, home, away), Value: o.Value})
		}
	}
	return chunk(cells, false)
}

func handicapRows(entries []model.MarketEntry, names []string) []Row {
	sorted := byHandicap(entries)
	rows := make([]Row, 0, len(sorted))
	for _, e := range sorted {
		label := SignedHandicap(e.Handicap)
		row := Row{Handicap: e.Handicap, Label: label}
		for _, n := range names {
			v, ok := lookup(e, n)
			if !ok {
				row.Cells = append(row.Cells, Cell{Label: missingValue, Placeholder: true})
				continue
			}
			row.Cells = append(row.Cells, Cell{Label: label, Value: v})
		}
		rows = append(rows, row)
	}
	return rows
}

func genericRows(entries []model.MarketEntry) []Row {
	var cells []Cell
	for _, e := range entries {
		for _, o := range e.Options {
			cells = append(cells, Cell{Label: o.Name, Value: o.Value})
		}
	}
	return chunk(cells, true)
}

// chunk quebra em linhas de até rowWidth células; com pad, a última linha tem pelo menos duas
func chunk(cells []Cell, pad bool) []Row {
	var rows []Row
	for i := 0; i < len(cells); i += rowWidth {
		end := i + rowWidth
		if end > len(cells) {
			end = len(cells)
		}
		row := Row{Cells: append([]Cell(nil), cells[i:end]...)}
		for pad && len(row.Cells) < minGenericCols {
			row.Cells = append(row.Cells, Cell{Label: paddingLabel, Placeholder: true})
		}
		rows = append(rows, row)
	}
	return rows
}

// SignedHandicap formata o handicap com sinal explícito (+0.5, -1, +0)
func SignedHandicap(h *float64) string {
	d := decimal.Zero
	if h != nil {
		d = decimal.NewFromFloat(*h)
	}
	if d.IsNegative() {
		return d.String()
	}
	return "+" + d.String()
}

func plainHandicap(e model.MarketEntry) string {
	return decimal.NewFromFloat(e.HandicapValue()).String()
}
