package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-client/internal/live-odds/model"
)

func ha(v float64) *float64 { return &v }

func opts(kv ...string) []model.Option {
	out := make([]model.Option, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, model.Option{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func cellValues(r Row) []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Value
	}
	return out
}

func cellLabels(r Row) []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Label
	}
	return out
}

func TestClassify_OverUnder(t *testing.T) {
	entries := []model.MarketEntry{
		{MarketID: 16, Handicap: ha(1), Options: opts("Over", "2.0", "Under", "1.8")},
		{MarketID: 16, Handicap: ha(0), Options: opts("Over", "1.9", "Under", "1.9")},
	}

	m := Classify(16, entries, "Home", "Away")

	assert.Equal(t, OverUnderTable, m.Category)
	assert.Equal(t, []string{"Over", "Under"}, m.Columns)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, 0.0, *m.Rows[0].Handicap)
	assert.Equal(t, "ha (0)", m.Rows[0].Label)
	assert.Equal(t, []string{"1.9", "1.9"}, cellValues(m.Rows[0]))
	assert.Equal(t, "ha (1)", m.Rows[1].Label)
	assert.Equal(t, []string{"2.0", "1.8"}, cellValues(m.Rows[1]))
}

func TestClassify_OverUnderMissingOption(t *testing.T) {
	entries := []model.MarketEntry{
		{Handicap: ha(2.5), Options: opts("Over", "1.5", "Exactly", "9.0", "Under", "2.4")},
		{Handicap: ha(1.5), Options: opts("Over", "1.2", "Under", "3.1")},
	}

	m := Classify(16, entries, "Home", "Away")

	assert.Equal(t, []string{"Exactly", "Over", "Under"}, m.Columns)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "ha (1.5)", m.Rows[0].Label)
	assert.Equal(t, []string{"N/A", "1.2", "3.1"}, cellValues(m.Rows[0]))
	assert.True(t, m.Rows[0].Cells[0].Placeholder)
}

func TestClassify_OverUnderWinsOverThreeWay(t *testing.T) {
	entries := []model.MarketEntry{
		{Options: opts("Over", "1.9", "X", "3.0", "Under", "1.9")},
	}

	assert.Equal(t, OverUnderTable, Classify(99, entries, "Home", "Away").Category)
}

func TestClassify_ThreeWay(t *testing.T) {
	entries := []model.MarketEntry{
		{MarketID: 1777, Options: opts("1", "2.1", "X", "3.2", "2", "3.5")},
	}

	m := Classify(1777, entries, "Flamengo", "Palmeiras")

	assert.Equal(t, ThreeWayRow, m.Category)
	require.Len(t, m.Rows, 1)
	assert.Equal(t, []string{"Flamengo", "Tie", "Palmeiras"}, cellLabels(m.Rows[0]))
	assert.Equal(t, []string{"2.1", "3.2", "3.5"}, cellValues(m.Rows[0]))
}

func TestClassify_ThreeWayChunksRows(t *testing.T) {
	entries := []model.MarketEntry{
		{Options: opts("1", "2.1", "X", "3.2", "2", "3.5")},
		{Options: opts("1", "1.8")},
	}

	m := Classify(27, entries, "Home", "Away")

	require.Len(t, m.Rows, 2)
	assert.Len(t, m.Rows[0].Cells, 3)
	assert.Equal(t, []string{"Home"}, cellLabels(m.Rows[1]))
}

func TestClassify_ZeroHandicapIsNoHandicap(t *testing.T) {
	entries := []model.MarketEntry{
		{Handicap: ha(0), Options: opts("1", "2.1", "2", "1.7")},
	}

	assert.Equal(t, ThreeWayRow, Classify(1, entries, "Home", "Away").Category)
}

func TestClassify_Handicap(t *testing.T) {
	entries := []model.MarketEntry{
		{Handicap: ha(0.5), Options: opts("1", "1.9", "2", "1.9")},
		{Handicap: ha(-1), Options: opts("1", "2.5")},
	}

	m := Classify(11, entries, "Home", "Away")

	assert.Equal(t, HandicapTable, m.Category)
	assert.Equal(t, []string{"Home", "Away"}, m.Columns)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "-1", m.Rows[0].Label)
	assert.Equal(t, []string{"-1", "N/A"}, cellLabels(m.Rows[0]))
	assert.Equal(t, []string{"2.5", ""}, cellValues(m.Rows[0]))
	assert.True(t, m.Rows[0].Cells[1].Placeholder)
	assert.Equal(t, "+0.5", m.Rows[1].Label)
	assert.Equal(t, []string{"1.9", "1.9"}, cellValues(m.Rows[1]))
}

func TestClassify_Generic(t *testing.T) {
	entries := []model.MarketEntry{
		{Options: opts("Yes", "1.5", "No", "2.5")},
		{Options: opts("A", "3", "B", "4")},
	}

	m := Classify(561127121, entries, "Home", "Away")

	assert.Equal(t, GenericRows, m.Category)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, []string{"Yes", "No", "A"}, cellLabels(m.Rows[0]))
	assert.Equal(t, []string{"B", "..."}, cellLabels(m.Rows[1]))
	assert.True(t, m.Rows[1].Cells[1].Placeholder)
	assert.Empty(t, m.Rows[1].Cells[1].Value)
}

func TestClassify_GenericTwoCellRowNotPadded(t *testing.T) {
	m := Classify(5, []model.MarketEntry{{Options: opts("A", "1", "B", "2")}}, "H", "A")

	require.Len(t, m.Rows, 1)
	assert.Len(t, m.Rows[0].Cells, 2)
}

func TestClassify_IsTotal(t *testing.T) {
	cases := [][]model.MarketEntry{
		nil,
		{},
		{{}},
		{{Options: opts("", "")}},
	}
	for _, entries := range cases {
		m := Classify(1, entries, "", "")
		assert.Equal(t, GenericRows, m.Category)
	}
}

func TestSignedHandicap(t *testing.T) {
	assert.Equal(t, "+0", SignedHandicap(nil))
	assert.Equal(t, "+0.5", SignedHandicap(ha(0.5)))
	assert.Equal(t, "-1.25", SignedHandicap(ha(-1.25)))
	assert.Equal(t, "+2", SignedHandicap(ha(2)))
}
