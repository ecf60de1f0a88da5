package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Base columns present in every dataset file, in order.
const (
	ColumnID        = "id"
	ColumnDate      = "home_date"
	ColumnHomeTeam  = "home_team_abbreviation"
	ColumnAwayTeam  = "away_team_abbreviation"
	ColumnHomeScore = "home_team_score"
	ColumnAwayScore = "away_team_score"

	// ColumnHomeWin is derived from the scores and usable as a target.
	ColumnHomeWin = "home_win"
)

var BaseColumns = []string{
	ColumnID, ColumnDate, ColumnHomeTeam, ColumnAwayTeam, ColumnHomeScore, ColumnAwayScore,
}

// Matchup is one game with the home and away perspectives side by side.
// Missing feature values are NaN.
type Matchup struct {
	ID        int64
	Date      time.Time
	HomeTeam  string
	AwayTeam  string
	HomeScore float64
	AwayScore float64
	Features  map[string]float64
}

// Value resolves a numeric column: a score, the home_win label or a feature.
func (m Matchup) Value(column string) (float64, bool) {
	switch column {
	case ColumnHomeScore:
		return m.HomeScore, true
	case ColumnAwayScore:
		return m.AwayScore, true
	case ColumnHomeWin:
		if m.HomeScore > m.AwayScore {
			return 1, true
		}
		return 0, true
	}
	v, ok := m.Features[column]
	if !ok {
		return math.NaN(), false
	}
	return v, true
}

func (m Matchup) Label() string {
	return m.HomeTeam + " vs " + m.AwayTeam
}

// Table is an ordered set of matchups with a fixed feature column list.
type Table struct {
	Columns []string
	Rows    []Matchup
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Header is the base columns followed by the feature columns.
func (t *Table) Header() []string {
	h := make([]string, 0, len(BaseColumns)+len(t.Columns))
	h = append(h, BaseColumns...)
	return append(h, t.Columns...)
}

// HasColumn reports whether column is a base, derived or feature column.
func (t *Table) HasColumn(column string) bool {
	switch column {
	case ColumnHomeScore, ColumnAwayScore, ColumnHomeWin:
		return true
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// MissingColumns returns the names in want that the table does not carry.
func (t *Table) MissingColumns(want []string) []string {
	var missing []string
	for _, c := range want {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// SortByDate orders rows by (date, id). The sort is stable.
func (t *Table) SortByDate() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}

// Split cuts the table at floor(n*ratio) without shuffling. Both halves
// share the column list; rows are not copied.
func (t *Table) Split(ratio float64) (*Table, *Table) {
	n := int(math.Floor(float64(len(t.Rows)) * ratio))
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]},
		&Table{Columns: t.Columns, Rows: t.Rows[n:]}
}

// Matrix extracts the named columns as a row-major matrix.
func (t *Table) Matrix(columns []string) ([][]float64, error) {
	if missing := t.MissingColumns(columns); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	out := make([][]float64, len(t.Rows))
	for i, row := range t.Rows {
		vals := make([]float64, len(columns))
		for j, c := range columns {
			v, _ := row.Value(c)
			vals[j] = v
		}
		out[i] = vals
	}
	return out, nil
}

// Partitions is the transform output. All holds every merged game before
// partitioning.
type Partitions struct {
	Train   *Table
	Predict *Table
	All     *Table
}
