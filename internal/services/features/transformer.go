package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"HoopsCast/internal/domain/models"
	dservice "HoopsCast/internal/domain/service"
	"HoopsCast/internal/service/balldontlie"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/logger"
	"HoopsCast/pkg/util"
)

// Raw field names after flattening a games API record.
const (
	FieldID        = "id"
	FieldDate      = "date"
	FieldHomeTeam  = "home_team_abbreviation"
	FieldAwayTeam  = "visitor_team_abbreviation"
	FieldHomeScore = "home_team_score"
	FieldAwayScore = "visitor_team_score"
)

var requiredFields = []string{FieldID, FieldDate, FieldHomeTeam, FieldAwayTeam, FieldHomeScore, FieldAwayScore}

type Transformer struct {
	cfg    config.FeaturesConfig
	logger *logger.Logger
}

var _ dservice.Transformer = (*Transformer)(nil)

func NewTransformer(cfg config.FeaturesConfig, lgr *logger.Logger) (*Transformer, error) {
	if lgr == nil {
		lgr = logger.Nop()
	}
	t := &Transformer{cfg: cfg, logger: lgr}
	if missing := t.unproducible(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: output columns %v are not produced by windows %v over %v",
			models.ErrMissingColumn, missing, cfg.Windows, cfg.RollingColumns)
	}
	return t, nil
}

// Transform runs the full sequence. today is truncated to UTC midnight.
func (t *Transformer) Transform(records []models.Record, today time.Time) (*models.Partitions, error) {
	flat := make([]models.Record, len(records))
	for i, r := range records {
		flat[i] = balldontlie.FlattenRecord(r)
	}

	selected, err := SelectFields(flat, t.selected())
	if err != nil {
		return nil, err
	}
	games, err := CoerceGames(selected)
	if err != nil {
		return nil, err
	}

	teamGames := Duplicate(games)
	SortTeamGames(teamGames)
	teamGames = FilterMinGames(teamGames, t.cfg.MinGamesPerTeam)
	AddRolling(teamGames, t.cfg.Windows, t.cfg.RollingColumns)

	all := Project(Merge(teamGames), t.cfg.Columns)
	train, predict := Partition(all, today, t.cfg.PredictLimit)

	t.logger.Debug("transform finished",
		logger.Int("records", len(records)),
		logger.Int("team_rows", len(teamGames)),
		logger.Int("matchups", all.Len()),
		logger.Int("train_rows", train.Len()),
		logger.Int("predict_rows", predict.Len()))

	return &models.Partitions{Train: train, Predict: predict, All: all}, nil
}

func (t *Transformer) selected() []string {
	fields := append([]string(nil), t.cfg.Selected...)
	for _, f := range requiredFields {
		if !contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// unproducible lists configured output columns no window/column pair yields.
func (t *Transformer) unproducible() []string {
	produced := make(map[string]bool)
	for _, side := range []string{"home_", "away_"} {
		for _, w := range t.cfg.Windows {
			for _, c := range t.cfg.RollingColumns {
				produced[side+RollingKey(w, c)] = true
			}
		}
	}
	var missing []string
	for _, c := range t.cfg.Columns {
		if !produced[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// SelectFields keeps only the named fields. Every record must carry all of
// them; a null value counts as present.
func SelectFields(records []models.Record, fields []string) ([]models.Record, error) {
	out := make([]models.Record, len(records))
	for i, r := range records {
		sel := make(models.Record, len(fields))
		for _, f := range fields {
			v, ok := r[f]
			if !ok {
				return nil, fmt.Errorf("%w: record %d has no %q", models.ErrMissingColumn, i, f)
			}
			sel[f] = v
		}
		out[i] = sel
	}
	return out, nil
}

// CoerceGames types the selected fields. Dates become UTC, null scores 0.
func CoerceGames(records []models.Record) ([]models.Game, error) {
	games := make([]models.Game, 0, len(records))
	for i, r := range records {
		id, err := toInt(r[FieldID])
		if err != nil {
			return nil, fmt.Errorf("record %d id: %w", i, err)
		}
		date, ok := util.ParseTime(toString(r[FieldDate]))
		if !ok {
			return nil, fmt.Errorf("record %d: unparseable date %v", i, r[FieldDate])
		}
		home, err := toFloat(r[FieldHomeScore])
		if err != nil {
			return nil, fmt.Errorf("record %d home score: %w", i, err)
		}
		away, err := toFloat(r[FieldAwayScore])
		if err != nil {
			return nil, fmt.Errorf("record %d away score: %w", i, err)
		}
		games = append(games, models.Game{
			ID:        id,
			Date:      date,
			HomeTeam:  toString(r[FieldHomeTeam]),
			AwayTeam:  toString(r[FieldAwayTeam]),
			HomeScore: home,
			AwayScore: away,
		})
	}
	return games, nil
}

// Duplicate emits the home perspective of every game followed by the away
// perspectives, with team and opponent swapped for the latter.
func Duplicate(games []models.Game) []models.TeamGame {
	out := make([]models.TeamGame, 0, 2*len(games))
	for _, g := range games {
		out = append(out, models.TeamGame{
			GameID: g.ID, Date: g.Date,
			Team: g.HomeTeam, Opponent: g.AwayTeam,
			TeamScore: g.HomeScore, OpponentScore: g.AwayScore,
			IsHome: true,
		})
	}
	for _, g := range games {
		out = append(out, models.TeamGame{
			GameID: g.ID, Date: g.Date,
			Team: g.AwayTeam, Opponent: g.HomeTeam,
			TeamScore: g.AwayScore, OpponentScore: g.HomeScore,
		})
	}
	return out
}

// SortTeamGames orders by (date, game id, home first).
func SortTeamGames(rows []models.TeamGame) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		return a.IsHome && !b.IsHome
	})
}

// FilterMinGames keeps only the rows of teams with more than min completed
// games. min <= 0 keeps everything.
func FilterMinGames(rows []models.TeamGame, min int) []models.TeamGame {
	if min <= 0 {
		return rows
	}
	played := make(map[string]int)
	for _, r := range rows {
		if r.Completed() {
			played[r.Team]++
		}
	}
	out := rows[:0:0]
	for _, r := range rows {
		if played[r.Team] > min {
			out = append(out, r)
		}
	}
	return out
}

// AddRolling fills TeamGame.Rolling in place. rows must be sorted by date.
// Each mean covers only completed games strictly before the row.
func AddRolling(rows []models.TeamGame, windows []int, columns []string) {
	states := make(map[string]*rollingState)
	for i := range rows {
		r := &rows[i]
		st, ok := states[r.Team]
		if !ok {
			st = newRollingState()
			states[r.Team] = st
		}
		r.Rolling = st.means(windows, columns)
		if !r.Completed() {
			continue
		}
		for _, c := range columns {
			if v, ok := r.Value(c); ok {
				st.push(c, v)
			}
		}
	}
}

// Merge joins the home and away rows of each game. Games with a missing side
// are dropped. Output follows the order of the home rows.
func Merge(rows []models.TeamGame) []models.Matchup {
	away := make(map[int64]models.TeamGame)
	for _, r := range rows {
		if !r.IsHome {
			away[r.GameID] = r
		}
	}

	var out []models.Matchup
	for _, h := range rows {
		if !h.IsHome {
			continue
		}
		a, ok := away[h.GameID]
		if !ok {
			continue
		}
		feats := make(map[string]float64, len(h.Rolling)+len(a.Rolling))
		for k, v := range h.Rolling {
			feats["home_"+k] = v
		}
		for k, v := range a.Rolling {
			feats["away_"+k] = v
		}
		out = append(out, models.Matchup{
			ID:        h.GameID,
			Date:      h.Date,
			HomeTeam:  h.Team,
			AwayTeam:  a.Team,
			HomeScore: h.TeamScore,
			AwayScore: a.TeamScore,
			Features:  feats,
		})
	}
	return out
}

// Project keeps only the configured feature columns, NaN where absent.
func Project(rows []models.Matchup, columns []string) *models.Table {
	cols := append([]string(nil), columns...)
	out := &models.Table{Columns: cols, Rows: make([]models.Matchup, len(rows))}
	for i, m := range rows {
		feats := make(map[string]float64, len(cols))
		for _, c := range cols {
			v, ok := m.Features[c]
			if !ok {
				v = math.NaN()
			}
			feats[c] = v
		}
		m.Features = feats
		out.Rows[i] = m
	}
	return out
}

// Partition splits the merged table. Prediction rows are unplayed games on
// or after today, capped at half the number of distinct home teams unless
// limit is set. Training rows have both scores and every feature.
func Partition(all *models.Table, today time.Time, limit int) (train, predict *models.Table) {
	cutoff := util.MidnightUTC(today)
	train = &models.Table{Columns: all.Columns}
	predict = &models.Table{Columns: all.Columns}

	if limit <= 0 {
		teams := make(map[string]struct{})
		for _, m := range all.Rows {
			teams[m.HomeTeam] = struct{}{}
		}
		limit = len(teams) / 2
	}

	for _, m := range all.Rows {
		if !m.Date.Before(cutoff) && m.HomeScore == 0 && m.AwayScore == 0 && len(predict.Rows) < limit {
			predict.Rows = append(predict.Rows, m)
		}
		if m.HomeScore != 0 && m.AwayScore != 0 && complete(m, all.Columns) {
			train.Rows = append(train.Rows, m)
		}
	}
	return train, predict
}

func complete(m models.Matchup, columns []string) bool {
	for _, c := range columns {
		if v, ok := m.Features[c]; !ok || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case nil:
		return 0, fmt.Errorf("id is null")
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("id %v is not an integer", f)
	}
	return int64(f), nil
}
