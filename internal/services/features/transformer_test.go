package features

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/repository"
	"HoopsCast/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func rawGame(id, d int, home, away string, hs, as any) models.Record {
	return models.Record{
		"id":                 float64(id),
		"date":               fmt.Sprintf("2024-01-%02dT00:00:00.000Z", d),
		"season":             2023.0,
		"home_team":          map[string]any{"abbreviation": home, "city": "x"},
		"visitor_team":       map[string]any{"abbreviation": away},
		"home_team_score":    hs,
		"visitor_team_score": as,
	}
}

// Six completed AAA-BBB games, one postponed game, one upcoming game.
func fixture() []models.Record {
	var recs []models.Record
	for i := 1; i <= 6; i++ {
		recs = append(recs, rawGame(i, i, "AAA", "BBB", float64(100+i), float64(90+i)))
	}
	recs = append(recs, rawGame(100, 7, "AAA", "BBB", 0.0, 0.0))
	recs = append(recs, rawGame(7, 10, "AAA", "BBB", nil, nil))
	return recs
}

func testConfig() config.FeaturesConfig {
	return config.FeaturesConfig{
		Windows:        []int{1, 5},
		RollingColumns: []string{"team_score", "opponent_score"},
		Columns: []string{
			"home_avg_last_1_team_score",
			"home_avg_last_5_team_score",
			"home_avg_last_5_opponent_score",
			"away_avg_last_5_team_score",
		},
		Targets:      []string{"home_team_score", "away_team_score"},
		PredictLimit: 5,
	}
}

func row(t *testing.T, tbl *models.Table, id int64) models.Matchup {
	t.Helper()
	for _, m := range tbl.Rows {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("game %d not in table", id)
	return models.Matchup{}
}

func TestTransformRollingMeans(t *testing.T) {
	tr, err := NewTransformer(testConfig(), nil)
	require.NoError(t, err)

	parts, err := tr.Transform(fixture(), day(8))
	require.NoError(t, err)

	g6 := row(t, parts.All, 6)
	assert.InDelta(t, 103.0, g6.Features["home_avg_last_5_team_score"], 1e-9)
	assert.InDelta(t, 93.0, g6.Features["home_avg_last_5_opponent_score"], 1e-9)
	assert.InDelta(t, 93.0, g6.Features["away_avg_last_5_team_score"], 1e-9)

	g2 := row(t, parts.All, 2)
	assert.Equal(t, 101.0, g2.Features["home_avg_last_1_team_score"], "uses the previous game only")
	assert.True(t, math.IsNaN(g2.Features["home_avg_last_5_team_score"]))

	g1 := row(t, parts.All, 1)
	assert.True(t, math.IsNaN(g1.Features["home_avg_last_1_team_score"]), "first game has no history")

	// the postponed game never enters a window
	g7 := row(t, parts.All, 7)
	assert.Equal(t, 106.0, g7.Features["home_avg_last_1_team_score"])
	assert.InDelta(t, 104.0, g7.Features["home_avg_last_5_team_score"], 1e-9)
}

func TestTransformPartitions(t *testing.T) {
	tr, err := NewTransformer(testConfig(), nil)
	require.NoError(t, err)

	parts, err := tr.Transform(fixture(), day(8).Add(15*time.Hour))
	require.NoError(t, err)

	require.Equal(t, 1, parts.Train.Len())
	assert.Equal(t, int64(6), parts.Train.Rows[0].ID)
	for _, m := range parts.Train.Rows {
		assert.NotZero(t, m.HomeScore)
		assert.NotZero(t, m.AwayScore)
	}

	require.Equal(t, 1, parts.Predict.Len())
	p := parts.Predict.Rows[0]
	assert.Equal(t, int64(7), p.ID)
	assert.False(t, p.Date.Before(day(8)))
	assert.Equal(t, "AAA", p.HomeTeam)
	assert.Equal(t, "BBB", p.AwayTeam)
	assert.Equal(t, testConfig().Columns, parts.Predict.Columns)
}

func TestTransformDefaultPredictLimit(t *testing.T) {
	recs := fixture()
	recs = append(recs,
		rawGame(8, 11, "CCC", "DDD", nil, nil),
		rawGame(9, 12, "AAA", "CCC", nil, nil),
		rawGame(10, 12, "DDD", "BBB", nil, nil),
	)
	cfg := testConfig()
	cfg.PredictLimit = 0
	tr, err := NewTransformer(cfg, nil)
	require.NoError(t, err)

	parts, err := tr.Transform(recs, day(8))
	require.NoError(t, err)

	// three distinct home teams: AAA, CCC, DDD
	require.Equal(t, 1, parts.Predict.Len())
	assert.Equal(t, int64(7), parts.Predict.Rows[0].ID)
}

func TestTransformIsDeterministic(t *testing.T) {
	tr, err := NewTransformer(testConfig(), nil)
	require.NoError(t, err)

	first, err := tr.Transform(fixture(), day(8))
	require.NoError(t, err)

	shuffled := fixture()
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, err := tr.Transform(shuffled, day(8))
	require.NoError(t, err)

	// All carries the first games, whose rolling means are NaN.
	var codec repository.CSVCodec
	for name, pair := range map[string][2]*models.Table{
		"all":     {first.All, second.All},
		"train":   {first.Train, second.Train},
		"predict": {first.Predict, second.Predict},
	} {
		a, err := codec.Encode(pair[0])
		require.NoError(t, err, name)
		b, err := codec.Encode(pair[1])
		require.NoError(t, err, name)
		assert.Equal(t, string(a), string(b), name)
	}
	assert.True(t, math.IsNaN(row(t, first.All, 1).Features["home_avg_last_1_team_score"]))
}

func TestTransformMinGamesFilter(t *testing.T) {
	recs := append(fixture(), rawGame(50, 3, "CCC", "DDD", 80.0, 70.0))

	cfg := testConfig()
	cfg.MinGamesPerTeam = 3
	tr, err := NewTransformer(cfg, nil)
	require.NoError(t, err)

	parts, err := tr.Transform(recs, day(8))
	require.NoError(t, err)
	for _, m := range parts.All.Rows {
		assert.NotEqual(t, "CCC", m.HomeTeam)
	}

	cfg.MinGamesPerTeam = 0
	tr, err = NewTransformer(cfg, nil)
	require.NoError(t, err)
	parts, err = tr.Transform(recs, day(8))
	require.NoError(t, err)
	row(t, parts.All, 50)
}

func TestTransformMinGamesFilterBoundary(t *testing.T) {
	// AAA and BBB have exactly six completed games each.
	cfg := testConfig()
	cfg.MinGamesPerTeam = 6
	tr, err := NewTransformer(cfg, nil)
	require.NoError(t, err)

	parts, err := tr.Transform(fixture(), day(8))
	require.NoError(t, err)
	assert.Equal(t, 0, parts.All.Len())
	assert.Equal(t, 0, parts.Train.Len())
	assert.Equal(t, 0, parts.Predict.Len())

	cfg.MinGamesPerTeam = 5
	tr, err = NewTransformer(cfg, nil)
	require.NoError(t, err)

	parts, err = tr.Transform(fixture(), day(8))
	require.NoError(t, err)
	assert.Equal(t, 8, parts.All.Len())
	row(t, parts.All, 6)
}

func TestFilterMinGamesCountsOnlyCompleted(t *testing.T) {
	rows := []models.TeamGame{
		{GameID: 1, Team: "AAA", TeamScore: 100, OpponentScore: 90},
		{GameID: 2, Team: "AAA", TeamScore: 101, OpponentScore: 91},
		{GameID: 3, Team: "AAA"},
		{GameID: 1, Team: "BBB", TeamScore: 90, OpponentScore: 100},
	}
	kept := FilterMinGames(rows, 1)
	require.Len(t, kept, 3)
	for _, r := range kept {
		assert.Equal(t, "AAA", r.Team)
	}

	assert.Empty(t, FilterMinGames(rows, 2))
	assert.Len(t, FilterMinGames(rows, 0), 4)
}

func TestTransformMissingField(t *testing.T) {
	recs := fixture()
	delete(recs[2], "visitor_team_score")

	tr, err := NewTransformer(testConfig(), nil)
	require.NoError(t, err)
	_, err = tr.Transform(recs, day(8))
	assert.True(t, errors.Is(err, models.ErrMissingColumn))
}

func TestNewTransformerRejectsUnproducibleColumns(t *testing.T) {
	cfg := testConfig()
	cfg.Columns = append(cfg.Columns, "home_avg_last_7_team_score")
	_, err := NewTransformer(cfg, nil)
	assert.True(t, errors.Is(err, models.ErrMissingColumn))
}

func TestMergeDropsOneSidedGames(t *testing.T) {
	rows := []models.TeamGame{
		{GameID: 1, Date: day(1), Team: "AAA", IsHome: true},
		{GameID: 1, Date: day(1), Team: "BBB"},
		{GameID: 2, Date: day(2), Team: "AAA", IsHome: true},
	}
	out := Merge(rows)
	require.Len(t, out, 1)
	assert.Equal(t, "BBB", out[0].AwayTeam)
}

func TestTrailingMean(t *testing.T) {
	assert.Equal(t, 3.0, TrailingMean([]float64{1, 2, 3, 4}, 3))
	assert.True(t, math.IsNaN(TrailingMean([]float64{1, 2}, 3)))
	assert.Equal(t, "avg_last_5_team_score", RollingKey(5, "team_score"))
}
