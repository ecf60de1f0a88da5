package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"HoopsCast/internal/domain/models"
	"HoopsCast/pkg/objectstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *models.Table {
	return &models.Table{
		Columns: []string{"home_avg_last_5_team_score", "away_avg_last_5_team_score"},
		Rows: []models.Matchup{
			{
				ID: 11, Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				HomeTeam: "BOS", AwayTeam: "NYK", HomeScore: 110, AwayScore: 98,
				Features: map[string]float64{"home_avg_last_5_team_score": 104.2, "away_avg_last_5_team_score": math.NaN()},
			},
			{
				ID: 12, Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
				HomeTeam: "LAL", AwayTeam: "GSW",
				Features: map[string]float64{"home_avg_last_5_team_score": 99.5, "away_avg_last_5_team_score": 101},
			},
		},
	}
}

func TestCSVEncodeLayout(t *testing.T) {
	b, err := CSVCodec{}.Encode(sampleTable())
	require.NoError(t, err)

	want := "id,home_date,home_team_abbreviation,away_team_abbreviation,home_team_score,away_team_score,home_avg_last_5_team_score,away_avg_last_5_team_score\n" +
		"11,2024-01-02,BOS,NYK,110,98,104.2,\n" +
		"12,2024-01-03,LAL,GSW,0,0,99.5,101\n"
	assert.Equal(t, want, string(b))
}

func assertTablesEqual(t *testing.T, want, got *models.Table) {
	t.Helper()
	require.Equal(t, want.Columns, got.Columns)
	require.Len(t, got.Rows, len(want.Rows))
	for i := range want.Rows {
		w, g := want.Rows[i], got.Rows[i]
		assert.Equal(t, w.ID, g.ID)
		assert.True(t, w.Date.Equal(g.Date))
		assert.Equal(t, w.HomeTeam, g.HomeTeam)
		assert.Equal(t, w.AwayTeam, g.AwayTeam)
		assert.Equal(t, w.HomeScore, g.HomeScore)
		assert.Equal(t, w.AwayScore, g.AwayScore)
		for _, c := range want.Columns {
			if math.IsNaN(w.Features[c]) {
				assert.True(t, math.IsNaN(g.Features[c]), c)
				continue
			}
			assert.Equal(t, w.Features[c], g.Features[c], c)
		}
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	for _, format := range []string{"csv", "parquet"} {
		t.Run(format, func(t *testing.T) {
			codec, err := CodecFor(format)
			require.NoError(t, err)

			b, err := codec.Encode(sampleTable())
			require.NoError(t, err)
			got, err := codec.Decode(b)
			require.NoError(t, err)
			assertTablesEqual(t, sampleTable(), got)
		})
	}
}

func TestCSVDecodeRequiresBaseColumns(t *testing.T) {
	_, err := CSVCodec{}.Decode([]byte("id,home_date\n1,2024-01-01\n"))
	assert.True(t, errors.Is(err, models.ErrMissingColumn))

	_, err = CSVCodec{}.Decode(nil)
	assert.True(t, errors.Is(err, models.ErrEmptyTable))
}

func TestCodecForUnknown(t *testing.T) {
	_, err := CodecFor("xlsx")
	assert.Error(t, err)
}

func TestObjectStores(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ds := NewObjectDatasetStore(store, CSVCodec{})
	require.NoError(t, ds.Save(ctx, "games.csv", sampleTable()))
	got, err := ds.Load(ctx, "games.csv")
	require.NoError(t, err)
	assertTablesEqual(t, sampleTable(), got)

	_, err = ds.Load(ctx, "to_predict.csv")
	assert.True(t, errors.Is(err, models.ErrDatasetNotFound))

	ms := NewObjectModelStore(store)
	_, err = ms.LoadModel(ctx, "best_model.json.zst")
	assert.True(t, errors.Is(err, models.ErrModelNotFound))

	require.NoError(t, ms.SaveModel(ctx, "best_model.json.zst", []byte{1, 2, 3}))
	b, err := ms.LoadModel(ctx, "best_model.json.zst")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
}
