package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/services/features"
	"HoopsCast/internal/services/ml"
	"HoopsCast/pkg/cache"
	"HoopsCast/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	records []models.Record
	err     error
	start   string
	end     *string
}

func (f *fakeSource) FetchGames(_ context.Context, start string, end *string) ([]models.Record, error) {
	f.start, f.end = start, end
	return f.records, f.err
}

type memDatasets struct {
	mu     sync.Mutex
	tables map[string]*models.Table
}

func newMemDatasets() *memDatasets { return &memDatasets{tables: map[string]*models.Table{}} }

func (m *memDatasets) Save(_ context.Context, key string, t *models.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key] = &models.Table{Columns: t.Columns, Rows: append([]models.Matchup(nil), t.Rows...)}
	return nil
}

func (m *memDatasets) Load(_ context.Context, key string) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDatasetNotFound, key)
	}
	return &models.Table{Columns: t.Columns, Rows: append([]models.Matchup(nil), t.Rows...)}, nil
}

type memModels struct {
	blobs map[string][]byte
	err   error
}

func (m *memModels) SaveModel(_ context.Context, key string, b []byte) error {
	if m.blobs == nil {
		m.blobs = map[string][]byte{}
	}
	m.blobs[key] = b
	return nil
}

func (m *memModels) LoadModel(_ context.Context, key string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, key)
	}
	return b, nil
}

type recPublisher struct {
	mu          sync.Mutex
	events      []models.PipelineEvent
	predictions []models.PredictionEvent
}

func (p *recPublisher) PublishPredictions(_ context.Context, evs []models.PredictionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions = append(p.predictions, evs...)
	return nil
}

func (p *recPublisher) PublishEvent(_ context.Context, ev models.PipelineEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recPublisher) Close() error { return nil }

func (p *recPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type recBroadcaster struct{ reports []*models.PredictionReport }

func (b *recBroadcaster) Broadcast(r *models.PredictionReport) { b.reports = append(b.reports, r) }

type memArchive struct{ stored []models.PredictionEvent }

func (a *memArchive) Init(context.Context) error { return nil }

func (a *memArchive) StorePredictions(_ context.Context, evs []models.PredictionEvent) error {
	a.stored = append(a.stored, evs...)
	return nil
}

func (a *memArchive) QueryPredictions(context.Context, time.Time, time.Time, int) ([]models.PredictionEvent, error) {
	return a.stored, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Features.Windows = []int{1, 2}
	cfg.Features.MinGamesPerTeam = 0
	cfg.Features.PredictLimit = 2
	cfg.Features.Columns = []string{
		"home_avg_last_2_team_score", "home_avg_last_2_opponent_score",
		"away_avg_last_2_team_score", "away_avg_last_2_opponent_score",
	}
	cfg.Trainer.GBM.NEstimators = 15
	cfg.Trainer.GBM.MaxDepth = 3
	cfg.Trainer.GBM.MinSamplesLeaf = 2
	cfg.Trainer.Search.Calls = 3
	cfg.Trainer.Search.InitialPoints = 2
	cfg.Trainer.Search.Candidates = 20
	return cfg
}

func rawGame(id int, d time.Time, home, away string, hs, as any) models.Record {
	return models.Record{
		"id":                 float64(id),
		"date":               d.Format(time.RFC3339),
		"home_team":          map[string]any{"abbreviation": home},
		"visitor_team":       map[string]any{"abbreviation": away},
		"home_team_score":    hs,
		"visitor_team_score": as,
	}
}

// Four teams play two games a day for 40 days, then two games are
// scheduled after the run date.
func season() []models.Record {
	var recs []models.Record
	id := 1
	for d := 0; d < 40; d++ {
		date := epoch.AddDate(0, 0, d)
		pairs := [][2]string{{"AAA", "BBB"}, {"CCC", "DDD"}}
		if d%2 == 1 {
			pairs = [][2]string{{"CCC", "AAA"}, {"DDD", "BBB"}}
		}
		for _, p := range pairs {
			recs = append(recs, rawGame(id, date, p[0], p[1], float64(100+(d*7)%13), float64(95+(d*5)%11)))
			id++
		}
	}
	next := epoch.AddDate(0, 0, 45)
	recs = append(recs, rawGame(1000, next, "AAA", "BBB", nil, nil))
	recs = append(recs, rawGame(1001, next, "CCC", "DDD", nil, nil))
	return recs
}

func runDate() time.Time { return epoch.AddDate(0, 0, 44) }

func newETL(t *testing.T, cfg *config.Config, src *fakeSource, ds *memDatasets, pub *recPublisher) *ETL {
	t.Helper()
	tr, err := features.NewTransformer(cfg.Features, nil)
	require.NoError(t, err)
	etl := NewETL(cfg, src, tr, ds, nil)
	if pub != nil {
		etl.SetPublisher(pub)
	}
	etl.SetClock(func() time.Time { return runDate() })
	return etl
}

func TestETLRunWritesBothPartitions(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{records: season()}
	ds := newMemDatasets()
	pub := &recPublisher{}

	summary, err := newETL(t, cfg, src, ds, pub).Run(context.Background(), ETLParams{StartDate: "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, 82, summary.Fetched)
	assert.Equal(t, 2, summary.PredictRows)
	assert.Greater(t, summary.TrainRows, 60)
	assert.Equal(t, "2024-01-01", summary.StartDate)
	assert.Nil(t, src.end)

	train, err := ds.Load(context.Background(), cfg.Storage.TrainKey)
	require.NoError(t, err)
	assert.Equal(t, summary.TrainRows, train.Len())
	for _, m := range train.Rows {
		assert.False(t, m.HomeScore == 0 && m.AwayScore == 0)
	}

	predict, err := ds.Load(context.Background(), cfg.Storage.PredictKey)
	require.NoError(t, err)
	for _, m := range predict.Rows {
		assert.False(t, m.Date.Before(runDate()))
	}
	assert.Equal(t, []string{models.EventETLCompleted}, pub.types())
}

func TestETLWindowFallsBackToLookback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.LookbackDays = 10
	cfg.Source.EndDate = "2024-03-01"
	src := &fakeSource{records: season()}

	_, err := newETL(t, cfg, src, newMemDatasets(), nil).Run(context.Background(), ETLParams{})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-04", src.start)
	require.NotNil(t, src.end)
	assert.Equal(t, "2024-03-01", *src.end)
}

func TestETLNoGames(t *testing.T) {
	cfg := testConfig(t)
	ds := newMemDatasets()
	pub := &recPublisher{}

	_, err := newETL(t, cfg, &fakeSource{}, ds, pub).Run(context.Background(), ETLParams{})
	require.ErrorIs(t, err, models.ErrNoGames)
	assert.Empty(t, ds.tables)
	assert.Equal(t, []string{models.EventPipelineFailed}, pub.types())
}

func TestETLSourceErrorAborts(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("upstream 500")
	ds := newMemDatasets()

	_, err := newETL(t, cfg, &fakeSource{err: boom}, ds, nil).Run(context.Background(), ETLParams{})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, ds.tables)
}

// seeded runs the ETL so the training and prediction tables exist.
func seeded(t *testing.T, cfg *config.Config) *memDatasets {
	t.Helper()
	ds := newMemDatasets()
	_, err := newETL(t, cfg, &fakeSource{records: season()}, ds, nil).Run(context.Background(), ETLParams{})
	require.NoError(t, err)
	return ds
}

func TestTrainerPersistsArtifact(t *testing.T) {
	cfg := testConfig(t)
	ds := seeded(t, cfg)
	store := &memModels{}
	pub := &recPublisher{}

	tr := NewTrainer(cfg, ds, store, nil)
	tr.SetPublisher(pub)
	summary, err := tr.Run(context.Background(), TrainParams{})
	require.NoError(t, err)

	assert.Equal(t, "gbm", summary.Algorithm)
	assert.False(t, summary.Searched)
	assert.Contains(t, summary.Metrics, "rmse")
	assert.Equal(t, 15.0, summary.Params["n_estimators"])
	require.Contains(t, store.blobs, cfg.Storage.ModelKey)
	assert.Equal(t, []string{models.EventModelTrained}, pub.types())

	train, _ := ds.Load(context.Background(), cfg.Storage.TrainKey)
	assert.Equal(t, train.Len(), summary.TrainRows+summary.TestRows)
}

func TestTrainerSearch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trainer.Algorithm = "forest"
	cfg.Trainer.Forest.NEstimators = 10
	ds := seeded(t, cfg)
	store := &memModels{}

	on := true
	summary, err := NewTrainer(cfg, ds, store, nil).Run(context.Background(), TrainParams{Search: &on})
	require.NoError(t, err)
	assert.True(t, summary.Searched)
	assert.Equal(t, "forest", summary.Algorithm)
	assert.GreaterOrEqual(t, summary.Params["n_estimators"], 100.0)
}

func TestTrainerMissingTable(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewTrainer(cfg, newMemDatasets(), &memModels{}, nil).Run(context.Background(), TrainParams{})
	require.ErrorIs(t, err, models.ErrDatasetNotFound)
}

func TestTrainerTooFewRows(t *testing.T) {
	cfg := testConfig(t)
	ds := newMemDatasets()
	require.NoError(t, ds.Save(context.Background(), cfg.Storage.TrainKey, &models.Table{
		Columns: cfg.Features.Columns,
		Rows:    []models.Matchup{{ID: 1, HomeScore: 1, AwayScore: 1}},
	}))
	_, err := NewTrainer(cfg, ds, &memModels{}, nil).Run(context.Background(), TrainParams{})
	require.ErrorIs(t, err, models.ErrEmptyTable)
}

func trained(t *testing.T, cfg *config.Config) (*memDatasets, *memModels) {
	t.Helper()
	ds := seeded(t, cfg)
	store := &memModels{}
	_, err := NewTrainer(cfg, ds, store, nil).Run(context.Background(), TrainParams{})
	require.NoError(t, err)
	return ds, store
}

func TestPredictorReport(t *testing.T) {
	cfg := testConfig(t)
	ds, store := trained(t, cfg)
	pub := &recPublisher{}
	bc := &recBroadcaster{}

	p := NewPredictor(cfg, ds, store, nil)
	p.SetPublisher(pub)
	p.SetBroadcaster(bc)
	report, err := p.Predict(context.Background(), PredictParams{})
	require.NoError(t, err)

	require.Len(t, report.Predictions, 2)
	first := report.Predictions[0]
	assert.Equal(t, int64(1000), first.GameID)
	assert.Equal(t, "AAA vs BBB", first.Match)
	assert.InDelta(t, first.HomeScore+first.AwayScore, first.Total, 1e-9)
	assert.Greater(t, first.HomeScore, 50.0)
	require.NotNil(t, report.RMSE)
	assert.GreaterOrEqual(t, *report.RMSE, 0.0)

	assert.Len(t, pub.predictions, 2)
	assert.Len(t, bc.reports, 1)
}

func TestPredictorWithoutValidation(t *testing.T) {
	cfg := testConfig(t)
	ds, store := trained(t, cfg)

	off := false
	report, err := NewPredictor(cfg, ds, store, nil).Predict(context.Background(), PredictParams{Validate: &off})
	require.NoError(t, err)
	assert.Nil(t, report.RMSE)
	assert.Len(t, report.Predictions, 2)
}

func TestPredictorRejectsSchemaDrift(t *testing.T) {
	cfg := testConfig(t)
	ds, store := trained(t, cfg)

	predict, _ := ds.Load(context.Background(), cfg.Storage.PredictKey)
	predict.Columns = predict.Columns[:2]
	require.NoError(t, ds.Save(context.Background(), cfg.Storage.PredictKey, predict))

	_, err := NewPredictor(cfg, ds, store, nil).Predict(context.Background(), PredictParams{})
	require.ErrorIs(t, err, models.ErrFeatureSchemaMismatch)
}

func TestSchemaMatricesFollowArtifactOrder(t *testing.T) {
	tbl := &models.Table{
		Columns: []string{"f1", "f2"},
		Rows: []models.Matchup{
			{ID: 1, HomeScore: 101, AwayScore: 99, Features: map[string]float64{"f1": 1, "f2": 2}},
			{ID: 2, HomeScore: 95, AwayScore: 97, Features: map[string]float64{"f1": 3, "f2": 4}},
		},
	}
	artifact := &ml.Artifact{
		Features: []string{"f2", "f1"},
		Targets:  []string{models.ColumnHomeScore, models.ColumnAwayScore},
	}

	X, Y, err := schemaMatrices(tbl, artifact)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 1}, {4, 3}}, X)
	assert.Equal(t, [][]float64{{101, 99}, {95, 97}}, Y)
}

func TestSchemaMatricesReportMissingColumns(t *testing.T) {
	tbl := &models.Table{
		Columns: []string{"f1"},
		Rows:    []models.Matchup{{ID: 1, Features: map[string]float64{"f1": 1}}},
	}

	_, _, err := schemaMatrices(tbl, &ml.Artifact{Features: []string{"f1", "f2"}, Targets: []string{models.ColumnHomeScore}})
	require.ErrorIs(t, err, models.ErrFeatureSchemaMismatch)

	X, Y, err := schemaMatrices(tbl, &ml.Artifact{Features: []string{"f1"}, Targets: []string{"margin"}})
	require.ErrorIs(t, err, models.ErrMissingColumn)
	assert.Nil(t, X)
	assert.Nil(t, Y)
}

func TestPredictorMissingModel(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewPredictor(cfg, seeded(t, cfg), &memModels{}, nil).Predict(context.Background(), PredictParams{})
	require.ErrorIs(t, err, models.ErrModelNotFound)
}

func TestPredictorCache(t *testing.T) {
	cfg := testConfig(t)
	ds, store := trained(t, cfg)
	mc := cache.NewMemoryCache()
	defer mc.Close()

	p := NewPredictor(cfg, ds, store, nil)
	p.SetCache(mc)
	first, err := p.Predict(context.Background(), PredictParams{})
	require.NoError(t, err)

	store.err = errors.New("storage down")
	cached, err := p.Predict(context.Background(), PredictParams{})
	require.NoError(t, err)
	assert.Equal(t, len(first.Predictions), len(cached.Predictions))

	_, err = p.Predict(context.Background(), PredictParams{Refresh: true})
	require.Error(t, err)

	require.NoError(t, p.Invalidate(context.Background()))
	_, err = p.Predict(context.Background(), PredictParams{})
	require.Error(t, err)
}

func TestPipelineLockBusy(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	lock := NewPipelineLock(mc, time.Minute)

	err := lock.Do(context.Background(), func(ctx context.Context) error {
		return lock.Do(ctx, func(context.Context) error { return nil })
	})
	require.ErrorIs(t, err, models.ErrPipelineBusy)

	ran := false
	require.NoError(t, lock.Do(context.Background(), func(context.Context) error { ran = true; return nil }))
	assert.True(t, ran)
}

func TestETLJobRunsUnderLock(t *testing.T) {
	cfg := testConfig(t)
	ds := newMemDatasets()
	mc := cache.NewMemoryCache()
	defer mc.Close()

	job := NewETLJob(newETL(t, cfg, &fakeSource{records: season()}, ds, nil), nil, NewPipelineLock(mc, time.Minute), nil)
	assert.Equal(t, JobETL, job.Type())
	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`{"today":"2024-02-14"}`)))
	assert.Contains(t, ds.tables, cfg.Storage.TrainKey)

	locked, err := mc.TryLock(context.Background(), pipelineLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, locked)
	err = job.Handle(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrPipelineBusy)
}

func TestPredictionArchiver(t *testing.T) {
	archive := &memArchive{}
	h := NewPredictionArchiver("hoopscast.predictions", archive, nil)
	assert.Equal(t, "hoopscast.predictions", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"run_id":"r1","prediction":{"game_id":7,"match":"AAA vs BBB"},"model":"gbm"}`))
	require.NoError(t, err)
	require.Len(t, archive.stored, 1)
	assert.Equal(t, int64(7), archive.stored[0].Prediction.GameID)

	require.Error(t, h.Handle(context.Background(), []byte(`{`)))
	require.Error(t, h.Handle(context.Background(), []byte(`{"run_id":"r1"}`)))
}

type recEnqueuer struct{ types []string }

func (e *recEnqueuer) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	e.types = append(e.types, msgType)
	return "id", nil
}

func TestSchedulerRegister(t *testing.T) {
	enq := &recEnqueuer{}
	s := NewScheduler(config.ScheduleConfig{ETL: "0 10 * * *", Train: ""}, enq, nil)
	require.NoError(t, s.Register())
	assert.Equal(t, 1, s.Entries())

	s.fire(JobETL, models.ETLRequest{})
	assert.Equal(t, []string{JobETL}, enq.types)

	bad := NewScheduler(config.ScheduleConfig{ETL: "not a cron"}, enq, nil)
	require.Error(t, bad.Register())
}
