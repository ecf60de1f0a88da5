package ml

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"HoopsCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearData has two informative features and one noise column.
func linearData(n int, seed int64) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	Y := make([][]float64, n)
	for i := range X {
		a, b, noise := rng.Float64()*10, rng.Float64()*10, rng.Float64()
		X[i] = []float64{a, b, noise}
		Y[i] = []float64{100 + 3*a - b, 90 + 2*b}
	}
	return X, Y
}

func TestTreeFitsStepFunction(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []float64{10, 10, 10, 20, 20, 20}
	tree := fitTree(X, y, []int{0, 1, 2, 3, 4, 5}, []int{0}, treeConfig{maxDepth: 3, minLeaf: 1}, rand.New(rand.NewSource(1)))

	assert.Equal(t, 10.0, tree.Predict([]float64{2.5}))
	assert.Equal(t, 20.0, tree.Predict([]float64{5.5}))
	assert.Equal(t, 1, tree.Depth(), "a pure split needs no further depth")
	assert.Equal(t, 3.5, tree.Nodes[0].Threshold)
}

func TestTreeRespectsMinLeaf(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{0, 0, 0, 100}
	tree := fitTree(X, y, []int{0, 1, 2, 3}, []int{0}, treeConfig{maxDepth: 5, minLeaf: 2}, rand.New(rand.NewSource(1)))
	for _, n := range tree.Nodes {
		if n.Left < 0 {
			continue
		}
		assert.Equal(t, 2.5, n.Threshold)
	}
}

func TestGBMBeatsMeanBaseline(t *testing.T) {
	X, Y := linearData(300, 1)
	m, err := New(AlgorithmGBM, Params{ParamNEstimators: 80, ParamLearningRate: 0.1, ParamMaxDepth: 3, ParamMinSamplesLeaf: 2}, 42)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X[:240], Y[:240]))

	pred, err := m.Predict(X[240:])
	require.NoError(t, err)
	require.Len(t, pred, 60)
	require.Len(t, pred[0], 2)

	actual := Y[240:]
	baseline := make([][]float64, len(actual))
	for i := range baseline {
		baseline[i] = []float64{m.Outputs[0].Base, m.Outputs[1].Base}
	}
	assert.Less(t, Score(actual, pred)["rmse"], Score(actual, baseline)["rmse"]/2)
}

func TestForestIsDeterministicPerSeed(t *testing.T) {
	X, Y := linearData(120, 2)
	params := Params{ParamNEstimators: 20, ParamMaxDepth: 6, ParamMaxFeatures: 0.7, ParamMinSamplesLeaf: 2}

	a, _ := New(AlgorithmForest, params, 7)
	b, _ := New(AlgorithmForest, params, 7)
	require.NoError(t, a.Fit(X, Y))
	require.NoError(t, b.Fit(X, Y))

	pa, err := a.Predict(X[:10])
	require.NoError(t, err)
	pb, err := b.Predict(X[:10])
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	mean, std := a.Outputs[0].PredictDist(X[0])
	assert.InDelta(t, pa[0][0], mean, 1e-9)
	assert.GreaterOrEqual(t, std, 0.0)
}

func TestModelCloneIsUnfitted(t *testing.T) {
	X, Y := linearData(50, 3)
	m, _ := New(AlgorithmGBM, Params{ParamNEstimators: 5}, 1)
	require.NoError(t, m.Fit(X, Y))

	c := m.Clone()
	assert.False(t, c.Fitted())
	assert.Equal(t, m.Params, c.Params)
	_, err := c.Predict(X)
	assert.True(t, errors.Is(err, ErrNotFitted))
}

func TestModelRejectsBadShapes(t *testing.T) {
	m, _ := New(AlgorithmGBM, nil, 1)
	assert.True(t, errors.Is(m.Fit(nil, nil), ErrShape))
	assert.True(t, errors.Is(m.Fit([][]float64{{1}}, [][]float64{{1}, {2}}), ErrShape))

	_, err := New("svm", nil, 1)
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestMinimizeFindsQuadraticMinimum(t *testing.T) {
	space := []Dimension{{Name: "x", Low: 0, High: 1}, {Name: "y", Low: 0, High: 1}}
	calls := 0
	obj := func(_ context.Context, p Params) (float64, error) {
		calls++
		dx, dy := p["x"]-0.3, p["y"]-0.7
		return dx*dx + dy*dy, nil
	}

	res, err := Minimize(context.Background(), obj, space, Params{"fixed": 1}, SearchOptions{Calls: 25, InitialPoints: 5, Candidates: 200, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, 25, calls)
	assert.Len(t, res.Trials, 25)
	assert.Less(t, res.BestScore, 0.05)
	assert.Equal(t, 1.0, res.Best["fixed"])

	again, err := Minimize(context.Background(), obj, space, Params{"fixed": 1}, SearchOptions{Calls: 25, InitialPoints: 5, Candidates: 200, Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, res.Best, again.Best)
}

func TestMinimizeStopsOnObjectiveError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Minimize(context.Background(), func(context.Context, Params) (float64, error) {
		return 0, boom
	}, GBMSpace(), nil, SearchOptions{Calls: 3})
	assert.True(t, errors.Is(err, boom))
}

func TestDecodeRespectsBounds(t *testing.T) {
	p := decode(GBMSpace(), []float64{0, 1, 0.5, 0, 1}, nil)
	assert.Equal(t, 100.0, p[ParamNEstimators])
	assert.InDelta(t, 0.5, p[ParamLearningRate], 1e-9)
	assert.Equal(t, math.Round(p[ParamMaxDepth]), p[ParamMaxDepth])
	assert.Equal(t, 0.1, p[ParamSubsample])
}

func TestExpectedImprovement(t *testing.T) {
	assert.Equal(t, 0.0, ExpectedImprovement(5, 0, 1, 0))
	assert.Equal(t, 2.0, ExpectedImprovement(1, 0, 3, 0))
	assert.Greater(t, ExpectedImprovement(1, 1, 1, 0), 0.0)
}

func TestMetrics(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	p := []float64{1, 2, 3, 6}
	assert.Equal(t, 1.0, MSE(a, p))
	assert.Equal(t, 1.0, RMSE(a, p))
	assert.Equal(t, 0.5, MAE(a, p))
	assert.InDelta(t, 0.2, R2(a, p), 1e-9)
	assert.Equal(t, []float64{3, 7}, RowSums([][]float64{{1, 2}, {3, 4}}))
}

func TestArtifactRoundTrip(t *testing.T) {
	X, Y := linearData(60, 4)
	m, _ := New(AlgorithmGBM, Params{ParamNEstimators: 10, ParamMaxDepth: 2}, 9)
	require.NoError(t, m.Fit(X, Y))

	trainedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	art := NewArtifact(m, []string{"f1", "f2", "f3"}, []string{"home_team_score", "away_team_score"},
		map[string]float64{"rmse": 1.5, "r2": math.NaN()}, 60, trainedAt)

	b, err := art.Encode()
	require.NoError(t, err)
	got, err := DecodeArtifact(b)
	require.NoError(t, err)

	assert.Equal(t, art.Features, got.Features)
	assert.Equal(t, map[string]float64{"rmse": 1.5}, got.Metrics)
	assert.True(t, trainedAt.Equal(got.TrainedAt))

	want, _ := m.Predict(X[:5])
	have, err := got.Model.Predict(X[:5])
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestArtifactCheckSchema(t *testing.T) {
	art := &Artifact{Features: []string{"a", "b"}, Targets: []string{"home_team_score"}, Model: &Model{Algorithm: AlgorithmGBM}}
	ok := &models.Table{Columns: []string{"b", "a", "c"}}
	assert.NoError(t, art.CheckSchema(ok))
	assert.NoError(t, art.CheckTargets(ok))

	bad := &models.Table{Columns: []string{"a"}}
	assert.True(t, errors.Is(art.CheckSchema(bad), models.ErrFeatureSchemaMismatch))
}

func TestDecodeArtifactRejectsGarbage(t *testing.T) {
	_, err := DecodeArtifact([]byte("not zstd"))
	assert.Error(t, err)
}
