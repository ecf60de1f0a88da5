package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	dservice "HoopsCast/internal/domain/service"
)

const (
	AlgorithmGBM    = "gbm"
	AlgorithmForest = "forest"
)

const (
	ParamNEstimators     = "n_estimators"
	ParamLearningRate    = "learning_rate"
	ParamMaxDepth        = "max_depth"
	ParamSubsample       = "subsample"
	ParamColsampleByTree = "colsample_bytree"
	ParamMaxFeatures     = "max_features"
	ParamMinSamplesLeaf  = "min_samples_leaf"
)

var (
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrNotFitted        = errors.New("model is not fitted")
	ErrShape            = errors.New("inconsistent matrix shape")
)

// Params holds named hyperparameters. Integer parameters are rounded.
type Params map[string]float64

func (p Params) Int(name string, def int) int {
	v, ok := p[name]
	if !ok || math.IsNaN(v) {
		return def
	}
	return int(math.Round(v))
}

func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok || math.IsNaN(v) {
		return def
	}
	return v
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Model fits one ensemble per target column.
type Model struct {
	Algorithm string      `json:"algorithm"`
	Params    Params      `json:"params"`
	Seed      int64       `json:"seed"`
	NFeatures int         `json:"n_features"`
	Outputs   []*Ensemble `json:"outputs"`
}

var _ dservice.Regressor = (*Model)(nil)

func New(algorithm string, params Params, seed int64) (*Model, error) {
	switch algorithm {
	case AlgorithmGBM, AlgorithmForest:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	if params == nil {
		params = Params{}
	}
	return &Model{Algorithm: algorithm, Params: params.Clone(), Seed: seed}, nil
}

// Clone returns an unfitted model with the same algorithm, params and seed.
func (m *Model) Clone() *Model {
	return &Model{Algorithm: m.Algorithm, Params: m.Params.Clone(), Seed: m.Seed}
}

func (m *Model) Fitted() bool {
	return len(m.Outputs) > 0
}

// Fit trains on X (n x d) against Y (n x k). Any previous fit is replaced.
func (m *Model) Fit(X [][]float64, Y [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("fit: %w: no rows", ErrShape)
	}
	if len(X) != len(Y) {
		return fmt.Errorf("fit: %w: %d feature rows, %d target rows", ErrShape, len(X), len(Y))
	}
	d, k := len(X[0]), len(Y[0])
	if d == 0 || k == 0 {
		return fmt.Errorf("fit: %w: %d features, %d targets", ErrShape, d, k)
	}
	for i := range X {
		if len(X[i]) != d || len(Y[i]) != k {
			return fmt.Errorf("fit: %w at row %d", ErrShape, i)
		}
	}

	outputs := make([]*Ensemble, k)
	y := make([]float64, len(Y))
	for j := 0; j < k; j++ {
		for i := range Y {
			y[i] = Y[i][j]
		}
		rng := rand.New(rand.NewSource(m.Seed + int64(j)))
		switch m.Algorithm {
		case AlgorithmGBM:
			outputs[j] = fitGBM(X, y, m.Params.gbm(), rng)
		case AlgorithmForest:
			outputs[j] = fitForest(X, y, m.Params.forest(), rng)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, m.Algorithm)
		}
	}

	m.NFeatures = d
	m.Outputs = outputs
	return nil
}

// Predict returns one row of k target values per input row.
func (m *Model) Predict(X [][]float64) ([][]float64, error) {
	if !m.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != m.NFeatures {
			return nil, fmt.Errorf("predict: %w: row %d has %d features, want %d", ErrShape, i, len(x), m.NFeatures)
		}
		row := make([]float64, len(m.Outputs))
		for j, e := range m.Outputs {
			row[j] = e.Predict(x)
		}
		out[i] = row
	}
	return out, nil
}
