package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Dimension is one bounded hyperparameter. Integer dimensions are rounded
// before evaluation; Log dimensions are sampled uniformly in log space.
type Dimension struct {
	Name    string
	Low     float64
	High    float64
	Integer bool
	Log     bool
}

type SearchOptions struct {
	Calls         int
	InitialPoints int
	Candidates    int
	Seed          int64
	// Xi trades exploration for exploitation in expected improvement.
	Xi float64
}

type Trial struct {
	Params Params  `json:"params"`
	Score  float64 `json:"score"`
}

type SearchResult struct {
	Best      Params  `json:"best"`
	BestScore float64 `json:"best_score"`
	Trials    []Trial `json:"trials"`
}

// Objective scores one parameter set; lower is better.
type Objective func(ctx context.Context, p Params) (float64, error)

// GBMSpace is the default search space for gradient boosting.
func GBMSpace() []Dimension {
	return []Dimension{
		{Name: ParamNEstimators, Low: 100, High: 1000, Integer: true},
		{Name: ParamLearningRate, Low: 0.01, High: 0.5, Log: true},
		{Name: ParamMaxDepth, Low: 1, High: 30, Integer: true},
		{Name: ParamSubsample, Low: 0.1, High: 1},
		{Name: ParamColsampleByTree, Low: 0.1, High: 1},
	}
}

// ForestSpace is the default search space for random forests.
func ForestSpace() []Dimension {
	return []Dimension{
		{Name: ParamNEstimators, Low: 100, High: 1000, Integer: true},
		{Name: ParamMaxDepth, Low: 1, High: 30, Integer: true},
		{Name: ParamMaxFeatures, Low: 0.1, High: 1},
	}
}

func SpaceFor(algorithm string) ([]Dimension, error) {
	switch algorithm {
	case AlgorithmGBM:
		return GBMSpace(), nil
	case AlgorithmForest:
		return ForestSpace(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
}

// Minimize runs sequential model-based optimisation. The first
// InitialPoints are drawn at random; after that a random-forest surrogate is
// fitted on every evaluated point and the candidate with the highest expected
// improvement is evaluated next. base supplies parameters outside the space.
func Minimize(ctx context.Context, objective Objective, space []Dimension, base Params, opts SearchOptions) (*SearchResult, error) {
	if len(space) == 0 {
		return nil, errors.New("search space is empty")
	}
	if opts.Calls <= 0 {
		opts.Calls = 20
	}
	if opts.InitialPoints <= 0 {
		opts.InitialPoints = 5
	}
	if opts.InitialPoints > opts.Calls {
		opts.InitialPoints = opts.Calls
	}
	if opts.Candidates <= 0 {
		opts.Candidates = 500
	}
	if opts.Xi == 0 {
		opts.Xi = 0.01
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	res := &SearchResult{BestScore: math.Inf(1)}
	var points [][]float64
	var scores []float64

	for call := 0; call < opts.Calls; call++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var u []float64
		if call < opts.InitialPoints {
			u = randomPoint(rng, len(space))
		} else {
			u = nextPoint(points, scores, len(space), opts, rng)
		}

		p := decode(space, u, base)
		score, err := objective(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("objective call %d: %w", call, err)
		}

		points = append(points, u)
		scores = append(scores, score)
		res.Trials = append(res.Trials, Trial{Params: p, Score: score})
		if score < res.BestScore {
			res.BestScore = score
			res.Best = p
		}
	}
	return res, nil
}

func randomPoint(rng *rand.Rand, d int) []float64 {
	u := make([]float64, d)
	for i := range u {
		u[i] = rng.Float64()
	}
	return u
}

func nextPoint(points [][]float64, scores []float64, d int, opts SearchOptions, rng *rand.Rand) []float64 {
	surrogate := fitForest(points, scores, forestParams{
		nEstimators:    50,
		maxDepth:       8,
		maxFeatures:    1,
		minSamplesLeaf: 1,
	}, rng)

	best := math.Inf(1)
	for _, s := range scores {
		best = math.Min(best, s)
	}

	var pick []float64
	bestEI := math.Inf(-1)
	for c := 0; c < opts.Candidates; c++ {
		u := randomPoint(rng, d)
		mu, sigma := surrogate.PredictDist(u)
		ei := ExpectedImprovement(mu, sigma, best, opts.Xi)
		if ei > bestEI {
			bestEI = ei
			pick = u
		}
	}
	return pick
}

// ExpectedImprovement of a normal prediction (mu, sigma) below best.
func ExpectedImprovement(mu, sigma, best, xi float64) float64 {
	imp := best - mu - xi
	if sigma <= 0 {
		return math.Max(imp, 0)
	}
	z := imp / sigma
	return imp*normCDF(z) + sigma*normPDF(z)
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func normPDF(z float64) float64 {
	return math.Exp(-0.5*z*z) / math.Sqrt(2*math.Pi)
}

// decode maps a point of the unit cube onto the space.
func decode(space []Dimension, u []float64, base Params) Params {
	p := base.Clone()
	for i, dim := range space {
		var v float64
		if dim.Log && dim.Low > 0 {
			lo, hi := math.Log(dim.Low), math.Log(dim.High)
			v = math.Exp(lo + u[i]*(hi-lo))
		} else {
			v = dim.Low + u[i]*(dim.High-dim.Low)
		}
		if dim.Integer {
			v = math.Round(v)
		}
		p[dim.Name] = math.Min(math.Max(v, dim.Low), dim.High)
	}
	return p
}
