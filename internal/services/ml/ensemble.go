package ml

import (
	"math"
	"math/rand"
)

// Ensemble predicts Base + Shrinkage * sum(tree outputs). Gradient boosting
// stores its initial mean and learning rate; a forest stores 0 and 1/n.
type Ensemble struct {
	Base      float64 `json:"base"`
	Shrinkage float64 `json:"shrinkage"`
	Trees     []*Tree `json:"trees"`
}

func (e *Ensemble) Predict(x []float64) float64 {
	s := e.Base
	for _, t := range e.Trees {
		s += e.Shrinkage * t.Predict(x)
	}
	return s
}

// PredictDist returns the mean and standard deviation of the individual tree
// outputs. Only meaningful for forests.
func (e *Ensemble) PredictDist(x []float64) (mean, std float64) {
	if len(e.Trees) == 0 {
		return e.Base, 0
	}
	var sum, sq float64
	for _, t := range e.Trees {
		v := t.Predict(x)
		sum += v
		sq += v * v
	}
	n := float64(len(e.Trees))
	mean = sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

type gbmParams struct {
	nEstimators     int
	learningRate    float64
	maxDepth        int
	subsample       float64
	colsampleByTree float64
	minSamplesLeaf  int
}

func (p Params) gbm() gbmParams {
	return gbmParams{
		nEstimators:     p.Int(ParamNEstimators, 300),
		learningRate:    p.Float(ParamLearningRate, 0.05),
		maxDepth:        p.Int(ParamMaxDepth, 4),
		subsample:       clamp01(p.Float(ParamSubsample, 0.8)),
		colsampleByTree: clamp01(p.Float(ParamColsampleByTree, 0.8)),
		minSamplesLeaf:  p.Int(ParamMinSamplesLeaf, 5),
	}
}

// fitGBM fits squared-loss gradient boosting: each tree is fitted on the
// residuals of the current prediction over a row and column subsample.
func fitGBM(X [][]float64, y []float64, p gbmParams, rng *rand.Rand) *Ensemble {
	n, d := len(X), len(X[0])
	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	e := &Ensemble{Base: base, Shrinkage: p.learningRate}
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, n)
	cfg := treeConfig{maxDepth: p.maxDepth, minLeaf: p.minSamplesLeaf}

	rows := sampleSize(n, p.subsample)
	cols := sampleSize(d, p.colsampleByTree)
	for m := 0; m < p.nEstimators; m++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		idx := sortedSample(rng, n, rows)
		features := sortedSample(rng, d, cols)

		t := fitTree(X, resid, idx, features, cfg, rng)
		e.Trees = append(e.Trees, t)
		for i := range pred {
			pred[i] += p.learningRate * t.Predict(X[i])
		}
	}
	return e
}

type forestParams struct {
	nEstimators    int
	maxDepth       int
	maxFeatures    float64
	minSamplesLeaf int
}

func (p Params) forest() forestParams {
	return forestParams{
		nEstimators:    p.Int(ParamNEstimators, 200),
		maxDepth:       p.Int(ParamMaxDepth, 10),
		maxFeatures:    clamp01(p.Float(ParamMaxFeatures, 0.5)),
		minSamplesLeaf: p.Int(ParamMinSamplesLeaf, 3),
	}
}

// fitForest bags trees on bootstrap samples with per-split feature sampling.
func fitForest(X [][]float64, y []float64, p forestParams, rng *rand.Rand) *Ensemble {
	n, d := len(X), len(X[0])
	features := make([]int, d)
	for i := range features {
		features[i] = i
	}
	cfg := treeConfig{
		maxDepth:      p.maxDepth,
		minLeaf:       p.minSamplesLeaf,
		splitFeatures: sampleSize(d, p.maxFeatures),
	}

	e := &Ensemble{Shrinkage: 1 / float64(p.nEstimators)}
	idx := make([]int, n)
	for m := 0; m < p.nEstimators; m++ {
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		e.Trees = append(e.Trees, fitTree(X, y, idx, features, cfg, rng))
	}
	return e
}

func sampleSize(n int, frac float64) int {
	k := int(math.Round(frac * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// sortedSample draws k distinct indices from [0,n) without replacement.
func sortedSample(rng *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	picked := make([]bool, n)
	for _, p := range rng.Perm(n)[:k] {
		picked[p] = true
	}
	out := make([]int, 0, k)
	for i, ok := range picked {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 1
	}
	if v > 1 {
		return 1
	}
	return v
}
