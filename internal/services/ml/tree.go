package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a regression tree, stored flat. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree minimising squared error.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks x down the tree. NaN features follow the right branch.
func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Left < 0 {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type treeConfig struct {
	maxDepth int
	minLeaf  int
	// splitFeatures is the number of candidate features drawn per split;
	// 0 means every allowed feature.
	splitFeatures int
}

type treeBuilder struct {
	X        [][]float64
	y        []float64
	cfg      treeConfig
	features []int
	rng      *rand.Rand
	nodes    []Node
}

// fitTree grows a tree on the rows in idx using only the given feature
// columns.
func fitTree(X [][]float64, y []float64, idx []int, features []int, cfg treeConfig, rng *rand.Rand) *Tree {
	if cfg.minLeaf < 1 {
		cfg.minLeaf = 1
	}
	b := &treeBuilder{X: X, y: y, cfg: cfg, features: features, rng: rng}
	b.build(append([]int(nil), idx...), 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	id := len(b.nodes)
	value := 0.0
	if len(idx) > 0 {
		value = sum / float64(len(idx))
	}
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: value})

	if depth >= b.cfg.maxDepth || len(idx) < 2*b.cfg.minLeaf {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) candidates() []int {
	k := b.cfg.splitFeatures
	if k <= 0 || k >= len(b.features) {
		return b.features
	}
	perm := b.rng.Perm(len(b.features))[:k]
	sort.Ints(perm)
	out := make([]int, k)
	for i, p := range perm {
		out[i] = b.features[p]
	}
	return out
}

// bestSplit maximises sum_l²/n_l + sum_r²/n_r, which minimises the summed
// squared error of the children.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	best := parent + 1e-12
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := make([]int, n)
	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		leftSum := 0.0
		for i := 0; i < n-1; i++ {
			leftSum += b.y[sorted[i]]
			nl, nr := i+1, n-i-1
			if nl < b.cfg.minLeaf {
				continue
			}
			if nr < b.cfg.minLeaf {
				break
			}
			a, c := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if a == c || math.IsNaN(a) || math.IsNaN(c) {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > best {
				best = score
				bestFeature = f
				bestThreshold = a + (c-a)/2
				if bestThreshold >= c {
					bestThreshold = a
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
