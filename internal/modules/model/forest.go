// Package model trains and evaluates the next-session direction classifier
// and owns the persisted model payload contract.
package model

import (
	"math"
	"math/rand"
	"sort"
)

// Hyperparams configures forest training. Chosen by training-set size, not
// by the caller: small Taiwan-stock histories overfit trivially without the
// regularized tier.
type Hyperparams struct {
	NumTrees    int   `json:"num_trees" msgpack:"num_trees"`
	MaxDepth    int   `json:"max_depth" msgpack:"max_depth"` // 0 = unbounded
	MinLeafSize int   `json:"min_leaf_size" msgpack:"min_leaf_size"`
	Seed        int64 `json:"seed" msgpack:"seed"`
}

// smallDatasetRows is the training-size boundary between the regularized
// and the high-capacity configuration.
const smallDatasetRows = 1000

// HyperparamsForSize returns the size-tiered configuration.
func HyperparamsForSize(trainRows int) Hyperparams {
	if trainRows < smallDatasetRows {
		return Hyperparams{NumTrees: 50, MaxDepth: 5, MinLeafSize: 10, Seed: 42}
	}
	return Hyperparams{NumTrees: 100, MaxDepth: 0, MinLeafSize: 2, Seed: 42}
}

// Node is one decision-tree node in flattened form. Leaves have Feature -1
// and carry the class-1 fraction of their training samples.
type Node struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int32   `msgpack:"l"`
	Right     int32   `msgpack:"r"`
	Prob      float64 `msgpack:"p"`
}

// Tree is a single CART tree stored as a node array rooted at index 0.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// Forest is a bagged ensemble of CART trees with sqrt-feature subsampling.
// Training is deterministic for a fixed seed.
type Forest struct {
	Trees       []Tree `msgpack:"trees"`
	NumFeatures int    `msgpack:"num_features"`
}

// TrainForest fits a forest on a row-major matrix and binary labels.
func TrainForest(x [][]float64, y []int, hp Hyperparams) *Forest {
	if len(x) == 0 || len(x) != len(y) {
		return nil
	}
	numFeatures := len(x[0])

	f := &Forest{
		Trees:       make([]Tree, hp.NumTrees),
		NumFeatures: numFeatures,
	}

	mtry := int(math.Sqrt(float64(numFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	for t := 0; t < hp.NumTrees; t++ {
		// Per-tree RNG keyed off the base seed keeps bootstrap and split
		// sampling reproducible regardless of training order.
		rng := rand.New(rand.NewSource(hp.Seed + int64(t)))

		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.Intn(len(x))
		}

		b := &treeBuilder{
			x:       x,
			y:       y,
			hp:      hp,
			mtry:    mtry,
			rng:     rng,
			numFeat: numFeatures,
		}
		b.build(sample, 0)
		f.Trees[t] = Tree{Nodes: b.nodes}
	}

	return f
}

// PredictProb returns P(class=1) for one feature vector: the mean of the
// leaf class fractions across trees.
func (f *Forest) PredictProb(x []float64) float64 {
	if f == nil || len(f.Trees) == 0 {
		return 0.5
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

func (t *Tree) predict(x []float64) float64 {
	idx := int32(0)
	for {
		n := t.Nodes[idx]
		if n.Feature < 0 {
			return n.Prob
		}
		v := 0.0
		if n.Feature < len(x) {
			v = x[n.Feature]
		}
		if v <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

type treeBuilder struct {
	x       [][]float64
	y       []int
	hp      Hyperparams
	mtry    int
	rng     *rand.Rand
	numFeat int
	nodes   []Node
}

// build grows the subtree for the given sample indices and returns its
// node index.
func (b *treeBuilder) build(sample []int, depth int) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Feature: -1})

	ones := 0
	for _, i := range sample {
		ones += b.y[i]
	}
	prob := float64(ones) / float64(len(sample))

	if ones == 0 || ones == len(sample) ||
		len(sample) < 2*b.hp.MinLeafSize ||
		(b.hp.MaxDepth > 0 && depth >= b.hp.MaxDepth) {
		b.nodes[idx].Prob = prob
		return idx
	}

	feature, threshold, ok := b.bestSplit(sample)
	if !ok {
		b.nodes[idx].Prob = prob
		return idx
	}

	var left, right []int
	for _, i := range sample {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.hp.MinLeafSize || len(right) < b.hp.MinLeafSize {
		b.nodes[idx].Prob = prob
		return idx
	}

	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = b.build(left, depth+1)
	b.nodes[idx].Right = b.build(right, depth+1)
	return idx
}

// bestSplit scans a random mtry-sized feature subset for the gini-optimal
// threshold over the node's samples.
func (b *treeBuilder) bestSplit(sample []int) (int, float64, bool) {
	candidates := b.rng.Perm(b.numFeat)[:b.mtry]
	sort.Ints(candidates)

	bestGini := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	total := len(sample)
	totalOnes := 0
	for _, i := range sample {
		totalOnes += b.y[i]
	}

	order := make([]int, total)
	for _, feat := range candidates {
		copy(order, sample)
		sort.SliceStable(order, func(a, c int) bool {
			return b.x[order[a]][feat] < b.x[order[c]][feat]
		})

		leftOnes := 0
		for pos := 0; pos < total-1; pos++ {
			leftOnes += b.y[order[pos]]

			cur, next := b.x[order[pos]][feat], b.x[order[pos+1]][feat]
			if cur == next {
				continue
			}

			nL := pos + 1
			nR := total - nL
			if nL < b.hp.MinLeafSize || nR < b.hp.MinLeafSize {
				continue
			}

			g := weightedGini(nL, leftOnes, nR, totalOnes-leftOnes)
			if g < bestGini {
				bestGini = g
				bestFeature = feat
				bestThreshold = (cur + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func weightedGini(nL, onesL, nR, onesR int) float64 {
	total := float64(nL + nR)
	return float64(nL)/total*gini(nL, onesL) + float64(nR)/total*gini(nR, onesR)
}

func gini(n, ones int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(ones) / float64(n)
	return 2 * p * (1 - p)
}
