package detect

import (
	"math"
	"math/rand"
)

// point is a sample in the (bytes_sent, failed_logins) feature space.
type point [2]float64

// treeNode is a node in a single isolation tree. Leaves keep the size of the
// partition that reached them so path lengths can be extrapolated.
type treeNode struct {
	splitFeature int
	splitValue   float64
	left         *treeNode
	right        *treeNode
	size         int
}

func (n *treeNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// isolationForest holds an ensemble of randomly built partition trees. Points
// that isolate in few splits are anomalous relative to the batch.
type isolationForest struct {
	trees      []*treeNode
	sampleSize int
}

// fitForest builds numTrees isolation trees over random subsamples of data.
// All randomness flows through rng, so a fixed seed reproduces the forest.
func fitForest(rng *rand.Rand, data []point, numTrees, sampleSize int) *isolationForest {
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1

	forest := &isolationForest{
		trees:      make([]*treeNode, 0, numTrees),
		sampleSize: sampleSize,
	}
	for i := 0; i < numTrees; i++ {
		sample := make([]point, 0, sampleSize)
		for _, idx := range rng.Perm(len(data))[:sampleSize] {
			sample = append(sample, data[idx])
		}
		forest.trees = append(forest.trees, buildTree(rng, sample, 0, maxDepth))
	}
	return forest
}

func buildTree(rng *rand.Rand, sample []point, depth, maxDepth int) *treeNode {
	if len(sample) <= 1 || depth >= maxDepth {
		return &treeNode{size: len(sample)}
	}

	feature := rng.Intn(2)
	lo, hi := featureRange(sample, feature)
	if lo == hi {
		// Try the other feature before giving up on the partition.
		feature = 1 - feature
		lo, hi = featureRange(sample, feature)
		if lo == hi {
			return &treeNode{size: len(sample)}
		}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []point
	for _, p := range sample {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(sample)}
	}

	return &treeNode{
		splitFeature: feature,
		splitValue:   split,
		left:         buildTree(rng, left, depth+1, maxDepth),
		right:        buildTree(rng, right, depth+1, maxDepth),
	}
}

func featureRange(sample []point, feature int) (float64, float64) {
	lo, hi := sample[0][feature], sample[0][feature]
	for _, p := range sample[1:] {
		if p[feature] < lo {
			lo = p[feature]
		}
		if p[feature] > hi {
			hi = p[feature]
		}
	}
	return lo, hi
}

// score returns the anomaly score of p in [0,1]; values near 1 isolate fast.
func (f *isolationForest) score(p point) float64 {
	if len(f.trees) == 0 || f.sampleSize == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, p, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/avgPathLength(f.sampleSize))
}

func pathLength(n *treeNode, p point, depth float64) float64 {
	if n.isLeaf() {
		return depth + avgPathLength(n.size)
	}
	if p[n.splitFeature] < n.splitValue {
		return pathLength(n.left, p, depth+1)
	}
	return pathLength(n.right, p, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points. Standard normalisation term for isolation forests.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
