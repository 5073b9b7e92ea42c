package forest

import "math/rand"

// node is one partition in an isolation tree. Leaves keep their point count
// for the c(n) size correction.
type node struct {
	splitFeature int
	splitValue   float64
	left         *node
	right        *node
	size         int
	leaf         bool
}

// grow recursively partitions data by a uniformly random feature and a
// uniformly random split value within the node's observed range, halting at
// the depth cap or when a node holds at most one point.
func grow(data [][]float64, depth, maxDepth int, rng *rand.Rand) *node {
	n := &node{size: len(data)}

	if len(data) <= 1 || depth >= maxDepth {
		n.leaf = true
		return n
	}
	numFeatures := len(data[0])
	if numFeatures == 0 {
		n.leaf = true
		return n
	}

	n.splitFeature = rng.Intn(numFeatures)

	minVal, maxVal := data[0][n.splitFeature], data[0][n.splitFeature]
	for _, row := range data[1:] {
		v := row[n.splitFeature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if minVal == maxVal {
		n.leaf = true
		return n
	}

	n.splitValue = minVal + rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[n.splitFeature] < n.splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}
	if len(leftData) == 0 || len(rightData) == 0 {
		n.leaf = true
		return n
	}

	n.left = grow(leftData, depth+1, maxDepth, rng)
	n.right = grow(rightData, depth+1, maxDepth, rng)
	return n
}

// pathLength walks the tree for one row, adding the c(size) correction at
// leaves that stopped before full isolation.
func (n *node) pathLength(row []float64, depth int) float64 {
	if n == nil {
		return float64(depth)
	}
	if n.leaf {
		return float64(depth) + avgPathLength(n.size)
	}
	if n.splitFeature >= len(row) {
		return float64(depth)
	}
	if row[n.splitFeature] < n.splitValue {
		return n.left.pathLength(row, depth+1)
	}
	return n.right.pathLength(row, depth+1)
}
