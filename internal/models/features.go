package models

// FeatureColumns is the fixed column order of every feature matrix.
var FeatureColumns = []Signal{SignalCPU, SignalMemory, SignalRestarts}

// NumFeatures is the width of a feature vector.
const NumFeatures = 3

// FeatureVector carries one pod's features at a single evaluation point.
// All three columns are always present; a missing raw signal is substituted
// with zero so the matrix stays rectangular.
type FeatureVector struct {
	Pod      string
	CPU      float64
	Memory   float64
	Restarts float64
}

// Row returns the vector in FeatureColumns order.
func (v FeatureVector) Row() []float64 {
	return []float64{v.CPU, v.Memory, v.Restarts}
}

// FeatureMatrix is an ordered set of feature vectors sharing the fixed
// column order. Training matrices hold many rows per pod (one per sampled
// step); instant matrices hold exactly one row per observed pod.
type FeatureMatrix []FeatureVector

// Rows flattens the matrix into raw float rows.
func (m FeatureMatrix) Rows() [][]float64 {
	rows := make([][]float64, len(m))
	for i, v := range m {
		rows[i] = v.Row()
	}
	return rows
}
