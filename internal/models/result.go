package models

// DetectionResult is one pod's scored observation. Derived per request,
// never persisted.
type DetectionResult struct {
	Pod          string  `json:"pod"`
	CPU          float64 `json:"cpu"`
	Memory       float64 `json:"memory"`
	Restarts     float64 `json:"restarts"`
	AnomalyFlag  bool    `json:"anomalyFlag"`
	AnomalyScore float64 `json:"anomalyScore"`
}
