package dto

// HealthInfo is returned by GET /health.
type HealthInfo struct {
	Status      string `json:"status"`
	Backend     string `json:"backend"`
	Classes     int    `json:"classes"`
	Workers     int    `json:"workers"`
	WorkersBusy int    `json:"workers_busy"`

	// Liczniki od startu procesu
	InferencesStarted  int64 `json:"inferences_started"`
	InferencesFinished int64 `json:"inferences_finished"`
}

// LabelsInfo is returned by GET /labels.
type LabelsInfo struct {
	Labels []string `json:"labels"`
}
