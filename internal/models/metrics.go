package models

// RunMetrics - метрики последнего запуска конвейера сбора статей.
type RunMetrics struct {
	TotalFetched   int     `json:"total_fetched"`
	Analyzed       int     `json:"analyzed"`
	Approved       int     `json:"approved"`
	AverageScore   float64 `json:"average_score"`
	TopIndustry    string  `json:"top_industry"`
	LastRunAt      string  `json:"last_run_at,omitempty"`
	LastRunSeconds float64 `json:"last_run_seconds"`
}
