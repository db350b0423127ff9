package models

import "time"

// ReviewDecision - запись журнала модерации после подтверждённой смены статуса.
type ReviewDecision struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
}

// ReviewEvent публикуется в очередь после смены статуса.
type ReviewEvent struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
}

// RunEvent приходит от внешнего конвейера по завершении запуска.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
}
