package models

import "time"

// JobStatus определяет статус задания импорта
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusParsing  JobStatus = "parsing"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// IsTerminal сообщает, достигло ли задание конечного состояния.
// Из конечного состояния задание не возвращается.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// ImportJob представляет одно асинхронное выполнение импорта CSV.
// Запись принадлежит единственной горутине импорта: только она пишет,
// читатели получают целостные снимки через реестр заданий.
type ImportJob struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	TotalRows     int       `json:"total_rows"`
	ProcessedRows int       `json:"processed_rows"`
	SkippedRows   int       `json:"skipped_rows"`
	Progress      int       `json:"progress"` // 0-100, floor(processed/total*100)
	Message       string    `json:"message"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
