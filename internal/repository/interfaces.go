package repository

import (
	"postureserver/internal/model"
)

// AnalysisRepository stores summaries of finished analyses.
type AnalysisRepository interface {
	// Create operations
	Insert(rec *model.AnalysisRecord) (int64, error)

	// Read operations
	GetRecent(limit int) ([]model.AnalysisRecord, error)
	GetStats() (*model.AnalysisStats, error)
}
