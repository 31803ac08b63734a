package sqlite

import (
	"fmt"
	"time"

	"postureserver/internal/model"
	"postureserver/internal/service/summary"
)

// DefaultRecentLimit bounds GetRecent when the caller passes no limit.
const DefaultRecentLimit = 50

// AnalysisRepository implements repository.AnalysisRepository for SQLite.
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new SQLite analysis repository.
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Insert adds a new analysis record. A zero CreatedAt is set to now.
func (r *AnalysisRepository) Insert(rec *model.AnalysisRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO analyses (source, reference, posture_type, total_frames, bad_frames,
			skipped_frames, good_percentage, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Source, rec.Reference, rec.PostureType, rec.TotalFrames, rec.BadFrames,
		rec.SkippedFrames, rec.GoodPercentage, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read analysis id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// GetRecent returns the newest records first.
func (r *AnalysisRepository) GetRecent(limit int) ([]model.AnalysisRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, source, reference, posture_type, total_frames, bad_frames,
			skipped_frames, good_percentage, duration_ms, created_at
		FROM analyses ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	records := make([]model.AnalysisRecord, 0)
	for rows.Next() {
		var rec model.AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Reference, &rec.PostureType, &rec.TotalFrames,
			&rec.BadFrames, &rec.SkippedFrames, &rec.GoodPercentage, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetStats aggregates every stored record.
func (r *AnalysisRepository) GetStats() (*model.AnalysisStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.AnalysisStats{PerSource: make(map[string]int)}

	rows, err := r.db.Conn().Query(`
		SELECT source, COUNT(*), COALESCE(SUM(total_frames), 0), COALESCE(SUM(bad_frames), 0)
		FROM analyses GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count, frames, bad int
		if err := rows.Scan(&source, &count, &frames, &bad); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.PerSource[source] = count
		stats.TotalAnalyses += count
		stats.TotalFrames += frames
		stats.BadFrames += bad
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.GoodPercentage = summary.GoodPercentage(stats.TotalFrames, stats.BadFrames)
	return stats, nil
}
