package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// InsertCrawlSession records a started crawl job and returns the session id.
func (db *DB) InsertCrawlSession(ctx context.Context, s *domain.CrawlSession) (string, error) {
	if s == nil || s.JobID == "" {
		return "", coreerrors.ErrInvalidInput
	}

	status := s.Status
	if status == "" {
		status = domain.CrawlStatusPending
	}

	startedAt := s.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO crawl_sessions (website_id, user_id, job_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, toUUID(s.WebsiteID), toUUID(s.UserID), s.JobID, status, toTimestamptz(startedAt)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert crawl session: %w", err)
	}

	return fromUUID(id), nil
}

// ListPendingCrawlSessions returns crawl sessions that have not finished, oldest first.
func (db *DB) ListPendingCrawlSessions(ctx context.Context, limit int) ([]domain.CrawlSession, error) {
	if limit <= 0 {
		limit = defaultDueBatchSize
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, website_id, user_id, job_id, status, started_at, completed_at, pages_found
		FROM crawl_sessions
		WHERE status = $1
		ORDER BY started_at
		LIMIT $2
	`, domain.CrawlStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending crawl sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.CrawlSession

	for rows.Next() {
		var (
			id          pgtype.UUID
			websiteID   pgtype.UUID
			userID      pgtype.UUID
			jobID       string
			status      string
			startedAt   pgtype.Timestamptz
			completedAt pgtype.Timestamptz
			pages       pgtype.Int4
		)

		if err := rows.Scan(&id, &websiteID, &userID, &jobID, &status, &startedAt, &completedAt, &pages); err != nil {
			return nil, fmt.Errorf("scan crawl session: %w", err)
		}

		sessions = append(sessions, domain.CrawlSession{
			ID:          fromUUID(id),
			WebsiteID:   fromUUID(websiteID),
			UserID:      fromUUID(userID),
			JobID:       jobID,
			Status:      status,
			StartedAt:   fromTimestamptz(startedAt),
			CompletedAt: fromTimestamptz(completedAt),
			PagesFound:  fromInt4(pages),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl sessions: %w", err)
	}

	return sessions, nil
}

// FinishCrawlSession stores the terminal status of a crawl.
func (db *DB) FinishCrawlSession(ctx context.Context, id, status string, pagesFound int, completedAt time.Time) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE crawl_sessions
		SET status = $2, pages_found = $3, completed_at = $4
		WHERE id = $1
	`, toUUID(id), status, toInt4(pagesFound), toTimestamptz(completedAt))
	if err != nil {
		return fmt.Errorf("finish crawl session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return coreerrors.ErrNotFound
	}

	return nil
}
