package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// GetAnalyzedOpportunity returns the ledger entry for a url and user.
func (db *DB) GetAnalyzedOpportunity(ctx context.Context, url, userID string) (*domain.AnalyzedOpportunity, error) {
	var (
		websiteID  pgtype.UUID
		status     string
		score      float64
		analyzedAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT website_id, status, score, analyzed_at
		FROM analyzed_opportunities
		WHERE url = $1 AND user_id = $2
	`, url, toUUID(userID)).Scan(&websiteID, &status, &score, &analyzedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrNotFound
		}

		return nil, fmt.Errorf("get analyzed opportunity: %w", err)
	}

	return &domain.AnalyzedOpportunity{
		URL:        url,
		UserID:     userID,
		WebsiteID:  fromUUID(websiteID),
		Status:     domain.OpportunityStatus(status),
		Score:      score,
		AnalyzedAt: fromTimestamptz(analyzedAt),
	}, nil
}

// UpsertAnalyzedOpportunity records or refreshes a ledger entry. The latest
// analysis replaces any earlier one for the same url and user.
func (db *DB) UpsertAnalyzedOpportunity(ctx context.Context, op *domain.AnalyzedOpportunity) error {
	if op == nil || op.URL == "" {
		return coreerrors.ErrInvalidInput
	}

	analyzedAt := op.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO analyzed_opportunities (url, user_id, website_id, status, score, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url, user_id) DO UPDATE SET
			website_id = EXCLUDED.website_id,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			analyzed_at = EXCLUDED.analyzed_at
	`, op.URL, toUUID(op.UserID), toUUID(op.WebsiteID), string(op.Status), op.Score, toTimestamptz(analyzedAt))
	if err != nil {
		return fmt.Errorf("upsert analyzed opportunity: %w", err)
	}

	return nil
}

// DeleteAnalyzedOpportunitiesBefore removes ledger entries analyzed before cutoff.
func (db *DB) DeleteAnalyzedOpportunitiesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM analyzed_opportunities WHERE analyzed_at < $1`, toTimestamptz(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete analyzed opportunities: %w", err)
	}

	return tag.RowsAffected(), nil
}
