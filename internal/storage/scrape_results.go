package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// ErrAnalysisAlreadyRecorded is returned when a scrape result already carries an AI analysis.
var ErrAnalysisAlreadyRecorded = errors.New("ai analysis already recorded")

// InsertScrapeResult stores a scrape and returns its id.
func (db *DB) InsertScrapeResult(ctx context.Context, r *domain.ScrapeResult) (string, error) {
	if r == nil {
		return "", coreerrors.ErrInvalidInput
	}

	var diff []byte

	if r.Diff != nil {
		var err error

		if diff, err = toJSONB(r.Diff); err != nil {
			return "", err
		}
	}

	var metadata []byte
	if len(r.Metadata) > 0 && json.Valid(r.Metadata) {
		metadata = r.Metadata
	}

	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO scrape_results (
			website_id,
			user_id,
			url,
			markdown,
			change_status,
			visibility,
			previous_scrape_at,
			scraped_at,
			title,
			description,
			og_image,
			metadata,
			diff
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`,
		toUUID(r.WebsiteID),
		toUUID(r.UserID),
		r.URL,
		toText(r.Markdown),
		r.ChangeStatus,
		r.Visibility,
		toTimestamptz(r.PreviousScrapeAt),
		toTimestamptz(r.ScrapedAt),
		toText(r.Title),
		toText(r.Description),
		toText(r.OGImage),
		metadata,
		diff,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert scrape result: %w", err)
	}

	return fromUUID(id), nil
}

// RecordAIAnalysis attaches the final AI analysis to a scrape result. The
// analysis is written once; a second write returns ErrAnalysisAlreadyRecorded.
func (db *DB) RecordAIAnalysis(ctx context.Context, scrapeResultID string, analysis domain.FinalAnalysis) error {
	payload, err := toJSONB(analysis)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE scrape_results
		SET ai_analysis = $2
		WHERE id = $1 AND ai_analysis IS NULL
	`, toUUID(scrapeResultID), payload)
	if err != nil {
		return fmt.Errorf("record ai analysis: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scrape_results WHERE id = $1)`,
		toUUID(scrapeResultID)).Scan(&exists); err != nil {
		return fmt.Errorf("check scrape result: %w", err)
	}

	if !exists {
		return coreerrors.ErrScrapeResultNotFound
	}

	return ErrAnalysisAlreadyRecorded
}
