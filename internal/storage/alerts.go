package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// InsertChangeAlert records a detected change and returns the alert id.
func (db *DB) InsertChangeAlert(ctx context.Context, alert *domain.ChangeAlert) (string, error) {
	if alert == nil {
		return "", coreerrors.ErrInvalidInput
	}

	summary := []rune(SanitizeUTF8(alert.Summary))
	if len(summary) > defaultAlertSummaryLen {
		summary = summary[:defaultAlertSummaryLen]
	}

	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO change_alerts (website_id, user_id, scrape_result_id, change_type, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		toUUID(alert.WebsiteID),
		toUUID(alert.UserID),
		toUUID(alert.ScrapeResultID),
		alert.ChangeType,
		toText(string(summary)),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert change alert: %w", err)
	}

	return fromUUID(id), nil
}
