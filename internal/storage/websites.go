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

const websiteColumns = `
	id,
	user_id,
	name,
	url,
	monitor_type,
	check_interval_minutes,
	is_active,
	notification_preference,
	webhook_url,
	deep_analysis_enabled,
	scrape_headers,
	last_checked,
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebsite(row rowScanner) (*domain.Website, error) {
	var (
		id          pgtype.UUID
		userID      pgtype.UUID
		name        string
		url         string
		monitorType string
		interval    pgtype.Int4
		isActive    bool
		preference  string
		webhookURL  pgtype.Text
		deep        bool
		headers     pgtype.Text
		lastChecked pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
	)

	if err := row.Scan(&id, &userID, &name, &url, &monitorType, &interval, &isActive,
		&preference, &webhookURL, &deep, &headers, &lastChecked, &createdAt); err != nil {
		return nil, err
	}

	return &domain.Website{
		ID:                     fromUUID(id),
		UserID:                 fromUUID(userID),
		Name:                   name,
		URL:                    url,
		MonitorType:            domain.MonitorType(monitorType),
		CheckInterval:          fromMinutes(interval),
		IsActive:               isActive,
		NotificationPreference: domain.NotificationPreference(preference),
		WebhookURL:             fromText(webhookURL),
		DeepAnalysisEnabled:    deep,
		Headers:                fromText(headers),
		LastChecked:            fromTimestamptz(lastChecked),
		CreatedAt:              fromTimestamptz(createdAt),
	}, nil
}

// GetWebsite loads one website by id.
func (db *DB) GetWebsite(ctx context.Context, id string) (*domain.Website, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, toUUID(id))

	site, err := scanWebsite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrWebsiteNotFound
		}

		return nil, fmt.Errorf("get website: %w", err)
	}

	return site, nil
}

// ListDueWebsites returns active websites whose check interval elapsed at now,
// never-checked websites first.
func (db *DB) ListDueWebsites(ctx context.Context, now time.Time, limit int) ([]domain.Website, error) {
	if limit <= 0 {
		limit = defaultDueBatchSize
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+websiteColumns+`
		FROM websites
		WHERE is_active
		  AND (last_checked IS NULL
		       OR last_checked + make_interval(mins => check_interval_minutes) <= $1)
		ORDER BY last_checked NULLS FIRST
		LIMIT $2
	`, toTimestamptz(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due websites: %w", err)
	}

	return collectWebsites(rows)
}

// ListWebsitesByUser returns every website owned by the user.
func (db *DB) ListWebsitesByUser(ctx context.Context, userID string) ([]domain.Website, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+websiteColumns+`
		FROM websites
		WHERE user_id = $1
		ORDER BY created_at
	`, toUUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list user websites: %w", err)
	}

	return collectWebsites(rows)
}

func collectWebsites(rows pgx.Rows) ([]domain.Website, error) {
	defer rows.Close()

	var sites []domain.Website

	for rows.Next() {
		site, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan website: %w", err)
		}

		sites = append(sites, *site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate websites: %w", err)
	}

	return sites, nil
}

// MarkWebsiteChecked records the time of the latest check.
func (db *DB) MarkWebsiteChecked(ctx context.Context, id string, at time.Time) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE websites SET last_checked = $2 WHERE id = $1`, toUUID(id), toTimestamptz(at))
	if err != nil {
		return fmt.Errorf("mark website checked: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return coreerrors.ErrWebsiteNotFound
	}

	return nil
}
