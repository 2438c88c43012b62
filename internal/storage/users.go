package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// GetUser loads a user by id.
func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		uid       pgtype.UUID
		email     string
		name      pgtype.Text
		createdAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, created_at FROM users WHERE id = $1
	`, toUUID(id)).Scan(&uid, &email, &name, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrNotFound
		}

		return nil, fmt.Errorf("get user: %w", err)
	}

	return &domain.User{
		ID:        fromUUID(uid),
		Email:     email,
		Name:      fromText(name),
		CreatedAt: fromTimestamptz(createdAt),
	}, nil
}

// ListUserStats returns every user with total and active website counts.
func (db *DB) ListUserStats(ctx context.Context) ([]domain.UserStats, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT u.id,
		       u.email,
		       u.name,
		       u.created_at,
		       COUNT(w.id) AS website_count,
		       COUNT(w.id) FILTER (WHERE w.is_active) AS active_count
		FROM users u
		LEFT JOIN websites w ON w.user_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list user stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.UserStats

	for rows.Next() {
		var (
			uid       pgtype.UUID
			email     string
			name      pgtype.Text
			createdAt pgtype.Timestamptz
			total     int64
			active    int64
		)

		if err := rows.Scan(&uid, &email, &name, &createdAt, &total, &active); err != nil {
			return nil, fmt.Errorf("scan user stats: %w", err)
		}

		stats = append(stats, domain.UserStats{
			User: domain.User{
				ID:        fromUUID(uid),
				Email:     email,
				Name:      fromText(name),
				CreatedAt: fromTimestamptz(createdAt),
			},
			WebsiteCount:       int(total),
			ActiveWebsiteCount: int(active),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user stats: %w", err)
	}

	return stats, nil
}
