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

// GetUserSettings loads the user's AI and notification settings. A user without
// a settings row gets the defaults: AI off, default threshold, no filters.
func (db *DB) GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT ai_analysis_enabled,
		       ai_api_key,
		       ai_base_url,
		       ai_model,
		       ai_system_prompt,
		       ai_threshold,
		       go_no_go_rules,
		       email_only_if_meaningful,
		       webhook_only_if_meaningful,
		       email_template,
		       default_webhook_url
		FROM user_settings
		WHERE user_id = $1
	`, toUUID(userID))

	var (
		enabled     bool
		apiKey      pgtype.Text
		baseURL     pgtype.Text
		model       pgtype.Text
		prompt      pgtype.Text
		threshold   pgtype.Int4
		rules       pgtype.Text
		emailOnly   bool
		webhookOnly bool
		template    pgtype.Text
		defaultHook pgtype.Text
	)

	if err := row.Scan(&enabled, &apiKey, &baseURL, &model, &prompt, &threshold, &rules,
		&emailOnly, &webhookOnly, &template, &defaultHook); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.UserSettings{UserID: userID, AIThreshold: domain.DefaultMeaningfulThreshold}, nil
		}

		return nil, fmt.Errorf("get user settings: %w", err)
	}

	return &domain.UserSettings{
		UserID:                  userID,
		AIAnalysisEnabled:       enabled,
		AIAPIKey:                fromText(apiKey),
		AIBaseURL:               fromText(baseURL),
		AIModel:                 fromText(model),
		AISystemPrompt:          fromText(prompt),
		AIThreshold:             fromInt4(threshold),
		GoNoGoRules:             fromText(rules),
		EmailOnlyIfMeaningful:   emailOnly,
		WebhookOnlyIfMeaningful: webhookOnly,
		EmailTemplate:           fromText(template),
		DefaultWebhookURL:       fromText(defaultHook),
	}, nil
}

// GetEmailConfig loads the user's notification address.
func (db *DB) GetEmailConfig(ctx context.Context, userID string) (*domain.EmailConfig, error) {
	var (
		email    string
		verified bool
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT email, is_verified FROM email_configs WHERE user_id = $1
	`, toUUID(userID)).Scan(&email, &verified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrNotFound
		}

		return nil, fmt.Errorf("get email config: %w", err)
	}

	return &domain.EmailConfig{UserID: userID, Email: email, IsVerified: verified}, nil
}
