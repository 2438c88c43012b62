package admin

import (
	"context"
	"fmt"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

// Store is the record store as seen by the admin views.
type Store interface {
	ListUserStats(ctx context.Context) ([]domain.UserStats, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListWebsitesByUser(ctx context.Context, userID string) ([]domain.Website, error)
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
}

// UserDetails is one user with their websites and settings. The AI key is masked.
type UserDetails struct {
	User     domain.User          `json:"user"`
	Websites []WebsiteView        `json:"websites"`
	Settings *domain.UserSettings `json:"settings,omitempty"`
}

// WebsiteView is the admin listing shape of a website.
type WebsiteView struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	URL                    string `json:"url"`
	MonitorType            string `json:"monitorType"`
	CheckIntervalMinutes   int    `json:"checkInterval"`
	IsActive               bool   `json:"isActive"`
	NotificationPreference string `json:"notificationPreference"`
	DeepAnalysisEnabled    bool   `json:"deepAnalysisEnabled"`
	LastChecked            string `json:"lastChecked,omitempty"`
}

// Service answers admin queries.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListUsers returns every user with website counters.
func (s *Service) ListUsers(ctx context.Context) ([]domain.UserStats, error) {
	users, err := s.store.ListUserStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}

// UserDetails returns one user with their websites and settings.
func (s *Service) UserDetails(ctx context.Context, userID string) (*UserDetails, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	sites, err := s.store.ListWebsitesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}

	settings, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	details := &UserDetails{
		User:     *user,
		Websites: make([]WebsiteView, 0, len(sites)),
	}

	if settings != nil {
		masked := *settings
		masked.AIAPIKey = maskKey(masked.AIAPIKey)
		details.Settings = &masked
	}

	for _, site := range sites {
		view := WebsiteView{
			ID:                     site.ID,
			Name:                   site.Name,
			URL:                    site.URL,
			MonitorType:            string(site.MonitorType),
			CheckIntervalMinutes:   int(site.CheckInterval.Minutes()),
			IsActive:               site.IsActive,
			NotificationPreference: string(site.NotificationPreference),
			DeepAnalysisEnabled:    site.DeepAnalysisEnabled,
		}

		if !site.LastChecked.IsZero() {
			view.LastChecked = site.LastChecked.UTC().Format("2006-01-02T15:04:05Z07:00")
		}

		details.Websites = append(details.Websites, view)
	}

	return details, nil
}

const maskVisible = 4

func maskKey(key string) string {
	if key == "" {
		return ""
	}

	if len(key) <= maskVisible {
		return "****"
	}

	return "****" + key[len(key)-maskVisible:]
}
