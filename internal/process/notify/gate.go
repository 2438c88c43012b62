// Package notify decides which notification channels fire for an event and
// dispatches them.
package notify

import "github.com/lueurxax/change-observer/internal/core/domain"

// GateInput is everything the notification decision depends on.
type GateInput struct {
	Preference              domain.NotificationPreference
	WebhookURL              string
	EmailOnlyIfMeaningful   bool
	WebhookOnlyIfMeaningful bool
	IsMeaningful            bool
	ForceSuppress           bool
	HasVerifiedEmail        bool
	// AIAnalysisRan is false on the immediate path, where the only-if-meaningful
	// filters do not apply.
	AIAnalysisRan bool
}

// Decision says which channels to use.
type Decision struct {
	SendWebhook bool
	SendEmail   bool
}

// None reports whether no channel fires.
func (d Decision) None() bool {
	return !d.SendWebhook && !d.SendEmail
}

// Decide applies the site preference and user filters.
func Decide(in GateInput) Decision {
	if in.ForceSuppress {
		return Decision{}
	}

	webhookFilter := in.AIAnalysisRan && in.WebhookOnlyIfMeaningful
	emailFilter := in.AIAnalysisRan && in.EmailOnlyIfMeaningful

	return Decision{
		SendWebhook: in.Preference.IncludesWebhook() && in.WebhookURL != "" && (!webhookFilter || in.IsMeaningful),
		SendEmail:   in.Preference.IncludesEmail() && (!emailFilter || in.IsMeaningful) && in.HasVerifiedEmail,
	}
}

// ResolveWebhookURL prefers the site webhook and falls back to the user default.
func ResolveWebhookURL(site domain.Website, settings *domain.UserSettings) string {
	if site.WebhookURL != "" {
		return site.WebhookURL
	}

	if settings != nil {
		return settings.DefaultWebhookURL
	}

	return ""
}
