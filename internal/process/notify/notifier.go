package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/output/email"
	"github.com/lueurxax/change-observer/internal/output/webhook"
	"github.com/lueurxax/change-observer/internal/platform/observability"
)

// Log keys.
const (
	logKeyWebsiteID = "website_id"
	logKeyUserID    = "user_id"
	logKeyChannel   = "channel"
)

// WebhookSender delivers webhook payloads.
type WebhookSender interface {
	SendChange(ctx context.Context, webhookURL string, n domain.ChangeNotification) (webhook.Result, error)
	SendCrawl(ctx context.Context, webhookURL string, n domain.CrawlNotification) (webhook.Result, error)
}

// EmailConfigStore looks up the user's notification address.
type EmailConfigStore interface {
	GetEmailConfig(ctx context.Context, userID string) (*domain.EmailConfig, error)
}

// Report is the outcome of one dispatch.
type Report struct {
	Decision   Decision
	WebhookErr error
	EmailErr   error
}

// Err joins the channel errors.
func (r Report) Err() error {
	return errors.Join(r.WebhookErr, r.EmailErr)
}

// Notifier applies the gate and sends through every selected channel.
// Channels are independent: one failing does not stop the other.
type Notifier struct {
	webhooks WebhookSender
	mailer   email.Sender
	renderer *email.Renderer
	emails   EmailConfigStore
	from     string
	logger   *zerolog.Logger
}

func NewNotifier(webhooks WebhookSender, mailer email.Sender, renderer *email.Renderer, emails EmailConfigStore, from string, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		mailer:   mailer,
		renderer: renderer,
		emails:   emails,
		from:     from,
		logger:   logger,
	}
}

// NotifyChange dispatches a change notification. A nil directive means AI
// analysis did not run for the event.
func (n *Notifier) NotifyChange(ctx context.Context, site domain.Website, settings *domain.UserSettings, change domain.ChangeNotification, directive *domain.NotificationDirective) Report {
	in := GateInput{
		Preference: site.NotificationPreference,
		WebhookURL: ResolveWebhookURL(site, settings),
	}

	if settings != nil {
		in.EmailOnlyIfMeaningful = settings.EmailOnlyIfMeaningful
		in.WebhookOnlyIfMeaningful = settings.WebhookOnlyIfMeaningful
	}

	if directive != nil {
		in.AIAnalysisRan = true
		in.IsMeaningful = directive.IsMeaningful
		in.ForceSuppress = directive.Suppress
	}

	if in.ForceSuppress {
		n.logger.Info().Str(logKeyWebsiteID, site.ID).Msg("notifications suppressed, links analyzed recently")
		observability.NotificationsSent.WithLabelValues(observability.ChannelWebhook, observability.StatusFiltered).Inc()

		return Report{}
	}

	var recipient *domain.EmailConfig

	if in.Preference.IncludesEmail() {
		recipient = n.verifiedRecipient(ctx, site.UserID)
		in.HasVerifiedEmail = recipient != nil
	}

	report := Report{Decision: Decide(in)}

	n.logger.Info().
		Str(logKeyWebsiteID, site.ID).
		Bool("webhook", report.Decision.SendWebhook).
		Bool("email", report.Decision.SendEmail).
		Bool("meaningful", in.IsMeaningful).
		Msg("notification decision")

	var wg sync.WaitGroup

	if report.Decision.SendWebhook {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := n.webhooks.SendChange(ctx, in.WebhookURL, change)
			report.WebhookErr = n.record(observability.ChannelWebhook, site, err)
		}()
	}

	if report.Decision.SendEmail {
		wg.Add(1)

		go func() {
			defer wg.Done()

			report.EmailErr = n.record(observability.ChannelEmail, site, n.sendEmail(ctx, recipient.Email, settings, change))
		}()
	}

	wg.Wait()

	return report
}

// NotifyCrawl sends the crawl completion webhook when the site uses webhooks.
func (n *Notifier) NotifyCrawl(ctx context.Context, site domain.Website, settings *domain.UserSettings, crawl domain.CrawlNotification) error {
	url := ResolveWebhookURL(site, settings)
	if !site.NotificationPreference.IncludesWebhook() || url == "" {
		return nil
	}

	_, err := n.webhooks.SendCrawl(ctx, url, crawl)

	return n.record(observability.ChannelWebhook, site, err)
}

func (n *Notifier) verifiedRecipient(ctx context.Context, userID string) *domain.EmailConfig {
	cfg, err := n.emails.GetEmailConfig(ctx, userID)
	if err != nil {
		if !errors.Is(err, coreerrors.ErrNotFound) {
			n.logger.Warn().Err(err).Str(logKeyUserID, userID).Msg("failed to load email config")
		}

		return nil
	}

	if cfg == nil || !cfg.IsVerified || cfg.Email == "" {
		n.logger.Info().Str(logKeyUserID, userID).Msg("email skipped, no verified email config")
		return nil
	}

	return cfg
}

func (n *Notifier) sendEmail(ctx context.Context, to string, settings *domain.UserSettings, change domain.ChangeNotification) error {
	var tpl string
	if settings != nil {
		tpl = settings.EmailTemplate
	}

	body, err := n.renderer.Render(tpl, change)
	if err != nil {
		return err
	}

	if err := n.mailer.Send(ctx, email.Message{
		From:    n.from,
		To:      to,
		Subject: email.Subject(change.WebsiteName),
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func (n *Notifier) record(channel string, site domain.Website, err error) error {
	if err != nil {
		observability.NotificationsSent.WithLabelValues(channel, observability.StatusError).Inc()
		n.logger.Error().Err(err).Str(logKeyWebsiteID, site.ID).Str(logKeyChannel, channel).Msg("notification delivery failed")

		return err
	}

	observability.NotificationsSent.WithLabelValues(channel, observability.StatusSuccess).Inc()

	return nil
}
