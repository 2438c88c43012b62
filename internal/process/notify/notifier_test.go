package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/output/email"
	"github.com/lueurxax/change-observer/internal/output/webhook"
)

var errDeliveryDown = errors.New("delivery down")

type fakeWebhooks struct {
	mu      sync.Mutex
	changes []string
	crawls  []string
	err     error
}

func (f *fakeWebhooks) SendChange(_ context.Context, url string, _ domain.ChangeNotification) (webhook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.changes = append(f.changes, url)

	return webhook.Result{Success: f.err == nil}, f.err
}

func (f *fakeWebhooks) SendCrawl(_ context.Context, url string, _ domain.CrawlNotification) (webhook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.crawls = append(f.crawls, url)

	return webhook.Result{Success: f.err == nil}, f.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)

	return f.err
}

type fakeEmailStore struct {
	cfg *domain.EmailConfig
}

func (f *fakeEmailStore) GetEmailConfig(_ context.Context, _ string) (*domain.EmailConfig, error) {
	if f.cfg == nil {
		return nil, coreerrors.ErrNotFound
	}

	return f.cfg, nil
}

func newTestNotifier(hooks *fakeWebhooks, mailer *fakeMailer, store *fakeEmailStore) *Notifier {
	logger := zerolog.Nop()

	return NewNotifier(hooks, mailer, email.NewRenderer("https://app.example.com", time.UTC), store, "Observer <noreply@example.com>", &logger)
}

func testSite(pref domain.NotificationPreference) domain.Website {
	return domain.Website{
		ID:                     "site-1",
		UserID:                 "user-1",
		Name:                   "Tenders",
		URL:                    "https://tenders.example.com",
		NotificationPreference: pref,
		WebhookURL:             testHookURL,
	}
}

func testChange() domain.ChangeNotification {
	return domain.ChangeNotification{
		WebsiteID:   "site-1",
		WebsiteName: "Tenders",
		WebsiteURL:  "https://tenders.example.com",
		ChangeType:  domain.ChangeTypeContentChanged,
		Diff:        &domain.ChangeDiff{Text: "+ new tender"},
		ScrapedAt:   time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

func verifiedStore() *fakeEmailStore {
	return &fakeEmailStore{cfg: &domain.EmailConfig{UserID: "user-1", Email: "owner@example.com", IsVerified: true}}
}

func TestNotifyChange_BothChannels(t *testing.T) {
	hooks := &fakeWebhooks{}
	mailer := &fakeMailer{}
	n := newTestNotifier(hooks, mailer, verifiedStore())

	report := n.NotifyChange(context.Background(), testSite(domain.PreferenceBoth), &domain.UserSettings{}, testChange(),
		&domain.NotificationDirective{IsMeaningful: true})

	require.NoError(t, report.Err())
	assert.Equal(t, Decision{SendWebhook: true, SendEmail: true}, report.Decision)
	assert.Equal(t, []string{testHookURL}, hooks.changes)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "owner@example.com", mailer.sent[0].To)
	assert.Equal(t, "Changes detected on Tenders", mailer.sent[0].Subject)
	assert.Equal(t, "Observer <noreply@example.com>", mailer.sent[0].From)
}

func TestNotifyChange_ChannelsAreIndependent(t *testing.T) {
	hooks := &fakeWebhooks{err: errDeliveryDown}
	mailer := &fakeMailer{}
	n := newTestNotifier(hooks, mailer, verifiedStore())

	report := n.NotifyChange(context.Background(), testSite(domain.PreferenceBoth), nil, testChange(), nil)

	require.ErrorIs(t, report.WebhookErr, errDeliveryDown)
	require.NoError(t, report.EmailErr)
	assert.Len(t, mailer.sent, 1)
}

func TestNotifyChange_Suppressed(t *testing.T) {
	hooks := &fakeWebhooks{}
	mailer := &fakeMailer{}
	n := newTestNotifier(hooks, mailer, verifiedStore())

	report := n.NotifyChange(context.Background(), testSite(domain.PreferenceBoth), nil, testChange(),
		&domain.NotificationDirective{Suppress: true})

	assert.True(t, report.Decision.None())
	assert.Empty(t, hooks.changes)
	assert.Empty(t, mailer.sent)
}

func TestNotifyChange_FiltersApplyOnlyAfterAI(t *testing.T) {
	settings := &domain.UserSettings{EmailOnlyIfMeaningful: true, WebhookOnlyIfMeaningful: true}

	hooks := &fakeWebhooks{}
	mailer := &fakeMailer{}
	n := newTestNotifier(hooks, mailer, verifiedStore())

	report := n.NotifyChange(context.Background(), testSite(domain.PreferenceBoth), settings, testChange(),
		&domain.NotificationDirective{IsMeaningful: false})
	assert.True(t, report.Decision.None())

	report = n.NotifyChange(context.Background(), testSite(domain.PreferenceBoth), settings, testChange(), nil)
	assert.Equal(t, Decision{SendWebhook: true, SendEmail: true}, report.Decision)
}

func TestNotifyChange_UnverifiedEmail(t *testing.T) {
	mailer := &fakeMailer{}
	store := &fakeEmailStore{cfg: &domain.EmailConfig{Email: "owner@example.com"}}
	n := newTestNotifier(&fakeWebhooks{}, mailer, store)

	report := n.NotifyChange(context.Background(), testSite(domain.PreferenceEmail), nil, testChange(), nil)

	assert.False(t, report.Decision.SendEmail)
	assert.Empty(t, mailer.sent)
}

func TestNotifyChange_DefaultWebhookFallback(t *testing.T) {
	hooks := &fakeWebhooks{}
	n := newTestNotifier(hooks, &fakeMailer{}, &fakeEmailStore{})

	site := testSite(domain.PreferenceWebhook)
	site.WebhookURL = ""

	report := n.NotifyChange(context.Background(), site, &domain.UserSettings{DefaultWebhookURL: "https://default.example.com"}, testChange(), nil)

	require.NoError(t, report.Err())
	assert.Equal(t, []string{"https://default.example.com"}, hooks.changes)
}

func TestNotifyCrawl(t *testing.T) {
	hooks := &fakeWebhooks{}
	n := newTestNotifier(hooks, &fakeMailer{}, &fakeEmailStore{})

	crawl := domain.CrawlNotification{WebsiteID: "site-1", WebsiteName: "Tenders"}

	require.NoError(t, n.NotifyCrawl(context.Background(), testSite(domain.PreferenceEmail), nil, crawl))
	assert.Empty(t, hooks.crawls)

	require.NoError(t, n.NotifyCrawl(context.Background(), testSite(domain.PreferenceWebhook), nil, crawl))
	assert.Equal(t, []string{testHookURL}, hooks.crawls)
}
