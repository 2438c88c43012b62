package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const webhookProxyPath = "/api/webhook-proxy"

type Config struct {
	AppEnv              string        `env:"APP_ENV" envDefault:"local"`
	PostgresDSN         string        `env:"POSTGRES_DSN,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	HealthPort          int           `env:"HEALTH_PORT" envDefault:"8080"`

	// Admin access. ADMIN_IDENTITY_HEADER is trusted as is, so it must be set
	// by an authenticating proxy that strips any client supplied value.
	AdminEmails         []string `env:"ADMIN_EMAILS" envSeparator:","`
	AdminIdentityHeader string   `env:"ADMIN_IDENTITY_HEADER" envDefault:"X-Forwarded-Email"`

	// AI provider defaults, overridable per user
	AIDefaultBaseURL string        `env:"AI_DEFAULT_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AIDefaultModel   string        `env:"AI_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	AIRateLimitRPS   float64       `env:"AI_RATE_LIMIT_RPS" envDefault:"2"`
	AIRequestTimeout time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"120s"`

	// Scraping provider
	FirecrawlAPIKey       string        `env:"FIRECRAWL_API_KEY"`
	FirecrawlAPIURL       string        `env:"FIRECRAWL_API_URL" envDefault:"https://api.firecrawl.dev"`
	FirecrawlInstanceType string        `env:"FIRECRAWL_INSTANCE_TYPE" envDefault:"cloud"`
	ScrapeTimeout         time.Duration `env:"SCRAPE_TIMEOUT" envDefault:"120s"`
	CrawlPageLimit        int           `env:"CRAWL_PAGE_LIMIT" envDefault:"10"`

	// Deep analysis
	DeepContentMaxChars      int           `env:"DEEP_CONTENT_MAX_CHARS" envDefault:"15000"`
	DeepFetchFallbackEnabled bool          `env:"DEEP_FETCH_FALLBACK_ENABLED" envDefault:"false"`
	WebFetchRPS              float64       `env:"WEB_FETCH_RPS" envDefault:"2"`
	WebFetchTimeout          time.Duration `env:"WEB_FETCH_TIMEOUT" envDefault:"30s"`

	// Dedup ledger
	DedupWindow        time.Duration `env:"DEDUP_WINDOW" envDefault:"720h"`
	DedupPruneInterval time.Duration `env:"DEDUP_PRUNE_INTERVAL" envDefault:"0s"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`

	// Notifications
	WebhookProxyURL    string `env:"WEBHOOK_PROXY_URL"`
	WebhookProxySecret string `env:"WEBHOOK_PROXY_SECRET"`
	AppName            string `env:"APP_NAME" envDefault:"Kabuki Observer"`
	FromEmail          string `env:"FROM_EMAIL" envDefault:"noreply@example.com"`
	AppURL             string `env:"APP_URL" envDefault:"http://localhost:3000"`
	Timezone           string `env:"TIMEZONE" envDefault:"Europe/Paris"`
	EmailProvider      string `env:"EMAIL_PROVIDER" envDefault:"none"`
	ResendAPIKey       string `env:"RESEND_API_KEY"`
	ResendAPIURL       string `env:"RESEND_API_URL" envDefault:"https://api.resend.com"`
	AWSRegion          string `env:"AWS_REGION" envDefault:"eu-west-1"`

	// Scheduling
	CheckTickInterval time.Duration `env:"CHECK_TICK_INTERVAL" envDefault:"5m"`
	CrawlPollInterval time.Duration `env:"CRAWL_POLL_INTERVAL" envDefault:"1m"`
	CheckBatchSize    int           `env:"CHECK_BATCH_SIZE" envDefault:"50"`
	DefaultCheckEvery time.Duration `env:"DEFAULT_CHECK_INTERVAL" envDefault:"120m"`
	EventConcurrency  int           `env:"EVENT_CONCURRENCY" envDefault:"4"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyAliases(cfg)

	return cfg, nil
}

// Location returns the configured display time zone, or UTC if it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// SenderAddress is the From header used on notification emails.
func (c *Config) SenderAddress() string {
	return fmt.Sprintf("%s <%s>", c.AppName, c.FromEmail)
}

// UserAgent is sent on outbound webhook and fetch requests.
func (c *Config) UserAgent() string {
	return strings.ReplaceAll(c.AppName, " ", "-") + "/1.0"
}

func applyAliases(cfg *Config) {
	if !hasEnv("WEBHOOK_PROXY_URL") {
		if site := os.Getenv("CONVEX_SITE_URL"); site != "" {
			cfg.WebhookProxyURL = strings.TrimRight(site, "/") + webhookProxyPath
		}
	}

	if !hasEnv("APP_URL") {
		setStringFromEnv("NEXT_PUBLIC_APP_URL", &cfg.AppURL)
	}

	if cfg.EventConcurrency <= 0 {
		cfg.EventConcurrency = 1
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}
