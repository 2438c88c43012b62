package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
)

// Provider names accepted by NewSender.
const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
	ProviderNone   = "none"
)

const (
	defaultTimeout = 30 * time.Second
	charsetUTF8    = "UTF-8"
	logKeyTo       = "to"
	logKeySubject  = "subject"
	logKeyEmailID  = "email_id"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderConfig selects and configures the provider.
type SenderConfig struct {
	Provider     string
	ResendAPIKey string
	ResendURL    string
	AWSRegion    string
	Timeout      time.Duration
}

// NewSender builds the sender for the configured provider. An unknown or empty
// provider gets a sender that only logs.
func NewSender(ctx context.Context, cfg SenderConfig, logger *zerolog.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("%w: resend api key is required", coreerrors.ErrInvalidInput)
		}

		return NewResendSender(cfg.ResendAPIKey, cfg.ResendURL, cfg.Timeout, logger)
	case ProviderSES:
		return NewSESSender(ctx, cfg.AWSRegion)
	default:
		return NewLogSender(logger), nil
	}
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	logger *zerolog.Logger
}

// NewResendSender builds a Resend client. baseURL overrides the API root and
// may be empty.
func NewResendSender(apiKey, baseURL string, timeout time.Duration, logger *zerolog.Logger) (*ResendSender, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)

	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("%w: resend base url: %v", coreerrors.ErrInvalidInput, err)
		}

		client.BaseURL = u
	}

	return &ResendSender{client: client, logger: logger}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend send email: %w", err)
	}

	s.logger.Debug().Str(logKeyTo, msg.To).Str(logKeyEmailID, sent.Id).Msg("email accepted by resend")

	return nil
}

// SESAPI is the part of the SES client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends through Amazon SES.
type SESSender struct {
	client SESAPI
}

// NewSESSender loads the default AWS configuration for region.
func NewSESSender(ctx context.Context, region string) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESSender{client: ses.NewFromConfig(cfg)}, nil
}

// NewSESSenderWithClient wraps an existing SES client.
func NewSESSenderWithClient(client SESAPI) *SESSender {
	return &SESSender{client: client}
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &sestypes.Destination{ToAddresses: []string{msg.To}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: aws.String(msg.HTML), Charset: aws.String(charsetUTF8)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}

	return nil
}

// LogSender records emails in the log instead of sending them.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().Str(logKeyTo, msg.To).Str(logKeySubject, msg.Subject).Msg("email provider disabled, not sending")
	return nil
}
