package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

const testHookURL = "https://hooks.example.com/observer"

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		in   GateInput
		want Decision
	}{
		{
			name: "both channels meaningful",
			in: GateInput{
				Preference: domain.PreferenceBoth, WebhookURL: testHookURL,
				IsMeaningful: true, HasVerifiedEmail: true, AIAnalysisRan: true,
			},
			want: Decision{SendWebhook: true, SendEmail: true},
		},
		{
			name: "preference none",
			in: GateInput{
				Preference: domain.PreferenceNone, WebhookURL: testHookURL,
				IsMeaningful: true, HasVerifiedEmail: true, AIAnalysisRan: true,
			},
			want: Decision{},
		},
		{
			name: "webhook without url",
			in: GateInput{
				Preference: domain.PreferenceWebhook, IsMeaningful: true, AIAnalysisRan: true,
			},
			want: Decision{},
		},
		{
			name: "email without verified address",
			in: GateInput{
				Preference: domain.PreferenceEmail, IsMeaningful: true, AIAnalysisRan: true,
			},
			want: Decision{},
		},
		{
			name: "not meaningful with email filter",
			in: GateInput{
				Preference: domain.PreferenceBoth, WebhookURL: testHookURL,
				EmailOnlyIfMeaningful: true, HasVerifiedEmail: true, AIAnalysisRan: true,
			},
			want: Decision{SendWebhook: true},
		},
		{
			name: "not meaningful with webhook filter",
			in: GateInput{
				Preference: domain.PreferenceBoth, WebhookURL: testHookURL,
				WebhookOnlyIfMeaningful: true, HasVerifiedEmail: true, AIAnalysisRan: true,
			},
			want: Decision{SendEmail: true},
		},
		{
			name: "filters ignored when ai did not run",
			in: GateInput{
				Preference: domain.PreferenceBoth, WebhookURL: testHookURL,
				EmailOnlyIfMeaningful: true, WebhookOnlyIfMeaningful: true, HasVerifiedEmail: true,
			},
			want: Decision{SendWebhook: true, SendEmail: true},
		},
		{
			name: "suppressed",
			in: GateInput{
				Preference: domain.PreferenceBoth, WebhookURL: testHookURL,
				IsMeaningful: true, HasVerifiedEmail: true, AIAnalysisRan: true, ForceSuppress: true,
			},
			want: Decision{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == Decision{}, got.None())
		})
	}
}

func TestResolveWebhookURL(t *testing.T) {
	settings := &domain.UserSettings{DefaultWebhookURL: "https://default.example.com"}

	assert.Equal(t, testHookURL, ResolveWebhookURL(domain.Website{WebhookURL: testHookURL}, settings))
	assert.Equal(t, "https://default.example.com", ResolveWebhookURL(domain.Website{}, settings))
	assert.Empty(t, ResolveWebhookURL(domain.Website{}, nil))
}
