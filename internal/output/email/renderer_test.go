package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

const testAppURL = "https://observer.example.com"

var testScrapedAt = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func testNotification() domain.ChangeNotification {
	return domain.ChangeNotification{
		WebsiteID:    "site-1",
		WebsiteName:  "Marchés Publics",
		WebsiteURL:   "https://x.org/appels",
		ChangeType:   domain.ChangeTypeContentChanged,
		ChangeStatus: domain.ChangeStatusChanged,
		Title:        "Appels d'offres",
		ScrapedAt:    testScrapedAt,
		AIAnalysis: &domain.FinalAnalysis{
			MeaningfulChangeScore: 85,
			IsMeaningfulChange:    true,
			Reasoning:             "✅ [85/100]\n<https://x.org/tender/1|Voir l'annonce>\nRoute <b>",
			AnalyzedAt:            testScrapedAt,
			Model:                 "gpt-4o-mini",
		},
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Changes detected on Marchés Publics", Subject("Marchés Publics"))
}

func TestConvertSlackLinks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "single", input: "<https://a.org|A>", want: `<a href="https://a.org">A</a>`},
		{name: "two links", input: "<https://a.org|A> et <https://b.org|B>", want: `<a href="https://a.org">A</a> et <a href="https://b.org">B</a>`},
		{name: "no link", input: "texte simple", want: "texte simple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertSlackLinks(tt.input))
		})
	}
}

func TestRender_UserTemplate(t *testing.T) {
	r := NewRenderer(testAppURL, time.UTC)

	tpl := `<h1>{{websiteName}}</h1><p>{{changeType}} {{pageTitle}}</p><p>{{aiMeaningfulScore}} {{aiIsMeaningful}} {{aiModel}}</p>` +
		`<div>{{aiReasoning}}</div><a href="{{viewChangesUrl}}" onclick="steal()">voir</a><script>alert(1)</script>`

	got, err := r.Render(tpl, testNotification())
	require.NoError(t, err)

	assert.Contains(t, got, "<h1>Marchés Publics</h1>")
	assert.Contains(t, got, "changed Appels d'offres")
	assert.Contains(t, got, "85 Yes gpt-4o-mini")
	assert.Contains(t, got, `<a href="https://x.org/tender/1">Voir l'annonce</a>`)
	assert.Contains(t, got, `href="`+testAppURL+`"`)
	assert.NotContains(t, got, "onclick")
	assert.NotContains(t, got, "<script")
}

func TestRender_UserTemplateWithoutAnalysis(t *testing.T) {
	r := NewRenderer(testAppURL, time.UTC)
	n := testNotification()
	n.AIAnalysis = nil
	n.Title = ""

	got, err := r.Render("{{pageTitle}}|{{aiMeaningfulScore}}|{{aiIsMeaningful}}|{{aiReasoning}}|{{aiAnalyzedAt}}", n)
	require.NoError(t, err)
	assert.Equal(t, "N/A|N/A|No|N/A|N/A", got)
}

func TestRender_DefaultLayout(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	r := NewRenderer(testAppURL, paris)

	got, err := r.Render("  ", testNotification())
	require.NoError(t, err)

	assert.Contains(t, got, "<h3>Marchés Publics</h3>")
	assert.Contains(t, got, "10/03/2026 13:30:00")
	assert.Contains(t, got, "Yes (85% score)")
	assert.Contains(t, got, `<a href="https://x.org/tender/1">Voir l&#39;annonce</a>`)
	assert.Contains(t, got, "Route &lt;b&gt;")
	assert.Contains(t, got, `href="`+testAppURL+`"`)
}

func TestReasoningHTML_UnsafeLink(t *testing.T) {
	got := string(reasoningHTML("<javascript:alert(1)|clic>\nfin"))

	assert.False(t, strings.Contains(got, "<a "))
	assert.Equal(t, "clic<br>fin", got)
}
