// Package email renders change notifications as HTML mail and sends them
// through the configured provider.
package email

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/change-observer/internal/core/domain"
	"github.com/lueurxax/change-observer/internal/platform/htmlutils"
)

const (
	notAvailable = "N/A"
	dateLayout   = "02/01/2006 15:04:05"
	subjectFmt   = "Changes detected on %s"
)

// Template placeholders.
const (
	phWebsiteName  = "{{websiteName}}"
	phWebsiteURL   = "{{websiteUrl}}"
	phChangeDate   = "{{changeDate}}"
	phChangeType   = "{{changeType}}"
	phPageTitle    = "{{pageTitle}}"
	phViewChanges  = "{{viewChangesUrl}}"
	phAIScore      = "{{aiMeaningfulScore}}"
	phAIMeaningful = "{{aiIsMeaningful}}"
	phAIReasoning  = "{{aiReasoning}}"
	phAIModel      = "{{aiModel}}"
	phAIAnalyzedAt = "{{aiAnalyzedAt}}"
)

// slackLinkRe matches Slack style <url|label> links.
var slackLinkRe = regexp.MustCompile(`<([^|<>]+)\|([^<>]+)>`)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Renderer builds notification emails.
type Renderer struct {
	appURL string
	loc    *time.Location
	layout *template.Template
}

func NewRenderer(appURL string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}

	return &Renderer{
		appURL: appURL,
		loc:    loc,
		layout: template.Must(template.New("change").Parse(defaultLayout)),
	}
}

// Subject is the subject line for a change on the named website.
func Subject(websiteName string) string {
	return fmt.Sprintf(subjectFmt, websiteName)
}

// Render returns the email body. A non-empty user template has its placeholders
// filled and is then sanitized; otherwise the built-in layout is used.
func (r *Renderer) Render(userTemplate string, n domain.ChangeNotification) (string, error) {
	if strings.TrimSpace(userTemplate) != "" {
		return htmlutils.SanitizeEmailHTML(r.fillTemplate(userTemplate, n)), nil
	}

	var buf bytes.Buffer
	if err := r.layout.Execute(&buf, r.layoutData(n)); err != nil {
		return "", fmt.Errorf("render email layout: %w", err)
	}

	return buf.String(), nil
}

func (r *Renderer) fillTemplate(tpl string, n domain.ChangeNotification) string {
	title := n.Title
	if title == "" {
		title = notAvailable
	}

	score, meaningful, reasoning, model, analyzedAt := notAvailable, "No", notAvailable, notAvailable, notAvailable

	if a := n.AIAnalysis; a != nil {
		score = strconv.FormatFloat(a.MeaningfulChangeScore, 'f', -1, 64)
		meaningful = yesNo(a.IsMeaningfulChange)

		if a.Reasoning != "" {
			reasoning = ConvertSlackLinks(a.Reasoning)
		}

		if a.Model != "" {
			model = a.Model
		}

		if !a.AnalyzedAt.IsZero() {
			analyzedAt = r.formatDate(a.AnalyzedAt)
		}
	}

	replacer := strings.NewReplacer(
		phWebsiteName, n.WebsiteName,
		phWebsiteURL, n.WebsiteURL,
		phChangeDate, r.formatDate(n.ScrapedAt),
		phChangeType, n.ChangeStatus,
		phPageTitle, title,
		phViewChanges, r.appURL,
		phAIScore, score,
		phAIMeaningful, meaningful,
		phAIReasoning, reasoning,
		phAIModel, model,
		phAIAnalyzedAt, analyzedAt,
	)

	return replacer.Replace(tpl)
}

// ConvertSlackLinks turns <url|label> links into HTML anchors.
func ConvertSlackLinks(s string) string {
	return slackLinkRe.ReplaceAllString(s, `<a href="$1">$2</a>`)
}

type layoutData struct {
	WebsiteName string
	WebsiteURL  string
	ChangedAt   string
	PageTitle   string
	AppURL      string
	AI          *layoutAI
}

type layoutAI struct {
	Meaningful string
	Score      string
	Reasoning  template.HTML
	Model      string
	AnalyzedAt string
}

func (r *Renderer) layoutData(n domain.ChangeNotification) layoutData {
	data := layoutData{
		WebsiteName: n.WebsiteName,
		WebsiteURL:  n.WebsiteURL,
		ChangedAt:   r.formatDate(n.ScrapedAt),
		PageTitle:   n.Title,
		AppURL:      r.appURL,
	}

	if a := n.AIAnalysis; a != nil {
		data.AI = &layoutAI{
			Meaningful: yesNo(a.IsMeaningfulChange),
			Score:      strconv.FormatFloat(a.MeaningfulChangeScore, 'f', -1, 64),
			Reasoning:  reasoningHTML(a.Reasoning),
			Model:      a.Model,
			AnalyzedAt: r.formatDate(a.AnalyzedAt),
		}
	}

	return data
}

// reasoningHTML escapes the reasoning and renders its Slack links as anchors.
// Links with unsafe schemes keep only their label.
func reasoningHTML(s string) template.HTML {
	var b strings.Builder

	last := 0

	for _, m := range slackLinkRe.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:m[0]]))

		href, label := s[m[2]:m[3]], s[m[4]:m[5]]
		if htmlutils.IsSafeURL(href) {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(label))
		} else {
			b.WriteString(html.EscapeString(label))
		}

		last = m[1]
	}

	b.WriteString(html.EscapeString(s[last:]))

	return template.HTML(strings.ReplaceAll(b.String(), "\n", "<br>")) //nolint:gosec // every fragment is escaped above
}

func (r *Renderer) formatDate(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}

	return t.In(r.loc).Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}

	return "No"
}

const defaultLayout = `
<h2>Website Change Alert</h2>
<p>We've detected changes on the website you're monitoring:</p>
<div style="background: #f5f5f5; padding: 15px; border-radius: 8px; margin: 20px 0;">
  <h3>{{.WebsiteName}}</h3>
  <p><a href="{{.WebsiteURL}}">{{.WebsiteURL}}</a></p>
  <p><strong>Changed at:</strong> {{.ChangedAt}}</p>
  {{- if .PageTitle}}
  <p><strong>Page Title:</strong> {{.PageTitle}}</p>
  {{- end}}
  {{- with .AI}}
  <div style="background: #e8f4f8; border-left: 4px solid #2196F3; padding: 12px; margin: 15px 0;">
    <h4 style="margin: 0 0 8px 0; color: #1976D2;">AI Analysis</h4>
    <p><strong>Meaningful Change:</strong> {{.Meaningful}} ({{.Score}}% score)</p>
    <p><strong>Reasoning:</strong> {{.Reasoning}}</p>
    <p style="font-size: 12px; color: #666; margin: 8px 0 0 0;">Analyzed by {{.Model}} at {{.AnalyzedAt}}</p>
  </div>
  {{- end}}
</div>
<p><a href="{{.AppURL}}" style="background: #ff6600; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">View Changes</a></p>
`
