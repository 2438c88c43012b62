package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

const (
	slackHost       = "hooks.slack.com"
	slackTextLimit  = 3000
	slackDateLayout = "02/01/2006 15:04:05"

	iconMeaningful = "🚨"
	iconChange     = "📝"
	iconCrawl      = "🕷️"
)

// Block kit element types.
const (
	blockHeader  = "header"
	blockSection = "section"
	blockDivider = "divider"
	blockContext = "context"
	textPlain    = "plain_text"
	textMrkdwn   = "mrkdwn"
)

// SlackText is a Block Kit text object.
type SlackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// SlackBlock is a Block Kit layout block.
type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

// SlackMessage is an incoming webhook message.
type SlackMessage struct {
	Text   string       `json:"text,omitempty"`
	Blocks []SlackBlock `json:"blocks"`
}

// IsSlackURL reports whether the webhook points at Slack incoming webhooks.
func IsSlackURL(webhookURL string) bool {
	return strings.Contains(webhookURL, slackHost)
}

// EscapeMrkdwn escapes the characters Slack treats as control sequences.
func EscapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// BuildSlackChange renders a change notification as Block Kit.
func BuildSlackChange(n domain.ChangeNotification, loc *time.Location) SlackMessage {
	if loc == nil {
		loc = time.UTC
	}

	icon := iconChange
	if n.AIAnalysis != nil && n.AIAnalysis.IsMeaningfulChange {
		icon = iconMeaningful
	}

	name := EscapeMrkdwn(n.WebsiteName)

	msg := SlackMessage{
		Text: fmt.Sprintf("%s Changement Détecté : %s", icon, name),
		Blocks: []SlackBlock{
			{
				Type: blockHeader,
				Text: &SlackText{
					Type:  textPlain,
					Text:  truncateSlack(fmt.Sprintf("%s Changement Détecté : %s", icon, n.WebsiteName), slackTextLimit),
					Emoji: true,
				},
			},
			{
				Type: blockSection,
				Fields: []SlackText{
					{Type: textMrkdwn, Text: fmt.Sprintf("*Site Web :*\n<%s|%s>", n.WebsiteURL, name)},
					{Type: textMrkdwn, Text: "*Date :*\n" + n.ScrapedAt.In(loc).Format(slackDateLayout)},
				},
			},
			{Type: blockDivider},
		},
	}

	if n.AIAnalysis != nil && n.AIAnalysis.Reasoning != "" {
		msg.Blocks = append(msg.Blocks,
			SlackBlock{
				Type: blockSection,
				Text: &SlackText{Type: textMrkdwn, Text: truncateSlack(EscapeMrkdwn(n.AIAnalysis.Reasoning), slackTextLimit)},
			},
			SlackBlock{Type: blockDivider},
		)
	}

	return msg
}

// BuildSlackCrawl renders a crawl completion as Block Kit.
func BuildSlackCrawl(n domain.CrawlNotification) SlackMessage {
	duration := "null"
	if !n.Session.CompletedAt.IsZero() {
		duration = crawlDuration(n.Session)
	}

	summary := fmt.Sprintf("Completed in %s. Found %d pages.", duration, n.Session.PagesFound)

	return SlackMessage{
		Blocks: []SlackBlock{
			{
				Type: blockHeader,
				Text: &SlackText{Type: textPlain, Text: fmt.Sprintf("%s Crawl Completed: %s", iconCrawl, n.WebsiteName), Emoji: true},
			},
			{
				Type: blockSection,
				Fields: []SlackText{
					{Type: textMrkdwn, Text: fmt.Sprintf("*Website:*\n<%s|%s>", n.WebsiteURL, n.WebsiteName)},
					{Type: textMrkdwn, Text: fmt.Sprintf("*Pages Found:*\n%d", n.Session.PagesFound)},
				},
			},
			{
				Type: blockSection,
				Text: &SlackText{Type: textMrkdwn, Text: "*Session Info:*\n" + summary},
			},
			{
				Type:     blockContext,
				Elements: []SlackText{{Type: textMrkdwn, Text: "Individual page changes will be sent as separate notifications."}},
			},
			{Type: blockDivider},
		},
	}
}

func truncateSlack(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
