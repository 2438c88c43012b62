package links

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/lueurxax/change-observer/internal/platform/htmlutils"
)

// PageText is the readable text of a fetched page.
type PageText struct {
	Title string
	Text  string
}

// ExtractText turns a fetched page into plain text for the Go/No-Go round.
// Feeds are tried first, then the readability algorithm, then a plain text walk.
func ExtractText(page FetchedPage, rawURL string, maxLen int) PageText {
	if isPlainText(page.ContentType) {
		return PageText{Text: truncate(strings.TrimSpace(string(page.Body)), maxLen)}
	}

	if feedText, ok := tryExtractFeed(page.Body, maxLen); ok {
		return feedText
	}

	u, _ := url.Parse(rawURL) //nolint:errcheck // URL was already validated by the fetcher

	article, err := readability.FromReader(bytes.NewReader(page.Body), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return PageText{
			Title: article.Title,
			Text:  truncate(normalizeWhitespace(article.TextContent), maxLen),
		}
	}

	return PageText{Text: truncate(htmlutils.TextContent(page.Body), maxLen)}
}

func tryExtractFeed(body []byte, maxLen int) (PageText, bool) {
	fp := gofeed.NewParser()

	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil || len(feed.Items) == 0 {
		return PageText{}, false
	}

	var sb strings.Builder

	for _, item := range feed.Items {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}

		sb.WriteString(item.Title)

		content := item.Content
		if content == "" {
			content = item.Description
		}

		if content != "" {
			sb.WriteString("\n")
			sb.WriteString(htmlutils.StripHTMLTags(content))
		}

		if item.Link != "" {
			sb.WriteString("\n")
			sb.WriteString(item.Link)
		}
	}

	return PageText{Title: feed.Title, Text: truncate(sb.String(), maxLen)}, true
}

func isPlainText(contentType string) bool {
	ct := strings.ToLower(contentType)

	return strings.HasPrefix(ct, "text/plain") || strings.HasPrefix(ct, "text/markdown")
}

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]

	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return strings.Join(out, "\n")
}

// truncate cuts s to max characters. A non-positive max disables the limit.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	return string([]rune(s)[:max])
}
