package linkextract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

// Source identifies where a candidate link was found.
type Source string

const (
	SourceDiffText  Source = "diff_text"
	SourceDiffJSON  Source = "diff_json"
	SourcePageLinks Source = "page_links"
)

// Absolute http(s) URLs or root-relative paths, ending at whitespace or ')'.
var urlRegex = regexp.MustCompile(`https?://[^\s)]+|/[^\s)]+`)

// Candidates is the ordered, deduplicated link list for one classification round.
// Indices are only meaningful for the round that produced them.
type Candidates struct {
	urls   []string
	counts map[Source]int
}

// Collect gathers candidate links from the diff text, the diff json and the page links,
// keeping first-seen order.
func Collect(diff domain.ChangeDiff, pageLinks []string) Candidates {
	c := Candidates{counts: make(map[Source]int, 3)}
	seen := make(map[string]bool)

	add := func(src Source, list []string) {
		c.counts[src] = len(list)

		for _, u := range list {
			if u == "" || seen[u] {
				continue
			}

			seen[u] = true
			c.urls = append(c.urls, u)
		}
	}

	add(SourceDiffText, ExtractURLs(diff.Text))
	add(SourceDiffJSON, ExtractURLsFromJSON(diff.JSON))
	add(SourcePageLinks, pageLinks)

	return c
}

// ExtractURLs returns every pattern match in text, in order, duplicates included.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}

	return urlRegex.FindAllString(text, -1)
}

// ExtractURLsFromJSON applies the URL pattern to every string in a JSON document,
// in document order. Malformed JSON yields no links.
func ExtractURLsFromJSON(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if !json.Valid(raw) {
		return nil
	}

	var urls []string

	dec := json.NewDecoder(bytes.NewReader(raw))

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil
		}

		if s, ok := tok.(string); ok {
			urls = append(urls, ExtractURLs(s)...)
		}
	}

	return urls
}

// Len returns the number of candidates.
func (c Candidates) Len() int {
	return len(c.urls)
}

// URLs returns a copy of the ordered candidate list.
func (c Candidates) URLs() []string {
	out := make([]string, len(c.urls))
	copy(out, c.urls)

	return out
}

// At returns the candidate at index i.
func (c Candidates) At(i int) (string, bool) {
	if i < 0 || i >= len(c.urls) {
		return "", false
	}

	return c.urls[i], true
}

// Resolve maps indices back to candidate URLs. Out of range indices are dropped.
func (c Candidates) Resolve(indices []int) []string {
	var out []string

	for _, i := range indices {
		if u, ok := c.At(i); ok {
			out = append(out, u)
		}
	}

	return out
}

// Count returns how many links a source contributed before deduplication.
func (c Candidates) Count(src Source) int {
	return c.counts[src]
}

// Numbered renders the candidates as "index. url" lines for the classifier prompt.
func (c Candidates) Numbered() string {
	var sb strings.Builder

	for i, u := range c.urls {
		if i > 0 {
			sb.WriteByte('\n')
		}

		fmt.Fprintf(&sb, "%d. %s", i, u)
	}

	return sb.String()
}

// Absolutize resolves a root-relative candidate against the page it came from.
// It returns "" when the result is not an http(s) URL.
func Absolutize(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}

	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return base.ResolveReference(ref).String()
}

// Domain returns the lowercased host of an absolute URL.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Host)
}
