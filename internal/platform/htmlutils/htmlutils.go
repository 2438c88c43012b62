// Package htmlutils provides HTML processing utilities for notification emails and
// extracted page content.
//
// The package handles:
//   - Allow-list sanitizing of user supplied email templates
//   - Tag stripping for plain text extraction
//   - Safe URL checks for href and src attributes
package htmlutils

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"
)

var tagRegex = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)([^>]*)>`)

// dangerousProtocols lists URL protocols that should be stripped
var dangerousProtocols = []string{
	"javascript:",
	"vbscript:",
	"data:",
}

// Elements kept in sanitized email HTML. Anything else is dropped.
var allowedElements = setOf(
	"a", "abbr", "address", "article", "aside", "b", "big", "blockquote", "body", "br",
	"caption", "center", "cite", "code", "col", "colgroup", "dd", "del", "div", "dl", "dt",
	"em", "font", "footer", "h1", "h2", "h3", "h4", "h5", "h6", "head", "header", "hr",
	"html", "i", "img", "ins", "kbd", "li", "main", "mark", "ol", "p", "pre", "q", "s",
	"section", "small", "span", "strike", "strong", "style", "sub", "sup", "table",
	"tbody", "td", "tfoot", "th", "thead", "title", "tr", "tt", "u", "ul",
)

// Disallowed elements whose content is dropped too. Other disallowed elements
// lose only their tags.
var droppedWithContent = setOf(
	"script", "iframe", "object", "embed", "frame", "frameset", "applet", "svg", "math",
	"template", "noscript", "noembed", "noframes", "form", "textarea", "select", "xmp",
	"plaintext",
)

// Void elements never get an end tag, so they do not open a dropped subtree.
var voidElements = setOf("embed", "frame", "base", "link", "meta", "param", "source", "input")

// Attributes kept on allowed elements.
var allowedAttributes = setOf(
	"abbr", "align", "alt", "background", "bgcolor", "border", "cellpadding", "cellspacing",
	"cite", "class", "color", "colspan", "datetime", "dir", "face", "headers", "height",
	"href", "hspace", "id", "lang", "nowrap", "rel", "rowspan", "scope", "size", "span",
	"src", "start", "style", "summary", "target", "title", "type", "valign", "vspace",
	"width",
)

// Allowed attributes whose value is a URL.
var urlAttributes = setOf("href", "src", "cite", "background")

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}

	return m
}

// SanitizeEmailHTML reduces an HTML document to an allow-list of elements and
// attributes. Script-capable elements are removed with their content, other
// unknown elements lose their tags, URL attributes with dangerous schemes and
// unsafe styles are dropped, comments are removed.
func SanitizeEmailHTML(input string) string {
	z := nethtml.NewTokenizer(strings.NewReader(input))

	var (
		out     bytes.Buffer
		depth   int // nesting inside a dropped subtree
		inStyle bool
	)

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			// io.EOF or a malformed tail; only sanitized tokens were written.
			return out.String()
		}

		raw := append([]byte(nil), z.Raw()...)
		tok := z.Token()

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name := strings.ToLower(tok.Data)
			if droppedWithContent[name] {
				if tt == nethtml.StartTagToken && !voidElements[name] {
					depth++
				}

				continue
			}

			if depth > 0 || !allowedElements[name] {
				continue
			}

			inStyle = name == "style" && tt == nethtml.StartTagToken
			tok.Attr = sanitizeAttrs(tok.Attr)
			out.WriteString(tok.String())
		case nethtml.EndTagToken:
			name := strings.ToLower(tok.Data)
			if droppedWithContent[name] {
				if depth > 0 {
					depth--
				}

				continue
			}

			if depth > 0 || !allowedElements[name] {
				continue
			}

			if name == "style" {
				inStyle = false
			}

			out.WriteString(tok.String())
		case nethtml.CommentToken:
			continue
		case nethtml.TextToken, nethtml.DoctypeToken:
			if depth > 0 || (inStyle && unsafeStyle(string(raw))) {
				continue
			}

			// Raw keeps entities and style sheets exactly as written.
			out.Write(raw)
		}
	}
}

func sanitizeAttrs(attrs []nethtml.Attribute) []nethtml.Attribute {
	kept := attrs[:0]

	for _, a := range attrs {
		key := strings.ToLower(a.Key)

		if a.Namespace != "" || !allowedAttributes[key] {
			continue
		}

		if urlAttributes[key] && !IsSafeURL(a.Val) {
			continue
		}

		if key == "style" && unsafeStyle(a.Val) {
			continue
		}

		kept = append(kept, a)
	}

	return kept
}

// IsSafeURL reports whether a URL attribute value uses an allowed scheme.
func IsSafeURL(raw string) bool {
	normalized := strings.ToLower(strings.Map(func(r rune) rune {
		// Browsers ignore control characters and whitespace inside schemes.
		if r <= ' ' || r == 0x7f {
			return -1
		}

		return r
	}, html.UnescapeString(raw)))

	for _, proto := range dangerousProtocols {
		if strings.HasPrefix(normalized, proto) {
			return false
		}
	}

	return true
}

func unsafeStyle(style string) bool {
	s := strings.ToLower(style)

	return strings.Contains(s, "expression(") || strings.Contains(s, "javascript:") ||
		strings.Contains(s, "vbscript:") || strings.Contains(s, "@import")
}

// StripHTMLTags removes all HTML tags from text, keeping only the content.
func StripHTMLTags(text string) string {
	result := tagRegex.ReplaceAllString(text, "")
	result = html.UnescapeString(result)

	return strings.TrimSpace(result)
}

// TextContent returns the visible text of an HTML document, one block per line.
func TextContent(doc []byte) string {
	root, err := nethtml.Parse(bytes.NewReader(doc))
	if err != nil {
		return ""
	}

	var sb strings.Builder

	var walk func(*nethtml.Node)

	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.ElementNode {
			switch strings.ToLower(n.Data) {
			case "script", "style", "noscript", "head", "template":
				return
			}
		}

		if n.Type == nethtml.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}

				sb.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(root)

	return sb.String()
}
