package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/lueurxax/change-observer/internal/core/domain"
	coreerrors "github.com/lueurxax/change-observer/internal/core/errors"
	"github.com/lueurxax/change-observer/internal/core/links/linkextract"
)

// ResultKind tags the outcome of parsing a primary classifier response.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultParseError
	ResultSchemaError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultParseError:
		return "parse_error"
	case ResultSchemaError:
		return "schema_error"
	default:
		return "unknown"
	}
}

// ClassificationResult is Ok(verdict), ParseError(raw) or SchemaError(raw).
// Raw always holds the model output for diagnosis.
type ClassificationResult struct {
	Kind    ResultKind
	Verdict domain.ClassificationVerdict
	Raw     string
	Err     error
}

// OK reports whether the verdict is usable.
func (r ClassificationResult) OK() bool {
	return r.Kind == ResultOK
}

// GoNoGoVerdict is the parsed deep analysis answer for one page.
type GoNoGoVerdict struct {
	Score     float64 `json:"score"`
	IsGo      bool    `json:"isGo"`
	Reasoning string  `json:"reasoning"`
}

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["score", "isMeaningful", "reasoning"],
  "properties": {
    "score": {"type": "number"},
    "isMeaningful": {"type": "boolean"},
    "reasoning": {"type": "string"}
  }
}`

const goNoGoSchemaJSON = `{
  "type": "object",
  "required": ["score", "isGo"],
  "properties": {
    "score": {"type": "number"},
    "isGo": {"type": "boolean"},
    "reasoning": {"type": "string"}
  }
}`

var (
	verdictSchema = mustSchema(verdictSchemaJSON)
	goNoGoSchema  = mustSchema(goNoGoSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}

	return schema
}

// rawVerdict keeps the link fields undecoded so each strategy can inspect their shape.
type rawVerdict struct {
	Score               float64         `json:"score"`
	IsMeaningful        bool            `json:"isMeaningful"`
	Reasoning           string          `json:"reasoning"`
	RelevantLinkIndices json.RawMessage `json:"relevantLinkIndices"`
	RelevantLinks       json.RawMessage `json:"relevantLinks"`
	RelevantLink        json.RawMessage `json:"relevantLink"`
}

// ParseClassification turns classifier output into a tagged result and resolves the
// relevant links against the candidates offered in the prompt.
func ParseClassification(content string, candidates linkextract.Candidates) ClassificationResult {
	body := stripCodeFence(content)

	if !json.Valid([]byte(body)) {
		return ClassificationResult{Kind: ResultParseError, Raw: content, Err: coreerrors.ErrClassifierParse}
	}

	if err := validate(verdictSchema, body); err != nil {
		return ClassificationResult{Kind: ResultSchemaError, Raw: content, Err: err}
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(body), &rv); err != nil {
		return ClassificationResult{Kind: ResultSchemaError, Raw: content, Err: fmt.Errorf("%w: %w", coreerrors.ErrClassifierSchema, err)}
	}

	verdict := domain.ClassificationVerdict{
		Score:        rv.Score,
		IsMeaningful: rv.IsMeaningful,
		Reasoning:    rv.Reasoning,
	}

	verdict.RelevantLinkIndices, verdict.RelevantURLs = resolveLinks(rv, candidates)

	return ClassificationResult{Kind: ResultOK, Verdict: verdict, Raw: content}
}

// ParseGoNoGo parses a Go/No-Go answer.
func ParseGoNoGo(content string) (GoNoGoVerdict, error) {
	body := stripCodeFence(content)

	if !json.Valid([]byte(body)) {
		return GoNoGoVerdict{}, fmt.Errorf(errParseResponse, coreerrors.ErrClassifierParse)
	}

	if err := validate(goNoGoSchema, body); err != nil {
		return GoNoGoVerdict{}, fmt.Errorf(errParseResponse, err)
	}

	var v GoNoGoVerdict
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return GoNoGoVerdict{}, fmt.Errorf(errParseResponse, err)
	}

	return v, nil
}

func validate(schema *gojsonschema.Schema, body string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", coreerrors.ErrClassifierSchema, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}

		return fmt.Errorf("%w: %s", coreerrors.ErrClassifierSchema, strings.Join(errs, "; "))
	}

	return nil
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// linkStrategy inspects one response shape. ok is false when the shape is absent.
type linkStrategy func(rv rawVerdict, candidates linkextract.Candidates) (indices []int, urls []string, ok bool)

// Tried in order; the first strategy whose field is present wins, even with no links.
var linkStrategies = []linkStrategy{
	linksFromIndices,
	linksFromURLList,
	linksFromSingleURL,
}

func resolveLinks(rv rawVerdict, candidates linkextract.Candidates) ([]int, []string) {
	for _, strategy := range linkStrategies {
		if indices, urls, ok := strategy(rv, candidates); ok {
			return indices, dedupe(urls)
		}
	}

	return nil, nil
}

func linksFromIndices(rv rawVerdict, candidates linkextract.Candidates) ([]int, []string, bool) {
	var items []json.RawMessage
	if !isArray(rv.RelevantLinkIndices) || json.Unmarshal(rv.RelevantLinkIndices, &items) != nil {
		return nil, nil, false
	}

	var (
		indices []int
		urls    []string
	)

	for _, item := range items {
		idx, ok := parseIndex(item)
		if !ok {
			continue
		}

		if u, found := candidates.At(idx); found {
			indices = append(indices, idx)
			urls = append(urls, u)
		}
	}

	return indices, urls, true
}

func linksFromURLList(rv rawVerdict, _ linkextract.Candidates) ([]int, []string, bool) {
	var items []any
	if !isArray(rv.RelevantLinks) || json.Unmarshal(rv.RelevantLinks, &items) != nil {
		return nil, nil, false
	}

	var urls []string

	for _, item := range items {
		if s, ok := item.(string); ok && usableURL(s) {
			urls = append(urls, s)
		}
	}

	return nil, urls, true
}

func linksFromSingleURL(rv rawVerdict, _ linkextract.Candidates) ([]int, []string, bool) {
	var s string
	if len(rv.RelevantLink) == 0 || json.Unmarshal(rv.RelevantLink, &s) != nil {
		return nil, nil, false
	}

	if !usableURL(s) {
		return nil, nil, false
	}

	return nil, []string{s}, true
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) > 0 && trimmed[0] == '['
}

// parseIndex accepts whole numbers and numeric strings.
func parseIndex(raw json.RawMessage) (int, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != math.Trunc(n) {
			return 0, false
		}

		return int(n), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}

	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}

	return i, true
}

func usableURL(s string) bool {
	return s != "" && s != "null"
}

func dedupe(urls []string) []string {
	if len(urls) == 0 {
		return urls
	}

	seen := make(map[string]bool, len(urls))
	out := urls[:0]

	for _, u := range urls {
		if seen[u] {
			continue
		}

		seen[u] = true
		out = append(out, u)
	}

	return out
}
