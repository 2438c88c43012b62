package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/change-observer/internal/core/domain"
	"github.com/lueurxax/change-observer/internal/core/links/linkextract"
)

func TestParseClassification_Links(t *testing.T) {
	candidates := linkextract.Collect(domain.ChangeDiff{}, []string{"https://a.io/0", "https://a.io/1", "https://a.io/2"})

	tests := []struct {
		name        string
		content     string
		wantURLs    []string
		wantIndices []int
	}{
		{
			name:        "indices",
			content:     `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinkIndices":[2,0]}`,
			wantURLs:    []string{"https://a.io/2", "https://a.io/0"},
			wantIndices: []int{2, 0},
		},
		{
			name:        "out of range dropped",
			content:     `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinkIndices":[1,9,-1]}`,
			wantURLs:    []string{"https://a.io/1"},
			wantIndices: []int{1},
		},
		{
			name:        "numeric strings accepted",
			content:     `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinkIndices":["1", 2.0, 1.5]}`,
			wantURLs:    []string{"https://a.io/1", "https://a.io/2"},
			wantIndices: []int{1, 2},
		},
		{
			name:     "empty indices win over legacy fields",
			content:  `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinkIndices":[],"relevantLink":"https://legacy.io"}`,
			wantURLs: nil,
		},
		{
			name:     "legacy url list",
			content:  `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinks":["https://l.io/1","null","",3,"https://l.io/1"]}`,
			wantURLs: []string{"https://l.io/1"},
		},
		{
			name:     "legacy single url",
			content:  `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLinkIndices":null,"relevantLink":"https://l.io/x"}`,
			wantURLs: []string{"https://l.io/x"},
		},
		{
			name:     "legacy single null string",
			content:  `{"score":80,"isMeaningful":true,"reasoning":"r","relevantLink":"null"}`,
			wantURLs: nil,
		},
		{
			name:     "no link fields",
			content:  `{"score":80,"isMeaningful":true,"reasoning":"r"}`,
			wantURLs: nil,
		},
		{
			name:        "markdown fenced",
			content:     "```json\n{\"score\":80,\"isMeaningful\":true,\"reasoning\":\"r\",\"relevantLinkIndices\":[0]}\n```",
			wantURLs:    []string{"https://a.io/0"},
			wantIndices: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseClassification(tt.content, candidates)

			assert.Equal(t, ResultOK, res.Kind)
			assert.Equal(t, tt.wantURLs, res.Verdict.RelevantURLs)

			if tt.wantIndices != nil {
				assert.Equal(t, tt.wantIndices, res.Verdict.RelevantLinkIndices)
			}
		})
	}
}

func TestParseClassification_ModelFlagIsKeptVerbatim(t *testing.T) {
	res := ParseClassification(`{"score":70,"isMeaningful":false,"reasoning":"r"}`, linkextract.Candidates{})

	assert.True(t, res.OK())
	assert.False(t, res.Verdict.IsMeaningful)
	assert.True(t, res.Verdict.MeetsThreshold(70))
}

func TestParseGoNoGo(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		want    GoNoGoVerdict
	}{
		{name: "valid", content: `{"score":40,"isGo":false,"reasoning":"hors périmètre"}`, want: GoNoGoVerdict{Score: 40, Reasoning: "hors périmètre"}},
		{name: "missing isGo", content: `{"score":40}`, wantErr: true},
		{name: "garbage", content: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGoNoGo(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultKind_String(t *testing.T) {
	assert.Equal(t, "ok", ResultOK.String())
	assert.Equal(t, "parse_error", ResultParseError.String())
	assert.Equal(t, "schema_error", ResultSchemaError.String())
}
