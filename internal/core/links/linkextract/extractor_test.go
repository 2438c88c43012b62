package linkextract

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "absolute url",
			text: "+New tender: https://x.org/tender/1 today",
			want: []string{"https://x.org/tender/1"},
		},
		{
			name: "stops at closing paren",
			text: "see [notice](https://x.org/a) for details",
			want: []string{"https://x.org/a"},
		},
		{
			name: "root relative path",
			text: "+[Avis](/appels/42)",
			want: []string{"/appels/42"},
		},
		{
			name: "duplicates kept in order",
			text: "http://a.io/1 http://b.io/2 http://a.io/1",
			want: []string{"http://a.io/1", "http://b.io/2", "http://a.io/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractURLsFromJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "null", raw: "null", want: nil},
		{name: "malformed", raw: `{"files": [`, want: nil},
		{
			name: "nested strings in document order",
			raw:  `{"files":[{"chunks":[{"changes":[{"content":"+https://x.org/b"},{"content":"-https://x.org/a"}]}]}]}`,
			want: []string{"https://x.org/b", "https://x.org/a"},
		},
		{
			name: "numbers and bools ignored",
			raw:  `{"n":1,"ok":true,"link":"https://x.org/c"}`,
			want: []string{"https://x.org/c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLsFromJSON(json.RawMessage(tt.raw))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLsFromJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollect_DedupOrder(t *testing.T) {
	diff := domain.ChangeDiff{
		Text: "+New tender: Road construction https://x.org/tender/1\n-Old notice",
		JSON: json.RawMessage(`{"content":"https://x.org/tender/1 https://x.org/tender/2"}`),
	}

	c := Collect(diff, []string{"https://x.org/tender/3", "https://x.org/tender/2", ""})

	want := []string{"https://x.org/tender/1", "https://x.org/tender/2", "https://x.org/tender/3"}
	if !reflect.DeepEqual(c.URLs(), want) {
		t.Fatalf("URLs() = %v, want %v", c.URLs(), want)
	}

	if c.Count(SourceDiffText) != 1 || c.Count(SourceDiffJSON) != 2 || c.Count(SourcePageLinks) != 3 {
		t.Errorf("unexpected source counts: %v", c.counts)
	}
}

func TestCollect_Idempotent(t *testing.T) {
	diff := domain.ChangeDiff{
		Text: "+a https://a.io/1\n+b /rel/2\n-c https://a.io/1",
		JSON: json.RawMessage(`{"x":["https://c.io/3","/rel/2"]}`),
	}
	links := []string{"https://d.io/4"}

	first := Collect(diff, links)
	second := Collect(diff, links)

	if !reflect.DeepEqual(first.URLs(), second.URLs()) {
		t.Errorf("Collect not idempotent: %v vs %v", first.URLs(), second.URLs())
	}

	if first.Numbered() != second.Numbered() {
		t.Errorf("Numbered not stable")
	}
}

func TestCollect_MalformedJSONIsNotError(t *testing.T) {
	c := Collect(domain.ChangeDiff{Text: "", JSON: json.RawMessage(`{broken`)}, []string{"https://x.org/1"})

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCandidates_NumberedAndResolve(t *testing.T) {
	c := Collect(domain.ChangeDiff{}, []string{"https://x.org/tender/1", "https://x.org/tender/2"})

	if got := c.Numbered(); got != "0. https://x.org/tender/1\n1. https://x.org/tender/2" {
		t.Errorf("Numbered() = %q", got)
	}

	got := c.Resolve([]int{1, 5, -1, 0})
	want := []string{"https://x.org/tender/2", "https://x.org/tender/1"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestAbsolutize(t *testing.T) {
	tests := []struct {
		raw, page, want string
	}{
		{"https://x.org/a", "https://site.fr", "https://x.org/a"},
		{"/appels/42", "https://site.fr/actualites", "https://site.fr/appels/42"},
		{"/appels/42", "not a url", ""},
		{"//cdn.io/x", "https://site.fr", ""},
		{"mailto:a@b.c", "https://site.fr", ""},
		{"", "https://site.fr", ""},
	}

	for _, tt := range tests {
		if got := Absolutize(tt.raw, tt.page); got != tt.want {
			t.Errorf("Absolutize(%q, %q) = %q, want %q", tt.raw, tt.page, got, tt.want)
		}
	}
}

func TestDomain(t *testing.T) {
	if got := Domain("https://WWW.Example.com/path"); got != "www.example.com" {
		t.Errorf("Domain() = %q", got)
	}
}
