package deepanalysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lueurxax/change-observer/internal/core/domain"
)

// DuplicatesNote is appended to the reasoning when every link was analyzed recently.
const DuplicatesNote = "\n\n(Note : De nouvelles opportunités ont été détectées mais ignorées car elles ont été analysées récemment.)"

const (
	iconGo   = "✅"
	iconNoGo = "❌"
)

// Decision is the event verdict after deep analysis.
type Decision struct {
	Score        float64
	IsMeaningful bool
	Reasoning    string
	Suppress     bool
}

// Directive converts the decision into the notification stage input.
func (d Decision) Directive() domain.NotificationDirective {
	return domain.NotificationDirective{
		IsMeaningful: d.IsMeaningful,
		Suppress:     d.Suppress,
		Reasoning:    d.Reasoning,
	}
}

// Aggregate folds a deep analysis outcome into the primary decision.
//
// All targets skipped as duplicates: not meaningful, note appended, suppressed.
// No successful verdict: the primary decision stands.
// Otherwise meaningful if any verdict is Go, the score is the best verdict
// score and the reasoning lists every verdict.
func Aggregate(primary Decision, out Outcome) Decision {
	if out.AllSkipped() {
		return Decision{
			Score:        primary.Score,
			IsMeaningful: false,
			Reasoning:    primary.Reasoning + DuplicatesNote,
			Suppress:     true,
		}
	}

	verdicts := out.Successful()
	if len(verdicts) == 0 {
		return primary
	}

	best := verdicts[0]
	anyGo := false

	for _, v := range verdicts {
		if v.Score > best.Score {
			best = v
		}

		anyGo = anyGo || v.IsGo
	}

	return Decision{
		Score:        best.Score,
		IsMeaningful: anyGo,
		Reasoning:    ConsolidatedReasoning(verdicts),
	}
}

// ConsolidatedReasoning renders one block per verdict with a Slack style link.
func ConsolidatedReasoning(verdicts []domain.DeepVerdict) string {
	var b strings.Builder

	for _, v := range verdicts {
		icon := iconNoGo
		if v.IsGo {
			icon = iconGo
		}

		fmt.Fprintf(&b, "%s [%s/100]\n<%s|Voir l'annonce>\n%s\n\n", icon, formatScore(v.Score), v.URL, v.Reasoning)
	}

	return b.String()
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
