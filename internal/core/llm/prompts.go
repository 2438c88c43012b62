package llm

import (
	"fmt"
	"unicode/utf8"
)

// DefaultClassifierPrompt is used when the user has not set a system prompt.
const DefaultClassifierPrompt = `You are an AI assistant specialized in analyzing website changes for a tender monitoring system. Your task is to determine if a detected change indicates a NEW tender, call for proposals, or call for expressions of interest.

Meaningful changes include:
- New "Appel d'offre" (Tender)
- New "Appel à manifestation d'intérêt" (Call for Expression of Interest)
- New "Avis de consultation"
- New funding opportunities or grants
- Updates to existing tender deadlines or requirements

NOT meaningful (ignore these):
- Minor text corrections
- Date updates not related to deadlines
- Layout changes
- Menu updates
- Footer/Header changes
- General news not related to tenders

IMPORTANT: If you detect a new tender/opportunity, identify ALL relevant links for detailed information.
- I have provided a numbered list of "Potential Links".
- You MUST return the INDEX (number) of the relevant link(s) from that list.
- Do NOT return the URL string itself, only the index.
- Look for Markdown links like [Title](https://...) or raw URLs
- Ignore image links (jpg, png, svg, etc.)
- Ignore CSS/JS file links
- Ignore generic navigation links
- Look for links to detail pages, PDF documents, or dedicated tender pages

Analyze the provided diff and return a JSON response with:
{
  "score": 0-100 (how likely this is a new tender/opportunity),
  "isMeaningful": true/false,
  "reasoning": "Brief explanation of your decision (EN FRANÇAIS)",
  "relevantLinkIndices": [1, 5] // Array of numbers corresponding to the indices in the "Potential Links" list. Return empty array if none found.
}

IMPORTANT: Le champ "reasoning" DOIT être rédigé en FRANÇAIS.`

const goNoGoSystemPrompt = `You are an expert analyst.
Evaluate the opportunity based STRICTLY on the provided rules.
1. Assign a score from 0 to 100 based on how well it matches the criteria.
2. Determine if it is a "GO" (score >= 50) or "NO GO" (score < 50).
3. Provide a concise explanation for the score (IN FRENCH).

Return JSON:
{
  "score": number, // 0-100
  "isGo": boolean,
  "reasoning": "Concise explanation based on the rules (IN FRENCH)"
}`

const (
	classifierUserFormat = "Website: %s (%s)\n\nChanges detected:\n%s\n\nPotential Links (Select by INDEX):\n%s\n\nPlease analyze these changes and determine if they are meaningful."
	goNoGoUserFormat     = "User's Go/No Go Rules:\n\"%s\"\n\nContent of the linked page (%s):\n%s"
)

func buildClassifierUserMessage(req ClassifyRequest) string {
	return fmt.Sprintf(classifierUserFormat, req.WebsiteName, req.WebsiteURL, req.DiffText, req.Candidates.Numbered())
}

func buildGoNoGoUserMessage(req GoNoGoRequest, maxChars int) string {
	return fmt.Sprintf(goNoGoUserFormat, req.Rules, req.URL, truncateRunes(req.Content, maxChars))
}

func systemPromptOrDefault(prompt string) string {
	if prompt == "" {
		return DefaultClassifierPrompt
	}

	return prompt
}

// truncateRunes cuts s to at most max characters without adding a marker.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	return string([]rune(s)[:max])
}
