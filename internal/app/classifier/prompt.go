package classifier

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

const themePromptTemplate = `
Analyze the following user message to determine the best supportive tool.

Themes:
1. Specificity (the user mentions a specific event, person, or scenario they are navigating)
2. Complexity (the user vaguely describes a complex, messy situation or relationship)
3. Simplicity (the user expresses a raw emotion like anxiety, stress, anger or sadness with little context)
4. Unclear (gibberish, a greeting, or "idk". If there is ANY hint of emotion or situation, classify it instead of Unclear.)

If Simplicity, determine the emotion category and its game:
%s
Return only JSON:
{
  "theme": "Specificity" | "Complexity" | "Simplicity" | "Unclear",
  "targetMode": "visualizer" | "mind_map" | "game_selection" | null,
  "emotionCategory": "<category label>" | null,
  "targetGame": "<game name>" | null
}

User message: %q
`

const confirmationPromptTemplate = `
The assistant suggested that the user open %s.
Decide whether the user's reply accepts that suggestion.
Affirmative replies include "yes", "sure", "ok let's do it", "why not".
Anything else, including questions, hesitation or a change of topic, is not an acceptance.

Return only JSON:
{"confirmed": true | false}

User reply: %q
`

func buildThemePrompt(catalog *tools.Catalog, text string) string {
	var b strings.Builder
	for _, c := range catalog.Categories() {
		fmt.Fprintf(&b, "- %q -> Game: %q\n", c.Label, c.Game)
	}
	return fmt.Sprintf(themePromptTemplate, b.String(), text)
}

func buildConfirmationPrompt(catalog *tools.Catalog, pending domain.PendingSuggestion, text string) string {
	target := catalog.DisplayName(pending)
	switch pending.Kind {
	case domain.KindGame:
		target = fmt.Sprintf("the game %q", target)
	default:
		target = fmt.Sprintf("the %q tool", target)
	}
	return fmt.Sprintf(confirmationPromptTemplate, target, text)
}
