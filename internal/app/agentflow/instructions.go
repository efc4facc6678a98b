package agentflow

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

// Per-turn notes are prepended to the user's text. They end with a space so
// the parts concatenate directly.
const clarifyInstruction = "[SYSTEM: The user's input is unclear or vague. Do NOT give advice yet. " +
	"Ask a clarifying question to find out whether they are navigating a specific scenario, " +
	"dealing with a complex situation or relationship, or feeling a strong emotion. " +
	"Your goal is to understand them before helping.] "

var themeLeads = map[domain.Theme]string{
	domain.ThemeSpecificity: "The user describes a specific scenario.",
	domain.ThemeComplexity:  "The user describes a complex situation.",
}

var toolPurposes = map[domain.TargetMode]string{
	domain.TargetVisualizer: "to map it out",
	domain.TargetMindMap:    "to organize their thoughts",
}

const askToConfirm = " Ask whether they would like to open it now, and wait for their answer."

func proposeInstruction(catalog *tools.Catalog, p domain.PendingSuggestion) string {
	var b strings.Builder
	b.WriteString("[SYSTEM: ")

	switch p.Kind {
	case domain.KindGame:
		fmt.Fprintf(&b, "The user expresses a simple but strong emotion. Suggest they play '%s' in the Games menu to help regulate this emotion.", p.Target)
	default:
		mode := domain.TargetMode(p.Target)
		name := catalog.DisplayName(p)
		if t, ok := catalog.ToolForMode(mode); ok {
			if lead, ok := themeLeads[t.Theme]; ok {
				b.WriteString(lead + " ")
			}
		}
		fmt.Fprintf(&b, "Suggest they use the '%s' tool in the sidebar", name)
		if purpose, ok := toolPurposes[mode]; ok {
			b.WriteString(" " + purpose)
		}
		b.WriteString(".")
	}

	b.WriteString(askToConfirm)
	b.WriteString("] ")
	return b.String()
}

func acknowledgeInstruction(catalog *tools.Catalog, p domain.PendingSuggestion) string {
	return fmt.Sprintf("[SYSTEM: The user accepted and '%s' is now open. "+
		"Acknowledge it briefly and encourage them to give it a try. "+
		"Remind them it is a small aid, not a fix.] ", catalog.DisplayName(p))
}

// ContextPrefix tells the model which view the user is looking at.
// "mind_map" becomes `[User is currently in "Mind Map" view] `.
// Casers are stateful, so each call builds its own.
func ContextPrefix(mode domain.SidebarMode) string {
	label := strings.TrimSpace(strings.ReplaceAll(string(mode), "_", " "))
	if label == "" {
		return ""
	}
	return `[User is currently in "` + cases.Title(language.Und, cases.NoLower).String(label) + `" view] `
}
