package domain

// Theme is the label produced by the side-channel classifier.
type Theme string

const (
	// ThemeNone signals a failed classification. It never drives a transition.
	ThemeNone        Theme = ""
	ThemeSpecificity Theme = "Specificity"
	ThemeComplexity  Theme = "Complexity"
	ThemeSimplicity  Theme = "Simplicity"
	ThemeUnclear     Theme = "Unclear"
)

// ParseTheme maps a raw label to a Theme. Unknown labels yield ThemeNone.
func ParseTheme(s string) Theme {
	switch Theme(s) {
	case ThemeSpecificity, ThemeComplexity, ThemeSimplicity, ThemeUnclear:
		return Theme(s)
	default:
		return ThemeNone
	}
}

// TargetMode is a tool view the host can switch to.
type TargetMode string

const (
	TargetNone          TargetMode = ""
	TargetVisualizer    TargetMode = "visualizer"
	TargetMindMap       TargetMode = "mind_map"
	TargetGameSelection TargetMode = "game_selection"
)

// ThemeClassification is the result of one theme classification call.
// TargetGame is only set for ThemeSimplicity when a game could be resolved.
type ThemeClassification struct {
	Theme      Theme
	TargetGame string
	TargetMode TargetMode
}

// SuggestionKind tells the host how to interpret a suggestion target.
type SuggestionKind string

const (
	KindMode SuggestionKind = "mode"
	KindGame SuggestionKind = "game"
)

type PendingSuggestion struct {
	Kind   SuggestionKind
	Target string
}

// SuggestionPhase is the derived position of a session in the suggestion flow.
type SuggestionPhase string

const (
	PhaseIdle                 SuggestionPhase = "idle"
	PhaseAwaitingConfirmation SuggestionPhase = "awaiting_confirmation"
	PhaseResolved             SuggestionPhase = "resolved"
)

// SuggestionState is a snapshot of the suggestion flow.
// Pending and HasActedOnTheme are never set at the same time.
type SuggestionState struct {
	HasActedOnTheme bool
	Pending         *PendingSuggestion
}

func (s SuggestionState) Phase() SuggestionPhase {
	switch {
	case s.HasActedOnTheme:
		return PhaseResolved
	case s.Pending != nil:
		return PhaseAwaitingConfirmation
	default:
		return PhaseIdle
	}
}
