package summarize

// Style keys select the prompt shape for the structured summary.
const (
	StyleQuickRecap = "quick_recap_action_items"
	StyleByTopic    = "organized_by_topic"
	StyleDecisions  = "decisions_next_steps"
	DefaultStyle    = StyleQuickRecap
)

var styleAliases = map[string]string{
	"quick_recap": StyleQuickRecap,
}

var stylePrompts = map[string]string{
	StyleQuickRecap: "Write a quick recap followed by concrete action items. " +
		"Bullets capture the key points; action_items are imperative tasks with owners when stated.",
	StyleByTopic: "Organize the summary by topic. Each bullet opens with the topic name " +
		"in bold-free plain text followed by what was said about it.",
	StyleDecisions: "Focus on decisions made and next steps. Bullets list the decisions; " +
		"action_items list the agreed next steps in order.",
}

// ResolveStyle maps aliases and unknown keys onto a canonical style.
func ResolveStyle(key string) string {
	if canonical, ok := styleAliases[key]; ok {
		return canonical
	}
	if _, ok := stylePrompts[key]; ok {
		return key
	}
	return DefaultStyle
}
