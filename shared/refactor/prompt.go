package refactor

import (
	"encoding/json"
	"strings"
)

// SystemPrompt describes the JSON object the model must answer with.
const SystemPrompt = `You are Synapse, an expert Senior JavaScript Engineer.
- Goal: Refactor the user's code to be cleaner, more performant, and maintainable.
- Tech Stack: Use modern JavaScript (ES6+) or TypeScript based on user preference.
- Metrics: Analyze the code's Cyclomatic Complexity and Maintainability.
- Output: JSON object ONLY with keys:
  {
    "explanation": string,
    "smell_detected": string | null,
    "refactored_code": string,
    "metrics": {
        "complexity_before": number (1-10),
        "complexity_after": number (1-10),
        "maintainability_rating": string ("A","B","C","D"),
        "lines_saved": number
    }
  }
`

// BuildPrompt concatenates instructions, preferences and code into one request body.
func BuildPrompt(s Submission) string {
	prefs, _ := json.Marshal(s.Preferences)

	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\nUser Preferences: ")
	sb.Write(prefs)
	sb.WriteString("\nLanguage: ")
	sb.WriteString(string(s.Lang()))
	sb.WriteString("\n\nCODE TO REFACTOR:\n")
	sb.WriteString(s.Code)
	sb.WriteString("\n\nRespond with JSON.")
	return sb.String()
}
