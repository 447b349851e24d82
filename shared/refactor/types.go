// Package refactor turns a code submission into a RefactorResult.
// A model-backed path goes through llm.Dispatcher; the heuristic rule list
// is the offline backstop and never fails.
package refactor

import (
	"path/filepath"
	"strings"
)

// Rating is the maintainability grade, best to worst.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingF Rating = "F" // reserved for input that does not parse
)

func (r Rating) Valid() bool {
	switch r {
	case RatingA, RatingB, RatingC, RatingD, RatingF:
		return true
	}
	return false
}

// Smell labels emitted by the heuristic rules and the syntax gate.
const (
	SmellImperativeLoop = "Imperative Loop"
	SmellMonolith       = "God Object / Monolith"
	SmellDebugLeftovers = "Debug Leftovers"
	SmellClean          = "Clean Code"
	SmellSyntaxError    = "Syntax Error"
)

// Language is the grammar a submission is checked and rewritten against.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "typescriptreact"
)

// Preferences are the user's style switches, forwarded verbatim into the prompt.
type Preferences struct {
	UseTypescript bool   `json:"useTypescript"`
	RefactorType  string `json:"refactorType,omitempty"`
	Style         string `json:"style,omitempty"`
}

// Submission is one inbound request. It is never mutated after creation.
type Submission struct {
	Code        string      `json:"code"`
	Language    string      `json:"language,omitempty"`
	Preferences Preferences `json:"preferences"`
	// Model is an advisory route hint; unknown values are ignored.
	Model string `json:"model,omitempty"`
}

// Lang resolves the declared language tag, falling back to the preferences.
func (s Submission) Lang() Language {
	return ParseLanguage(s.Language, s.Preferences.UseTypescript)
}

// ParseLanguage maps editor language ids and short tags to a Language.
func ParseLanguage(tag string, preferTS bool) Language {
	if lang, ok := lookupLanguage(tag); ok {
		return lang
	}
	if preferTS {
		return LangTypeScript
	}
	return LangJavaScript
}

func lookupLanguage(tag string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "typescript", "ts":
		return LangTypeScript, true
	case "typescriptreact", "tsx":
		return LangTSX, true
	case "javascript", "js", "javascriptreact", "jsx", "mjs", "cjs":
		return LangJavaScript, true
	}
	return "", false
}

// Grammars lists the languages a submission may parse under. A recognised tag
// pins one grammar; untagged code may be any of them, preferred language first.
func (s Submission) Grammars() []Language {
	if lang, ok := lookupLanguage(s.Language); ok {
		return []Language{lang}
	}
	if s.Preferences.UseTypescript {
		return []Language{LangTypeScript, LangTSX, LangJavaScript}
	}
	return []Language{LangJavaScript, LangTSX, LangTypeScript}
}

// LanguageForFile infers the language from a file extension.
func LanguageForFile(name string) Language {
	return ParseLanguage(strings.TrimPrefix(filepath.Ext(name), "."), false)
}

type Metrics struct {
	ComplexityBefore      int    `json:"complexity_before"`
	ComplexityAfter       int    `json:"complexity_after"`
	MaintainabilityRating Rating `json:"maintainability_rating"`
	LinesSaved            int    `json:"lines_saved"`
}

// DefaultMetrics seed a model result before its own metrics are merged in.
var DefaultMetrics = Metrics{
	ComplexityBefore:      5,
	ComplexityAfter:       2,
	MaintainabilityRating: RatingA,
	LinesSaved:            0,
}

// Result is the single output contract. Every field is always populated.
type Result struct {
	Explanation    string  `json:"explanation"`
	SmellDetected  string  `json:"smell_detected"`
	RefactoredCode string  `json:"refactored_code"`
	Metrics        Metrics `json:"metrics"`
}

// Source records which path produced a Result.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
	SourceSyntax    Source = "syntax"
)

// Analysis is a Result together with how it was obtained.
type Analysis struct {
	Result
	Source Source `json:"source"`
	// Route is "provider/model" of the winning attempt, empty unless Source is model.
	Route string `json:"route,omitempty"`
}

// SyntaxErrorResult is returned instead of refactoring when the input does not parse.
func SyntaxErrorResult(code string, err error) Result {
	return Result{
		Explanation:    "Syntax Error Detected: " + err.Error() + ". Please fix syntax before refactoring.",
		SmellDetected:  SmellSyntaxError,
		RefactoredCode: code,
		Metrics:        Metrics{MaintainabilityRating: RatingF},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
