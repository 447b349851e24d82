package refactor

import "strings"

// MonolithLineThreshold is the line count above which a snippet is flagged as a monolith.
const MonolithLineThreshold = 50

// Rule is one heuristic: a predicate over the raw source and the result it produces.
type Rule struct {
	Name  string
	Match func(code string) bool
	Apply func(code string, prefs Preferences) Result
}

// Rules are evaluated in order; the first match wins.
var Rules = []Rule{
	{Name: SmellImperativeLoop, Match: matchAggregationLoop, Apply: applyAggregationLoop},
	{Name: SmellMonolith, Match: matchMonolith, Apply: applyMonolith},
	{Name: SmellDebugLeftovers, Match: matchDebugLeftovers, Apply: applyDebugLeftovers},
}

// Fallback produces a deterministic Result without any network call.
func Fallback(code string, prefs Preferences) Result {
	for _, r := range Rules {
		if r.Match(code) {
			return r.Apply(code, prefs)
		}
	}
	return applyClean(code, prefs)
}

// ── Aggregation loop ──────────────────────────────────────────────────────────

const (
	reduceTS = "interface Item { price: number; }\n\n" +
		"const calculateTotal = (items: Item[]): number => {\n" +
		"  return items.reduce((sum, item) => sum + item.price, 0);\n" +
		"};"
	reduceJS = "const calculateTotal = (items) => {\n" +
		"  return items.reduce((sum, item) => sum + item.price, 0);\n" +
		"};"
)

func matchAggregationLoop(code string) bool {
	return strings.Contains(code, "for") &&
		strings.Contains(code, "length") &&
		strings.Contains(code, "price")
}

func applyAggregationLoop(_ string, prefs Preferences) Result {
	r := Result{
		Explanation:    "Replaced imperative `for` loop with higher-order `reduce` function.",
		SmellDetected:  SmellImperativeLoop,
		RefactoredCode: reduceJS,
		Metrics:        Metrics{ComplexityBefore: 8, ComplexityAfter: 2, MaintainabilityRating: RatingA, LinesSaved: 3},
	}
	if prefs.UseTypescript {
		r.Explanation = "Refactored imperative loop to `reduce` with TypeScript interfaces."
		r.RefactoredCode = reduceTS
	}
	return r
}

// ── Monolith ──────────────────────────────────────────────────────────────────

func matchMonolith(code string) bool {
	return len(strings.Split(code, "\n")) > MonolithLineThreshold
}

func applyMonolith(code string, _ Preferences) Result {
	return Result{
		Explanation:    "Detected a large function/class. It's recommended to break this down into smaller, single-responsibility modules.",
		SmellDetected:  SmellMonolith,
		RefactoredCode: "// Suggested breakdown:\n// 1. Extract logic into helper functions...\n" + code,
		// complexity is reported unchanged: no structural rewrite happens here
		Metrics: Metrics{ComplexityBefore: 15, ComplexityAfter: 15, MaintainabilityRating: RatingC},
	}
}

// ── Debug leftovers ───────────────────────────────────────────────────────────

const debugCall = "console.log"

func matchDebugLeftovers(code string) bool {
	return strings.Contains(code, debugCall)
}

func applyDebugLeftovers(code string, _ Preferences) Result {
	lines := strings.Split(code, "\n")
	kept := lines[:0:0]
	for _, l := range lines {
		if !strings.Contains(l, debugCall) {
			kept = append(kept, l)
		}
	}
	out := strings.Join(kept, "\n")
	if strings.TrimSpace(out) == "" {
		out = "// debug statements removed"
	}
	return Result{
		Explanation:    "Removed debug statements for production readiness.",
		SmellDetected:  SmellDebugLeftovers,
		RefactoredCode: out,
		Metrics: Metrics{
			ComplexityBefore:      2,
			ComplexityAfter:       1,
			MaintainabilityRating: RatingA,
			LinesSaved:            len(lines) - len(kept),
		},
	}
}

// ── Clean ─────────────────────────────────────────────────────────────────────

func applyClean(code string, _ Preferences) Result {
	return Result{
		Explanation:    "Code structure looks solid. Added JSDoc for better documentation.",
		SmellDetected:  SmellClean,
		RefactoredCode: "/**\n * Optimized version\n */\n" + code,
		Metrics:        Metrics{ComplexityBefore: 1, ComplexityAfter: 1, MaintainabilityRating: RatingA},
	}
}
