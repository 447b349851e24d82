package refactor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedOutput means the model text was not the expected JSON object.
var ErrMalformedOutput = errors.New("malformed model output")

// modelOutput mirrors Result with pointers so absent keys can be told apart from zero values.
type modelOutput struct {
	Explanation    *string `json:"explanation"`
	SmellDetected  *string `json:"smell_detected"`
	RefactoredCode *string `json:"refactored_code"`
	Metrics        *struct {
		ComplexityBefore      *float64 `json:"complexity_before"`
		ComplexityAfter       *float64 `json:"complexity_after"`
		MaintainabilityRating *string  `json:"maintainability_rating"`
		LinesSaved            *float64 `json:"lines_saved"`
	} `json:"metrics"`
}

// ParseModelOutput strictly decodes model text into a fully populated Result.
// Missing fields are filled from DefaultMetrics and the original code.
func ParseModelOutput(text, original string) (Result, error) {
	raw := StripFences(text)
	if raw == "" {
		return Result{}, fmt.Errorf("%w: empty", ErrMalformedOutput)
	}
	if raw[0] != '{' {
		return Result{}, fmt.Errorf("%w: not a JSON object", ErrMalformedOutput)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var out modelOutput
	if err := dec.Decode(&out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if dec.More() {
		return Result{}, fmt.Errorf("%w: trailing data after object", ErrMalformedOutput)
	}

	r := Result{Metrics: DefaultMetrics}
	if out.Explanation != nil {
		r.Explanation = strings.TrimSpace(*out.Explanation)
	}
	if r.Explanation == "" {
		r.Explanation = "Refactoring complete."
	}
	if out.SmellDetected != nil {
		r.SmellDetected = strings.TrimSpace(*out.SmellDetected)
	}
	if r.SmellDetected == "" {
		r.SmellDetected = SmellClean
	}
	if out.RefactoredCode != nil {
		r.RefactoredCode = *out.RefactoredCode
	}
	if strings.TrimSpace(r.RefactoredCode) == "" {
		r.RefactoredCode = original
	}

	if m := out.Metrics; m != nil {
		if m.ComplexityBefore != nil {
			r.Metrics.ComplexityBefore = clamp(roundMetric(*m.ComplexityBefore), 1, 10)
		}
		if m.ComplexityAfter != nil {
			r.Metrics.ComplexityAfter = clamp(roundMetric(*m.ComplexityAfter), 1, 10)
		}
		if m.MaintainabilityRating != nil {
			if rt := Rating(strings.ToUpper(strings.TrimSpace(*m.MaintainabilityRating))); rt.Valid() && rt != RatingF {
				r.Metrics.MaintainabilityRating = rt
			}
		}
		if m.LinesSaved != nil {
			r.Metrics.LinesSaved = max(roundMetric(*m.LinesSaved), 0)
		}
	}
	return r, nil
}

// roundMetric rounds a model-reported number to the nearest int, bounded so the conversion cannot overflow.
func roundMetric(f float64) int {
	return int(math.Round(math.Max(math.Min(f, 1e9), -1e9)))
}

// StripFences removes markdown code fences a model may wrap around its answer.
func StripFences(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && (strings.HasPrefix(lines[0], "```") || strings.HasPrefix(lines[0], "~~~")) {
		lines = lines[1:]
	}
	if len(lines) > 0 && (strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") || strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "~~~")) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
