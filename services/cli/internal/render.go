package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/synapse-ai/synapse/shared/refactor"
)

type renderOptions struct {
	diff  bool
	color bool
}

func renderAnalysis(w io.Writer, original string, lang refactor.Language, a refactor.Analysis, opts renderOptions) error {
	m := a.Metrics
	fmt.Fprintf(w, "Smell:       %s\n", a.SmellDetected)
	fmt.Fprintf(w, "Complexity:  %d → %d\n", m.ComplexityBefore, m.ComplexityAfter)
	fmt.Fprintf(w, "Rating:      %s\n", m.MaintainabilityRating)
	fmt.Fprintf(w, "Lines saved: %d\n", m.LinesSaved)
	src := string(a.Source)
	if a.Route != "" {
		src += " (" + a.Route + ")"
	}
	fmt.Fprintf(w, "Source:      %s\n\n", src)
	fmt.Fprintf(w, "%s\n\n", a.Explanation)

	if opts.diff {
		d, err := unifiedDiff(original, a.RefactoredCode)
		if err != nil {
			return err
		}
		if d == "" {
			fmt.Fprintln(w, "(no changes)")
			return nil
		}
		return writeCode(w, d, "diff", opts.color)
	}
	return writeCode(w, a.RefactoredCode, lexerName(lang), opts.color)
}

func writeCode(w io.Writer, code, lexer string, color bool) error {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	if !color {
		_, err := io.WriteString(w, code)
		return err
	}
	return quick.Highlight(w, code, lexer, "terminal256", "dracula")
}

func lexerName(lang refactor.Language) string {
	switch lang {
	case refactor.LangTypeScript:
		return "typescript"
	case refactor.LangTSX:
		return "tsx"
	default:
		return "javascript"
	}
}

func unifiedDiff(a, b string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "original",
		ToFile:   "refactored",
		Context:  3,
	})
}
