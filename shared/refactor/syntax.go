package refactor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// SyntaxError is the first node the parser could not fit into the grammar.
type SyntaxError struct {
	Line   int // 1-based
	Column int // 0-based, matching editor convention for tree-sitter points
	Near   string
	// Missing is set when the parser inserted a token that was absent from the input.
	Missing bool
}

func (e *SyntaxError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("Missing %s (%d:%d)", e.Near, e.Line, e.Column)
	case e.Near != "":
		return fmt.Sprintf("Unexpected token %q (%d:%d)", e.Near, e.Line, e.Column)
	}
	return fmt.Sprintf("Unexpected token (%d:%d)", e.Line, e.Column)
}

func grammar(lang Language) *sitter.Language {
	switch lang {
	case LangTypeScript:
		return typescript.GetLanguage()
	case LangTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// CheckSyntax parses code with the grammar for lang and returns a *SyntaxError
// when the tree contains error or missing nodes. Other errors come from the parser itself.
func CheckSyntax(ctx context.Context, code string, lang Language) error {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar(lang))

	source := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("parse %s: %w", lang, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	n := firstError(root)
	if n == nil {
		n = root
	}
	pt := n.StartPoint()
	se := &SyntaxError{Line: int(pt.Row) + 1, Column: int(pt.Column), Missing: n.IsMissing()}
	if se.Missing {
		se.Near = n.Type()
	} else {
		se.Near = snippet(n.Content(source))
	}
	return se
}

// CheckSyntaxAny accepts code that parses cleanly under any of langs, tried in order.
// When none of them fits, the SyntaxError from the first grammar is returned.
func CheckSyntaxAny(ctx context.Context, code string, langs ...Language) error {
	var first error
	for _, lang := range langs {
		err := CheckSyntax(ctx, code, lang)
		if err == nil {
			return nil
		}
		var se *SyntaxError
		if !errors.As(err, &se) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// firstError walks depth-first, in source order, to the earliest ERROR or MISSING node.
func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 20 {
		s = string(r[:20])
	}
	return s
}
