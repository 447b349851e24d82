package refactor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSyntaxValid(t *testing.T) {
	tests := []struct {
		name string
		lang Language
		code string
	}{
		{"loop", LangJavaScript, loopSnippet},
		{"arrow", LangJavaScript, "export const add = (a, b) => a + b;"},
		{"class", LangJavaScript, "class Cart {\n  constructor() { this.items = []; }\n}"},
		{"typed", LangTypeScript, "interface Item { price: number }\nconst total = (xs: Item[]): number => xs.length;"},
		{"jsx", LangTSX, "const Hello = ({ name }: { name: string }) => <div>{name}</div>;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, CheckSyntax(context.Background(), tt.code, tt.lang))
		})
	}
}

func TestCheckSyntaxInvalid(t *testing.T) {
	for _, code := range []string{
		"function broken( {",
		"const = ;",
		"if (x) { return 1",
	} {
		err := CheckSyntax(context.Background(), code, LangJavaScript)
		var se *SyntaxError
		require.True(t, errors.As(err, &se), "want SyntaxError for %q, got %v", code, err)
		assert.GreaterOrEqual(t, se.Line, 1)
		assert.NotEmpty(t, se.Error())
	}
}

func TestCheckSyntaxReportsLine(t *testing.T) {
	code := "const a = 1;\nconst b = 2;\nconst = 3;\n"

	var se *SyntaxError
	require.ErrorAs(t, CheckSyntax(context.Background(), code, LangJavaScript), &se)
	assert.Equal(t, 3, se.Line)
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		tag      string
		preferTS bool
		want     Language
	}{
		{"", false, LangJavaScript},
		{"", true, LangTypeScript},
		{"JavaScript", true, LangJavaScript},
		{"ts", false, LangTypeScript},
		{"typescriptreact", false, LangTSX},
		{"jsx", false, LangJavaScript},
		{"cobol", false, LangJavaScript},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLanguage(tt.tag, tt.preferTS), "tag %q", tt.tag)
	}
	assert.Equal(t, LangTSX, LanguageForFile("src/App.tsx"))
	assert.Equal(t, LangJavaScript, LanguageForFile("cart.mjs"))
}

func TestCheckSyntaxAny(t *testing.T) {
	ctx := context.Background()
	typed := "const total = (xs: number[]): number => xs.reduce((a, b) => a + b, 0);"
	jsx := "const Hello = ({ name }) => <div>{name}</div>;"

	require.Error(t, CheckSyntax(ctx, typed, LangJavaScript))
	assert.NoError(t, CheckSyntaxAny(ctx, typed, LangJavaScript, LangTSX, LangTypeScript))

	require.Error(t, CheckSyntax(ctx, jsx, LangTypeScript))
	assert.NoError(t, CheckSyntaxAny(ctx, jsx, LangTypeScript, LangTSX, LangJavaScript))

	code := "const a = 1;\nconst = 3;\n"
	var se *SyntaxError
	require.ErrorAs(t, CheckSyntaxAny(ctx, code, LangJavaScript, LangTSX, LangTypeScript), &se)
	assert.Equal(t, 2, se.Line)
}

func TestSubmissionGrammars(t *testing.T) {
	assert.Equal(t, []Language{LangJavaScript, LangTSX, LangTypeScript}, Submission{}.Grammars())
	assert.Equal(t, []Language{LangTypeScript, LangTSX, LangJavaScript},
		Submission{Preferences: Preferences{UseTypescript: true}}.Grammars())
	assert.Equal(t, []Language{LangTSX}, Submission{Language: "tsx"}.Grammars())
	assert.Equal(t, []Language{LangJavaScript}, Submission{Language: "js", Preferences: Preferences{UseTypescript: true}}.Grammars())
	assert.Len(t, Submission{Language: "cobol"}.Grammars(), 3)
}

func TestSyntaxErrorSnippetKeepsRunes(t *testing.T) {
	s := snippet(strings.Repeat("é", 30))
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, 20, utf8.RuneCountInString(s))
}
