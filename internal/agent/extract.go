package agent

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var codeLanguages = map[string]bool{
	"python":  true,
	"python3": true,
	"py":      true,
}

var markdown = goldmark.New()

// ExtractCode returns the body of the first fenced block tagged as Python code.
// Replies without such a block are returned trimmed, as-is.
func ExtractCode(reply string) string {
	source := []byte(reply)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var code string
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		if !codeLanguages[lang] {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		code = buf.String()
		found = true
		return ast.WalkStop, nil
	})

	if !found {
		return strings.TrimSpace(reply)
	}
	return strings.TrimRight(code, "\n")
}
