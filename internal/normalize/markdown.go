package normalize

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown flattens a markdown document into plain paragraphs, one per
// top-level block. Fenced code keeps its raw lines so code snippets remain
// searchable.
func Markdown(raw string) string {
	md := goldmark.New()
	source := []byte(raw)
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var paragraphs []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(source))
			}
			if block := strings.TrimSpace(code.String()); block != "" {
				paragraphs = append(paragraphs, block)
			}
		default:
			if txt := extractText(node, source); txt != "" {
				paragraphs = append(paragraphs, txt)
			}
		}
	}
	return collapse(strings.Join(paragraphs, "\n\n"))
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
