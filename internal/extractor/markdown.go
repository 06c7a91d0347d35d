package extractor

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// ExtractMarkdown renders markdown to plain text: markup is dropped, block
// boundaries become newlines. If the AST yields nothing the raw text is used.
func ExtractMarkdown(data []byte) (string, error) {
	raw, err := ExtractTXT(data)
	if err != nil {
		return "", err
	}

	src := []byte(raw)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	walkErr := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && !endsWithNewline(&b) {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("failed to walk markdown: %w", walkErr)
	}

	if plain := cleanText(b.String()); plain != "" {
		return plain, nil
	}
	return raw, nil
}

func endsWithNewline(b *strings.Builder) bool {
	s := b.String()
	return s == "" || strings.HasSuffix(s, "\n")
}
