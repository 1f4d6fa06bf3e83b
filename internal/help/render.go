package help

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// RenderPlain walks the goldmark AST of source and produces terminal-
// friendly plain text: headings keep their leading `#`s, list items get a
// dash, fenced/indented code keeps its literal lines, everything else is
// reflowed prose. This is a deliberately small renderer — goldmark ships
// an HTML renderer, not a terminal one, and the FAQ has no need for a full
// markdown-to-ANSI pipeline.
func RenderPlain(source []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindHeading:
			h := n.(*ast.Heading)
			if entering {
				b.WriteString(strings.Repeat("#", h.Level) + " ")
			} else {
				b.WriteString("\n\n")
			}
		case ast.KindParagraph:
			if !entering {
				b.WriteString("\n\n")
			}
		case ast.KindListItem:
			if entering {
				b.WriteString("  - ")
			} else {
				b.WriteString("\n")
			}
		case ast.KindList:
			if !entering {
				b.WriteString("\n")
			}
		case ast.KindThematicBreak:
			if entering {
				b.WriteString(strings.Repeat("-", 40) + "\n\n")
			}
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if entering {
				writeCodeLines(&b, n, source)
				b.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
		case ast.KindText:
			if entering {
				t := n.(*ast.Text)
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteString(" ")
				}
			}
		case ast.KindCodeSpan:
			if entering {
				b.WriteString("`")
			} else {
				b.WriteString("`")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(collapseBlankLines(b.String())), nil
}

// linesNode is satisfied by both *ast.FencedCodeBlock and *ast.CodeBlock.
type linesNode interface {
	Lines() *text.Segments
}

func writeCodeLines(b *strings.Builder, n ast.Node, source []byte) {
	ln, ok := n.(linesNode)
	if !ok {
		return
	}
	lines := ln.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.WriteString("    ")
		b.Write(seg.Value(source))
	}
}

// collapseBlankLines turns runs of 3+ newlines into exactly 2, so
// consecutive block-level elements don't leave ragged gaps.
func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
