package fragmenter

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Extract renders markdown down to plain text: emphasis, links and images
// reduce to their visible text, raw HTML reduces to its text content, and
// comments disappear.
func Extract(markdown string) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(gtext.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.AutoLink:
			buf.Write(t.URL(src))
		case *ast.HTMLBlock:
			writeHTMLText(&buf, blockSource(t, src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			var raw bytes.Buffer
			for i := 0; i < t.Segments.Len(); i++ {
				seg := t.Segments.At(i)
				raw.Write(seg.Value(src))
			}
			writeHTMLText(&buf, raw.Bytes())
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(blockSource(t, src))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(blockSource(t, src))
			return ast.WalkSkipChildren, nil
		default:
			if n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// Words counts whitespace-delimited tokens over the plain-text rendering.
func Words(markdown string) int {
	return len(strings.Fields(Extract(markdown)))
}

// blockSource concatenates the source lines of a block node.
func blockSource(n ast.Node, src []byte) []byte {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(src))
	}
	return b.Bytes()
}

// writeHTMLText extracts the text content of an embedded HTML snippet,
// skipping script and style elements.
func writeHTMLText(buf *bytes.Buffer, raw []byte) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				buf.WriteString(s)
				buf.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}
