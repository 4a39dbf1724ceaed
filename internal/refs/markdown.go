package refs

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// extractMarkdown collects links, images, autolinks and reference
// definitions from the markdown AST.
func extractMarkdown(c *collector, source []byte) {
	lines := newLineIndex(string(source))
	ctx := parser.NewContext()
	doc := markdown.Parser().Parse(text.NewReader(source), parser.WithContext(ctx))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			c.add(linkReference(string(node.Destination), false, lines.line(nodeOffset(node))))
		case *ast.Image:
			c.add(linkReference(string(node.Destination), true, lines.line(nodeOffset(node))))
		case *ast.AutoLink:
			if node.AutoLinkType == ast.AutoLinkURL {
				c.add(linkReference(string(node.URL(source)), false, lines.line(nodeOffset(node))))
			}
		}
		return ast.WalkContinue, nil
	})

	for _, def := range ctx.References() {
		c.add(linkReference(string(def.Destination()), false, 0))
	}
}

// linkReference classifies a link destination. Anchors and non-web schemes
// produce an empty reference, which the collector drops.
func linkReference(dest string, image bool, line int) RawReference {
	dest = strings.TrimSpace(dest)
	if isWebURL(dest) {
		return RawReference{Source: dest, URL: dest, Type: TypeURL, Kind: KindLink, Line: line, Confidence: 1.0}
	}
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "//") || hasScheme(dest) {
		return RawReference{}
	}
	target := stripFragment(dest)
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	ref := RawReference{
		Source:     target,
		Kind:       KindLink,
		Line:       line,
		IsLocal:    true,
		Confidence: 1.0,
		Type:       TypeDocument,
	}
	if ext := path.Ext(target); ext != "" {
		ref.Type = TypeForExtension(ext)
	}
	if image {
		ref.Type = TypeAsset
	}
	return ref
}

// nodeOffset finds the byte offset of an inline node: its first text
// segment, else the first line of the nearest enclosing block.
func nodeOffset(n ast.Node) int {
	for child := n.FirstChild(); child != nil; child = child.FirstChild() {
		if t, ok := child.(*ast.Text); ok {
			return t.Segment.Start
		}
	}
	for p := n; p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock && p.Lines().Len() > 0 {
			return p.Lines().At(0).Start
		}
	}
	return 0
}
