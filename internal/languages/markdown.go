package languages

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/skelly-dev/graphloom/internal/parser"
)

// MarkdownParser splits markdown documents into heading-delimited sections.
// It is safe for concurrent use.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (m *MarkdownParser) Language() string {
	return "markdown"
}

func (m *MarkdownParser) Extensions() []string {
	return []string{".md", ".mdx", ".markdown"}
}

// Parse returns one section per heading. A section runs from its heading
// to the line before the next heading of any level; text before the first
// heading belongs to no section. The title is the first level-1 heading,
// else the first heading.
func (m *MarkdownParser) Parse(filename string, content []byte) (*parser.FileRecord, error) {
	doc := m.md.Parser().Parse(text.NewReader(content))
	lines := splitLines(content)

	type heading struct {
		title string
		level int
		line  int
	}
	var headings []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		headings = append(headings, heading{
			title: headingText(h, content),
			level: h.Level,
			line:  lineOf(content, h.Lines().At(0).Start),
		})
	}

	record := &parser.FileRecord{Path: filename, Language: "markdown"}
	for i, h := range headings {
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		record.Sections = append(record.Sections, parser.Section{
			Title:     h.title,
			Level:     h.level,
			Ordinal:   i,
			StartLine: h.line,
			EndLine:   end,
			Content:   strings.Join(lines[h.line-1:end], "\n"),
		})
		if record.Title == "" && h.level == 1 {
			record.Title = h.title
		}
	}
	if record.Title == "" && len(headings) > 0 {
		record.Title = headings[0].title
	}
	return record, nil
}

// headingText concatenates the text segments of a heading's inline
// children.
func headingText(h *ast.Heading, source []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// splitLines splits content into lines without a trailing empty line.
func splitLines(content []byte) []string {
	s := strings.TrimSuffix(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lineOf returns the 1-based line of a byte offset.
func lineOf(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte{'\n'}) + 1
}
