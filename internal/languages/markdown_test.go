package languages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/parser"
)

func TestMarkdownSections(t *testing.T) {
	content := "Intro before headings.\n\n# Guide\n\nWelcome.\n\n## Install\n\nRun it.\n\nSetext Title\n------------\n\ntext\n"
	file, err := NewMarkdownParser().Parse("README.md", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "Guide", file.Title)
	assert.Equal(t, []parser.Section{
		{Title: "Guide", Level: 1, Ordinal: 0, StartLine: 3, EndLine: 6, Content: "# Guide\n\nWelcome.\n"},
		{Title: "Install", Level: 2, Ordinal: 1, StartLine: 7, EndLine: 10, Content: "## Install\n\nRun it.\n"},
		{Title: "Setext Title", Level: 2, Ordinal: 2, StartLine: 11, EndLine: 14, Content: "Setext Title\n------------\n\ntext"},
	}, file.Sections)
}

func TestMarkdownIgnoresHeadingsInCode(t *testing.T) {
	file, err := NewMarkdownParser().Parse("a.md", []byte("## Hello *world*\n\n```\n# not a heading\n```\n"))
	require.NoError(t, err)

	require.Len(t, file.Sections, 1)
	assert.Equal(t, "Hello world", file.Sections[0].Title)
	assert.Equal(t, "Hello world", file.Title, "falls back to the first heading")
}

func TestMarkdownWithoutHeadings(t *testing.T) {
	file, err := NewMarkdownParser().Parse("a.md", []byte("just text\n"))
	require.NoError(t, err)
	assert.Empty(t, file.Sections)
	assert.Empty(t, file.Title)
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	for ext, lang := range map[string]string{".tsx": "typescript", ".py": "python", ".md": "markdown", ".mjs": "typescript"} {
		p, ok := r.GetParserForFile("file" + ext)
		require.True(t, ok, ext)
		assert.Equal(t, lang, p.Language())
	}

	record, err := r.Parse("/p/a.js", []byte("export function a() {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "javascript", record.Language)
	require.Len(t, record.Scopes, 1)
	assert.Equal(t, "/p/a.js", record.Scopes[0].File)
	assert.True(t, record.Scopes[0].Exported)
}
