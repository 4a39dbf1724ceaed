package refs

import (
	"regexp"
	"strings"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>(.*?)</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style>`)
	frontmatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---`)
)

// extractEmbedded handles single-file component formats (vue, svelte,
// astro). Script blocks and astro frontmatter go through the code
// extractor, style blocks through the CSS extractor, each shifted to its
// position in the file. The remaining template goes through the HTML
// extractor.
func extractEmbedded(c *collector, text string) {
	lines := newLineIndex(text)
	template := []byte(text)

	section := func(m []int, extract func(*collector, string, int)) {
		body := text[m[2]:m[3]]
		extract(c, body, lines.line(m[2])-1)
		blank(template, m[0], m[1])
	}

	if m := frontmatterRe.FindStringSubmatchIndex(text); m != nil {
		section(m, extractCode)
	}
	for _, m := range scriptBlockRe.FindAllStringSubmatchIndex(text, -1) {
		if src := scriptSrc(text[m[0]:m[2]]); src != "" {
			c.add(htmlReference(src, TypeCode, lines.line(m[0])))
		}
		section(m, extractCode)
	}
	for _, m := range styleBlockRe.FindAllStringSubmatchIndex(text, -1) {
		section(m, extractCSS)
	}

	extractHTML(c, string(template), 0)
}

var scriptSrcRe = regexp.MustCompile(`(?i)\bsrc\s*=\s*['"]([^'"]+)['"]`)

func scriptSrc(openTag string) string {
	if m := scriptSrcRe.FindStringSubmatch(openTag); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// blank replaces a region with spaces, keeping newlines so later line
// numbers stay correct.
func blank(buf []byte, start, end int) {
	for i := start; i < end; i++ {
		if buf[i] != '\n' {
			buf[i] = ' '
		}
	}
}
