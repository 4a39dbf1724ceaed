package refs

import (
	"sort"
	"strings"
)

// Extract returns the references found in content of the given format,
// deduplicated by (type, source) with the first occurrence kept.
func Extract(content []byte, format Format) (out []RawReference) {
	c := &collector{}
	defer func() {
		if recover() != nil {
			out = c.result()
		}
	}()

	text := string(content)
	switch format {
	case FormatCode:
		extractCode(c, text, 0)
	case FormatPython:
		extractPython(c, text, 0)
	case FormatMarkdown:
		extractMarkdown(c, content)
		extractGeneric(c, text, 0)
	case FormatCSS:
		extractCSS(c, text, 0)
	case FormatHTML:
		extractHTML(c, text, 0)
	case FormatEmbedded:
		extractEmbedded(c, text)
	case FormatBinary:
	default:
		extractGeneric(c, text, 0)
	}
	return c.result()
}

// ExtractFile classifies path and extracts its references.
func ExtractFile(path string, content []byte) []RawReference {
	return Extract(content, Classify(path))
}

type collector struct {
	refs []RawReference
}

func (c *collector) add(ref RawReference) {
	ref.Source = strings.TrimSpace(ref.Source)
	if ref.Source == "" {
		return
	}
	c.refs = append(c.refs, ref)
}

func (c *collector) result() []RawReference {
	seen := make(map[string]bool, len(c.refs))
	out := make([]RawReference, 0, len(c.refs))
	for _, ref := range c.refs {
		key := string(ref.Type) + "|" + ref.Source
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(text string) lineIndex {
	idx := lineIndex{}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			idx = append(idx, i)
		}
	}
	return idx
}

func (l lineIndex) line(offset int) int {
	return sort.SearchInts(l, offset) + 1
}

func isLocalPath(source string) bool {
	return strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../") ||
		strings.HasPrefix(source, "/") || source == "." || source == ".."
}

func hasScheme(source string) bool {
	idx := strings.Index(source, ":")
	if idx <= 0 {
		return false
	}
	for _, ch := range source[:idx] {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '+' || ch == '-' || ch == '.') {
			return false
		}
	}
	return true
}

func isWebURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// stripFragment drops a trailing #fragment or ?query from a link target.
func stripFragment(source string) string {
	if idx := strings.IndexAny(source, "#?"); idx >= 0 {
		return source[:idx]
	}
	return source
}
