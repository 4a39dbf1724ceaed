package refs

import (
	"path"
	"regexp"
	"strings"
)

var (
	cssImportRe = regexp.MustCompile(`@import\s+(?:url\(\s*)?['"]?([^'")\s;]+)['"]?`)
	cssURLRe    = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
)

func extractCSS(c *collector, text string, lineOffset int) {
	lines := newLineIndex(text)
	for _, m := range cssImportRe.FindAllStringSubmatchIndex(text, -1) {
		ref := cssReference(text[m[2]:m[3]], lines.line(m[0])+lineOffset)
		if ref.Type != TypeURL {
			ref.Type = TypeStylesheet
		}
		c.add(ref)
	}
	for _, m := range cssURLRe.FindAllStringSubmatchIndex(text, -1) {
		c.add(cssReference(text[m[2]:m[3]], lines.line(m[0])+lineOffset))
	}
}

func cssReference(target string, line int) RawReference {
	target = strings.TrimSpace(target)
	if isWebURL(target) {
		return RawReference{Source: target, URL: target, Type: TypeURL, Kind: KindLink, Line: line, Confidence: 1.0}
	}
	if strings.HasPrefix(target, "data:") || strings.HasPrefix(target, "#") || hasScheme(target) {
		return RawReference{}
	}
	target = stripFragment(target)
	ref := RawReference{
		Source:  target,
		Kind:    KindImport,
		Line:    line,
		IsLocal: !strings.HasPrefix(target, "~") && !strings.HasPrefix(target, "//"),
		Type:    TypeForExtension(path.Ext(target)),
	}
	if ref.Type == TypeCode {
		ref.Type = TypeAsset
	}
	if !ref.IsLocal {
		ref.Type = TypeExternal
	}
	return ref
}
