package refs

import (
	"path"
	"strings"

	"golang.org/x/net/html"
)

// extractHTML walks start tags with the x/net/html tokenizer, tracking line
// numbers from the raw bytes consumed.
func extractHTML(c *collector, text string, lineOffset int) {
	z := html.NewTokenizer(strings.NewReader(text))
	line := 1 + lineOffset
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		raw := z.Raw()
		tagLine := line
		line += strings.Count(string(raw), "\n")
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		attrs := map[string]string{}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			attrs[string(key)] = string(val)
		}

		switch string(name) {
		case "script":
			if src := attrs["src"]; src != "" {
				c.add(htmlReference(src, TypeCode, tagLine))
			}
		case "link":
			if href := attrs["href"]; href != "" {
				typ := TypeForExtension(path.Ext(stripFragment(href)))
				if strings.Contains(attrs["rel"], "stylesheet") {
					typ = TypeStylesheet
				}
				c.add(htmlReference(href, typ, tagLine))
			}
		case "img", "source", "video", "audio":
			if src := attrs["src"]; src != "" {
				c.add(htmlReference(src, TypeAsset, tagLine))
			}
		case "a":
			if href := attrs["href"]; href != "" {
				ref := linkReference(href, false, tagLine)
				ref.Confidence = 0
				c.add(ref)
			}
		}
	}
}

func htmlReference(target string, typ RefType, line int) RawReference {
	ref := linkReference(target, false, line)
	ref.Confidence = 0
	if ref.Type == TypeURL || ref.Source == "" {
		return ref
	}
	ref.Type = typ
	if typ == TypeCode {
		ref.Kind = KindImport
	}
	return ref
}
