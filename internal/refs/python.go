package refs

import (
	"regexp"
	"strings"
)

var (
	pyFromRe   = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+(\.*[\w.]*)[ \t]+import[ \t]+(\([^)]*\)|[^\n#]+)`)
	pyImportRe = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([^\n#]+)`)
)

func extractPython(c *collector, text string, lineOffset int) {
	lines := newLineIndex(text)

	for _, m := range pyFromRe.FindAllStringSubmatchIndex(text, -1) {
		module := text[m[2]:m[3]]
		names := strings.Trim(strings.TrimSpace(text[m[4]:m[5]]), "()")
		symbols, aliases := parsePythonNames(names)
		c.add(pythonReference(module, symbols, aliases, lines.line(m[0])+lineOffset))
	}
	for _, m := range pyImportRe.FindAllStringSubmatchIndex(text, -1) {
		line := lines.line(m[0]) + lineOffset
		for _, part := range strings.Split(text[m[2]:m[3]], ",") {
			module, alias := splitAliasByAs(part)
			if module == "" {
				continue
			}
			var aliases map[string]string
			if alias != "" {
				aliases = map[string]string{alias: "*"}
			}
			c.add(pythonReference(module, []string{"*"}, aliases, line))
		}
	}
}

func parsePythonNames(raw string) ([]string, map[string]string) {
	symbols := make([]string, 0)
	aliases := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "\\"))
		if part == "" {
			continue
		}
		name, alias := splitAliasByAs(part)
		symbols = append(symbols, name)
		if alias != "" && alias != name {
			aliases[alias] = name
		}
	}
	if len(aliases) == 0 {
		aliases = nil
	}
	return symbols, aliases
}

// pythonReference turns a dotted module into a reference. Relative modules
// (leading dots) become local paths: one dot is the current package, each
// further dot walks up a directory.
func pythonReference(module string, symbols []string, aliases map[string]string, line int) RawReference {
	module = strings.TrimSpace(module)
	ref := RawReference{
		Source:  module,
		Symbols: symbols,
		Aliases: aliases,
		Kind:    KindImport,
		Line:    line,
		Type:    TypeExternal,
	}
	if !strings.HasPrefix(module, ".") {
		return ref
	}

	dots := len(module) - len(strings.TrimLeft(module, "."))
	rest := strings.ReplaceAll(module[dots:], ".", "/")
	prefix := "./"
	if dots > 1 {
		prefix = strings.Repeat("../", dots-1)
	}
	source := prefix + rest
	if rest == "" {
		source = strings.TrimSuffix(prefix, "/")
		if dots == 1 {
			source = "."
		}
	}
	ref.Source = source
	ref.IsLocal = true
	ref.Type = TypeCode
	return ref
}
