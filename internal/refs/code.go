package refs

import (
	"path"
	"regexp"
	"strings"
)

var (
	importFromRe = regexp.MustCompile(`\bimport\s+(type\s+)?([^'";]*?)\s+from\s*['"]([^'"\n]+)['"]`)
	sideEffectRe = regexp.MustCompile(`(?m)^\s*import\s*['"]([^'"\n]+)['"]`)
	dynamicRe    = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
	requireRe    = regexp.MustCompile(`(?:\b(?:const|let|var)\s+([^=;]+?)\s*=\s*)?\brequire\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
	reexportRe   = regexp.MustCompile(`\bexport\s+(type\s+)?\{([^}]*)\}\s*from\s*['"]([^'"\n]+)['"]`)
	exportStarRe = regexp.MustCompile(`\bexport\s+\*\s*(?:as\s+([\w$]+)\s*)?from\s*['"]([^'"\n]+)['"]`)
)

// extractCode handles the TS/JS family: static, dynamic and require imports
// plus re-exports.
func extractCode(c *collector, text string, lineOffset int) {
	lines := newLineIndex(text)
	add := func(offset int, source string, kind ImportKind, symbols []string, aliases map[string]string) {
		c.add(codeReference(source, kind, symbols, aliases, lines.line(offset)+lineOffset))
	}

	for _, m := range importFromRe.FindAllStringSubmatchIndex(text, -1) {
		clause := text[m[4]:m[5]]
		symbols, aliases := parseImportClause(clause)
		add(m[0], text[m[6]:m[7]], KindImport, symbols, aliases)
	}
	for _, m := range sideEffectRe.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], text[m[2]:m[3]], KindSideEffect, nil, nil)
	}
	for _, m := range dynamicRe.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], text[m[2]:m[3]], KindDynamic, nil, nil)
	}
	for _, m := range requireRe.FindAllStringSubmatchIndex(text, -1) {
		var symbols []string
		var aliases map[string]string
		if m[2] >= 0 {
			symbols, aliases = parseRequireBinding(text[m[2]:m[3]])
		}
		add(m[0], text[m[4]:m[5]], KindRequire, symbols, aliases)
	}
	for _, m := range reexportRe.FindAllStringSubmatchIndex(text, -1) {
		symbols, aliases := parseNamedMembers(text[m[4]:m[5]], true)
		add(m[0], text[m[6]:m[7]], KindReexport, symbols, aliases)
	}
	for _, m := range exportStarRe.FindAllStringSubmatchIndex(text, -1) {
		var aliases map[string]string
		if m[2] >= 0 {
			aliases = map[string]string{text[m[2]:m[3]]: "*"}
		}
		add(m[0], text[m[4]:m[5]], KindExportStar, []string{"*"}, aliases)
	}
}

func codeReference(source string, kind ImportKind, symbols []string, aliases map[string]string, line int) RawReference {
	ref := RawReference{
		Source:  source,
		Symbols: symbols,
		Aliases: aliases,
		Kind:    kind,
		Line:    line,
		IsLocal: isLocalPath(source),
		Type:    TypeExternal,
	}
	if ref.IsLocal {
		ref.Type = TypeForExtension(path.Ext(source))
	}
	return ref
}

// parseImportClause splits `Def, { a as b, type C }` or `* as ns` into the
// imported names and a local -> imported alias map.
func parseImportClause(clause string) ([]string, map[string]string) {
	symbols := make([]string, 0)
	aliases := make(map[string]string)
	for _, part := range splitTopLevelCSV(clause) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") {
			names, named := parseNamedMembers(strings.Trim(part, "{} \n\t"), false)
			symbols = append(symbols, names...)
			for local, imported := range named {
				aliases[local] = imported
			}
			continue
		}
		part = strings.TrimSpace(strings.TrimPrefix(part, "type "))
		if strings.HasPrefix(part, "*") {
			_, alias := splitAliasByAs(part)
			symbols = append(symbols, "*")
			if alias != "" {
				aliases[alias] = "*"
			}
			continue
		}
		symbols = append(symbols, "default")
		aliases[part] = "default"
	}
	if len(aliases) == 0 {
		aliases = nil
	}
	return symbols, aliases
}

// parseNamedMembers parses `a, b as c, type D`. For re-exports the alias is
// the name exported onwards, so it maps the other way round.
func parseNamedMembers(raw string, reexport bool) ([]string, map[string]string) {
	symbols := make([]string, 0)
	aliases := make(map[string]string)
	for _, member := range splitTopLevelCSV(raw) {
		member = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(member), "type "))
		if member == "" {
			continue
		}
		base, alias := splitAliasByAs(member)
		if base == "" {
			continue
		}
		symbols = append(symbols, base)
		if alias != "" && alias != base {
			aliases[alias] = base
		}
	}
	if len(aliases) == 0 {
		aliases = nil
	}
	return symbols, aliases
}

// parseRequireBinding handles `x = require(...)` and `{ a, b: c } = require(...)`.
func parseRequireBinding(binding string) ([]string, map[string]string) {
	binding = strings.TrimSpace(binding)
	if !strings.HasPrefix(binding, "{") {
		return []string{"default"}, map[string]string{binding: "default"}
	}
	symbols := make([]string, 0)
	aliases := make(map[string]string)
	for _, member := range splitTopLevelCSV(strings.Trim(binding, "{} \n\t")) {
		base, local, found := strings.Cut(member, ":")
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		symbols = append(symbols, base)
		if local = strings.TrimSpace(local); found && local != "" && local != base {
			aliases[local] = base
		}
	}
	if len(aliases) == 0 {
		aliases = nil
	}
	return symbols, aliases
}

func splitAliasByAs(raw string) (base string, alias string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	parts := strings.Fields(raw)
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == "as" {
			return strings.Join(parts[:i], " "), strings.Join(parts[i+1:], " ")
		}
	}
	return raw, ""
}

func splitTopLevelCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := make([]string, 0)
	depth := 0
	start := 0
	for i, ch := range raw {
		switch ch {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(raw[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(raw[start:]))
	return parts
}
