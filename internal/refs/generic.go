package refs

import (
	"path"
	"regexp"
	"strings"
)

const (
	confidenceURL      = 1.0
	confidencePath     = 0.9
	confidenceFilename = 0.6
	maxContext         = 200
)

var (
	urlRe      = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `)\]]+`)
	pathRe     = regexp.MustCompile(`(?:\.{1,2}/)?(?:[\w@.-]+/)+[\w.-]+\.[A-Za-z0-9]{1,8}\b`)
	filenameRe = regexp.MustCompile(`\b[\w-]+(?:\.[\w-]+)*\.[A-Za-z0-9]{1,8}\b`)
	codeLineRe = regexp.MustCompile(`^\s*(?:import\b|export\b|from\s+\S+\s+import\b|const\b|let\b|var\b|function\b|class\b|def\b|return\b|require\(|#include\b|package\b|using\b|//|/\*|\*/|[{}])`)
)

// mentionExtensions limits bare-filename matches to extensions a project
// file plausibly has, so abbreviations and version numbers are skipped.
var mentionExtensions = func() map[string]bool {
	exts := map[string]bool{}
	for ext, format := range formatByExt {
		if format != FormatBinary || TypeForExtension(ext) != TypeCode {
			exts[ext] = true
		}
	}
	for _, ext := range []string{".go", ".rb", ".rs", ".java", ".kt", ".c", ".h", ".cpp", ".sh",
		".json", ".yaml", ".yml", ".toml", ".csv", ".xml", ".txt", ".rst", ".svg", ".sql"} {
		exts[ext] = true
	}
	return exts
}()

// extractGeneric sweeps arbitrary text for URLs and file-path mentions,
// skipping lines that look like code statements.
func extractGeneric(c *collector, text string, lineOffset int) {
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1 + lineOffset
		if strings.TrimSpace(line) == "" {
			continue
		}
		context := contextOf(line)

		rest := []byte(line)
		for _, m := range urlRe.FindAllStringIndex(line, -1) {
			u := strings.TrimRight(line[m[0]:m[1]], ".,;:!?")
			c.add(RawReference{Source: u, URL: u, Type: TypeURL, Kind: KindMention, Line: lineNo, Confidence: confidenceURL, Context: context})
			blank(rest, m[0], m[1])
		}
		if codeLineRe.MatchString(line) {
			continue
		}

		for _, m := range pathRe.FindAllIndex(rest, -1) {
			token := string(rest[m[0]:m[1]])
			if !mentionExtensions[strings.ToLower(path.Ext(token))] {
				continue
			}
			c.add(mentionReference(token, confidencePath, lineNo, context))
			blank(rest, m[0], m[1])
		}
		for _, m := range filenameRe.FindAllIndex(rest, -1) {
			token := string(rest[m[0]:m[1]])
			if !mentionExtensions[strings.ToLower(path.Ext(token))] {
				continue
			}
			c.add(mentionReference(token, confidenceFilename, lineNo, context))
		}
	}
}

func mentionReference(token string, confidence float64, line int, context string) RawReference {
	return RawReference{
		Source:     token,
		Type:       TypeForExtension(path.Ext(token)),
		Kind:       KindMention,
		Line:       line,
		IsLocal:    true,
		Confidence: confidence,
		Context:    context,
	}
}

func contextOf(line string) string {
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > maxContext {
		line = string(runes[:maxContext])
	}
	return line
}
