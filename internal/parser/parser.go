package parser

import (
	"path/filepath"
	"sort"
	"strings"
)

// LanguageParser defines the interface each language must implement
type LanguageParser interface {
	// Language returns the language name (e.g., "typescript", "python")
	Language() string

	// Extensions returns file extensions this parser handles
	Extensions() []string

	// Parse extracts scopes (or sections, for documents) from content
	Parse(filename string, content []byte) (*FileRecord, error)
}

// Registry holds all registered language parsers
type Registry struct {
	parsers   map[string]LanguageParser // language name -> parser
	extToLang map[string]string         // extension -> language name
}

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers:   make(map[string]LanguageParser),
		extToLang: make(map[string]string),
	}
}

// Register adds a language parser to the registry
func (r *Registry) Register(p LanguageParser) {
	lang := p.Language()
	r.parsers[lang] = p
	for _, ext := range p.Extensions() {
		r.extToLang[ext] = lang
	}
}

// GetParserForFile returns the appropriate parser for a file
func (r *Registry) GetParserForFile(filename string) (LanguageParser, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	lang, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	parser, ok := r.parsers[lang]
	return parser, ok
}

// SupportedExtensions returns all supported file extensions, sorted
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Parse runs the matching parser over already-read content. Unsupported
// files return nil without error.
func (r *Registry) Parse(path string, content []byte) (*FileRecord, error) {
	parser, ok := r.GetParserForFile(path)
	if !ok {
		return nil, nil // unsupported file type, skip silently
	}

	record, err := parser.Parse(path, content)
	if err != nil {
		return nil, err
	}
	record.Path = path
	if record.Language == "" {
		record.Language = parser.Language()
	}
	for i := range record.Scopes {
		scope := &record.Scopes[i]
		scope.File = path
		scope.Modifiers = normalizeStrings(scope.Modifiers)
		scope.Decorators = normalizeStrings(scope.Decorators)
		if scope.Heritage != nil {
			scope.Heritage.Extends = normalizeStrings(scope.Heritage.Extends)
			scope.Heritage.Implements = normalizeStrings(scope.Heritage.Implements)
		}
	}
	sort.SliceStable(record.Scopes, func(i, j int) bool {
		return record.Scopes[i].StartLine < record.Scopes[j].StartLine
	})
	return record, nil
}

func normalizeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
