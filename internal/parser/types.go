package parser

import "strings"

// ScopeKind represents the type of code scope
type ScopeKind int

const (
	ScopeFunction ScopeKind = iota
	ScopeMethod
	ScopeClass
	ScopeInterface
	ScopeTypeAlias
	ScopeEnum
	ScopeConstant
	ScopeVariable
	ScopeModule
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeFunction:
		return "function"
	case ScopeMethod:
		return "method"
	case ScopeClass:
		return "class"
	case ScopeInterface:
		return "interface"
	case ScopeTypeAlias:
		return "type"
	case ScopeEnum:
		return "enum"
	case ScopeConstant:
		return "const"
	case ScopeVariable:
		return "var"
	case ScopeModule:
		return "module"
	default:
		return "unknown"
	}
}

// ProducesValue reports whether the kind exists at runtime, as opposed to a
// type-only declaration.
func (k ScopeKind) ProducesValue() bool {
	switch k {
	case ScopeFunction, ScopeMethod, ScopeClass, ScopeConstant:
		return true
	default:
		return false
	}
}

// IsBinding reports whether the kind is a variable or constant binding.
func (k ScopeKind) IsBinding() bool {
	return k == ScopeConstant || k == ScopeVariable
}

// Heritage holds explicit extends/implements metadata when the parser has it.
type Heritage struct {
	Extends    []string
	Implements []string
}

// Empty reports whether no heritage was recorded.
func (h *Heritage) Empty() bool {
	return h == nil || (len(h.Extends) == 0 && len(h.Implements) == 0)
}

// Scope represents a named code construct (function, class, method, variable)
type Scope struct {
	Name       string
	Kind       ScopeKind
	File       string
	StartLine  int
	EndLine    int
	Content    string
	Signature  string // e.g., "function load(id: string): Promise<User>"
	ParentName string
	Parameters []string
	Modifiers  []string
	Heritage   *Heritage // nil when the language gives no heritage syntax
	Generics   []string
	Decorators []string
	Exported   bool
}

// QualifiedName returns Parent.Name, or Name for top-level scopes.
func (s Scope) QualifiedName() string {
	if s.ParentName == "" {
		return s.Name
	}
	return s.ParentName + "." + s.Name
}

// Encloses reports whether other lies within the scope's line range.
func (s Scope) Encloses(other Scope) bool {
	return s.StartLine <= other.StartLine && other.EndLine <= s.EndLine &&
		(s.StartLine != other.StartLine || s.EndLine != other.EndLine)
}

// Section is a heading-delimited region of a markdown document.
type Section struct {
	Title     string
	Level     int
	Ordinal   int
	StartLine int
	EndLine   int
	Content   string
}

// FileRecord holds everything a structural parser extracted from one file
type FileRecord struct {
	Path     string
	Language string
	Scopes   []Scope
	// Title and Sections are only set for documents.
	Title    string
	Sections []Section
}

// ParseIssue captures non-fatal parser warnings/errors encountered while scanning files.
type ParseIssue struct {
	File     string `json:"file"`
	Language string `json:"language,omitempty"`
	Severity string `json:"severity"` // warning | error
	Message  string `json:"message"`
}

// JoinList renders a string list the way it is stored on graph nodes.
func JoinList(values []string) string {
	return strings.Join(values, ",")
}
