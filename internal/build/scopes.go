package build

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/parser"
	"github.com/skelly-dev/graphloom/internal/store"
)

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

var (
	extendsRe    = regexp.MustCompile(`\bextends\s+(.+?)(?:\s+implements\b|\s*\{|$)`)
	implementsRe = regexp.MustCompile(`\bimplements\s+(.+?)(?:\s*\{|$)`)
	pyBasesRe    = regexp.MustCompile(`^\s*class\s+\w+\s*\(([^)]*)\)`)
)

type scopeRef struct {
	id     string
	scope  parser.Scope
	idents map[string]bool
}

// identifiers returns the identifier tokens used in the scope body.
func (s *scopeRef) identifiers() map[string]bool {
	if s.idents == nil {
		s.idents = make(map[string]bool)
		for _, tok := range identRe.FindAllString(s.scope.Content, -1) {
			s.idents[tok] = true
		}
	}
	return s.idents
}

// uses reports whether the scope body mentions any of names.
func (s *scopeRef) uses(names []string) bool {
	idents := s.identifiers()
	for _, name := range names {
		if idents[name] {
			return true
		}
	}
	return false
}

// scopeCandidate is the lookup view shared by scopes of this build and
// scopes read back from the store.
type scopeCandidate struct {
	id       string
	name     string
	kind     string
	line     int
	topLevel bool
}

func candidateOf(s scopeRef) scopeCandidate {
	return scopeCandidate{
		id:       s.id,
		name:     s.scope.Name,
		kind:     s.scope.Kind.String(),
		line:     s.scope.StartLine,
		topLevel: s.scope.ParentName == "",
	}
}

// pickScope makes the one deterministic choice among same-named scopes:
// runtime values before type-only declarations, top-level before nested,
// then the earliest.
func pickScope(cands []scopeCandidate) (scopeCandidate, bool) {
	if len(cands) == 0 {
		return scopeCandidate{}, false
	}
	sorted := append([]scopeCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if va, vb := valueKind(a.kind), valueKind(b.kind); va != vb {
			return va
		}
		if a.topLevel != b.topLevel {
			return a.topLevel
		}
		if a.line != b.line {
			return a.line < b.line
		}
		return a.id < b.id
	})
	return sorted[0], true
}

// ScopeForSymbol picks the scope an import of symbol binds to among the
// stored scopes of a file. Methods and stale scopes are never import
// targets.
func ScopeForSymbol(entries []store.ScopeEntry, symbol string) (string, bool) {
	var named []scopeCandidate
	for _, e := range entries {
		if e.Name == symbol && e.Kind != "method" && !e.Stale {
			named = append(named, scopeCandidate{id: e.ID, name: e.Name, kind: e.Kind, line: e.StartLine, topLevel: true})
		}
	}
	c, ok := pickScope(named)
	return c.id, ok
}

func valueKind(kind string) bool {
	switch kind {
	case "function", "method", "class", "const":
		return true
	default:
		return false
	}
}

// addScopeRelationships adds HAS_PARENT and intra-file CONSUMES edges.
func (r *buildRun) addScopeRelationships(f *fileState) {
	byName := make(map[string][]int)
	for i, s := range f.scopes {
		byName[s.scope.Name] = append(byName[s.scope.Name], i)
	}

	for i := range f.scopes {
		src := &f.scopes[i]
		if parent, ok := parentOf(f.scopes, i, byName); ok {
			r.batch.AddRelationship(graph.Relationship{Type: graph.RelHasParent, FromID: src.id, ToID: parent.id})
		}

		names := make([]string, 0, len(src.identifiers()))
		for name := range src.identifiers() {
			if _, ok := byName[name]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			cands := make([]scopeCandidate, 0, len(byName[name]))
			for _, j := range byName[name] {
				target := f.scopes[j]
				if j == i || src.scope.Encloses(target.scope) {
					continue
				}
				cands = append(cands, candidateOf(target))
			}
			if target, ok := pickScope(cands); ok {
				r.batch.AddRelationship(graph.Relationship{
					Type:       graph.RelConsumes,
					FromID:     src.id,
					ToID:       target.id,
					Properties: graph.Properties{"symbol": name, "scope": "local"},
				})
			}
		}
	}
}

// parentOf finds the scope named by ParentName, preferring one whose line
// range encloses the child.
func parentOf(scopes []scopeRef, i int, byName map[string][]int) (scopeRef, bool) {
	child := scopes[i].scope
	if child.ParentName == "" {
		return scopeRef{}, false
	}
	best := -1
	for _, j := range byName[child.ParentName] {
		if j == i {
			continue
		}
		if best < 0 || (scopes[j].scope.Encloses(child) && !scopes[best].scope.Encloses(child)) {
			best = j
		}
	}
	if best < 0 {
		return scopeRef{}, false
	}
	return scopes[best], true
}

// addHeritage adds INHERITS_FROM and IMPLEMENTS edges. Parser-provided
// heritage is authoritative; otherwise the declaration header is scanned.
func (r *buildRun) addHeritage(ctx context.Context, f *fileState) error {
	for _, src := range f.scopes {
		extends, implements, authoritative := heritageNames(src.scope)
		for _, edge := range []struct {
			rel   string
			names []string
		}{
			{graph.RelInheritsFrom, extends},
			{graph.RelImplements, implements},
		} {
			for _, name := range edge.names {
				targetID, ok, err := r.resolveTypeName(ctx, f, src, name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if !authoritative && (r.batch.HasRelationship(graph.Relationship{Type: graph.RelInheritsFrom, FromID: src.id, ToID: targetID}) ||
					r.batch.HasRelationship(graph.Relationship{Type: graph.RelImplements, FromID: src.id, ToID: targetID})) {
					continue
				}
				props := graph.Properties{"name": name}
				if !authoritative {
					props["heuristic"] = true
				}
				r.batch.AddRelationship(graph.Relationship{Type: edge.rel, FromID: src.id, ToID: targetID, Properties: props})
			}
		}
	}
	return nil
}

// resolveTypeName finds the scope a heritage clause names: a declaration in
// the same file, else an imported one.
func (r *buildRun) resolveTypeName(ctx context.Context, f *fileState, src scopeRef, name string) (string, bool, error) {
	var local []scopeCandidate
	for _, s := range f.scopes {
		if s.id != src.id && s.scope.Name == name {
			local = append(local, candidateOf(s))
		}
	}
	if c, ok := pickScope(local); ok {
		return c.id, true, nil
	}

	for _, ref := range f.refs {
		if !isCodeImport(ref) {
			continue
		}
		for _, symbol := range ref.Symbols {
			if !contains(localNames(ref, symbol), name) {
				continue
			}
			target, ok := r.imports.ResolveSymbol(ref.Source, f.path, symbol)
			if !ok {
				continue
			}
			id, known, err := r.targetNode(ctx, target.Path, target.Symbol)
			if err != nil {
				return "", false, fmt.Errorf("resolve %s in %s: %w", name, f.path, err)
			}
			if known {
				return id, true, nil
			}
		}
	}
	return "", false, nil
}

// heritageNames returns the extended and implemented type names of a
// scope and whether they came from the parser.
func heritageNames(s parser.Scope) (extends, implements []string, authoritative bool) {
	if !s.Heritage.Empty() {
		return cleanTypeNames(s.Heritage.Extends), cleanTypeNames(s.Heritage.Implements), true
	}
	if s.Kind != parser.ScopeClass && s.Kind != parser.ScopeInterface {
		return nil, nil, false
	}
	header := s.Signature
	if header == "" {
		header = s.Content
		if idx := strings.IndexAny(header, "{\n"); idx >= 0 {
			header = header[:idx]
		}
	}
	if m := pyBasesRe.FindStringSubmatch(header); m != nil {
		return cleanTypeNames(splitTopLevel(m[1])), nil, false
	}
	if m := extendsRe.FindStringSubmatch(header); m != nil {
		extends = cleanTypeNames(splitTopLevel(m[1]))
	}
	if m := implementsRe.FindStringSubmatch(header); m != nil {
		implements = cleanTypeNames(splitTopLevel(m[1]))
	}
	return extends, implements, false
}

// cleanTypeNames strips generic arguments, keyword arguments and
// qualifiers, keeping the bare type name.
func cleanTypeNames(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if idx := strings.IndexAny(name, "<(["); idx >= 0 {
			name = name[:idx]
		}
		if strings.Contains(name, "=") {
			continue
		}
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		name = strings.TrimSpace(name)
		if name == "" || name == "object" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// splitTopLevel splits on commas outside of brackets.
func splitTopLevel(raw string) []string {
	var parts []string
	depth, start := 0, 0
	for i, ch := range raw {
		switch ch {
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, raw[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, raw[start:])
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
