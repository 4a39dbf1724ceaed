package build

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/refs"
	"github.com/skelly-dev/graphloom/internal/resolve"
	"github.com/skelly-dev/graphloom/internal/store"
)

// Props set on edges produced from loose mentions.
const (
	ResolvedFromIngestion = "ingestion"
	ResolvedFromDeferred  = "deferred"
)

// addReferences turns the raw references of a file into edges, ledger
// records or both.
func (r *buildRun) addReferences(ctx context.Context, f *fileState) error {
	for _, ref := range f.refs {
		var err error
		switch {
		case ref.Type == refs.TypeURL:
			r.addURL(f, ref)
		case ref.IsMention():
			err = r.addMention(ctx, f, ref)
		case !ref.IsLocal:
			r.addLibrary(f, ref)
		case isCodeImport(ref):
			err = r.addImport(ctx, f, ref)
		default:
			err = r.addLink(ctx, f, ref)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func isCodeImport(ref refs.RawReference) bool {
	if ref.Type != refs.TypeCode || !ref.IsLocal {
		return false
	}
	switch ref.Kind {
	case refs.KindLink, refs.KindMention:
		return false
	default:
		return true
	}
}

// localNames returns the names an imported symbol is bound to in the
// importing file.
func localNames(ref refs.RawReference, symbol string) []string {
	var names []string
	renamed := false
	for local, imported := range ref.Aliases {
		if imported == symbol {
			names = append(names, local)
			renamed = true
		}
	}
	if !renamed {
		names = append(names, symbol)
	}
	return dedupeAndSort(names)
}

type consumer struct {
	id      string
	symbols []string
}

// consumersOf groups the imported symbols of ref by the scopes whose bodies
// use them. Symbols no scope uses are attributed to the file.
func (r *buildRun) consumersOf(f *fileState, ref refs.RawReference) []consumer {
	var out []consumer
	index := make(map[string]int)
	add := func(id, symbol string) {
		idx, ok := index[id]
		if !ok {
			idx = len(out)
			index[id] = idx
			out = append(out, consumer{id: id})
		}
		out[idx].symbols = append(out[idx].symbols, symbol)
	}

	if len(ref.Symbols) == 0 {
		return []consumer{{id: f.id}}
	}
	for _, symbol := range ref.Symbols {
		names := localNames(ref, symbol)
		used := false
		for i := range f.scopes {
			if f.scopes[i].uses(names) {
				add(f.scopes[i].id, symbol)
				used = true
			}
		}
		if !used {
			add(f.id, symbol)
		}
	}
	return out
}

// targetNode returns the node an import of symbol from path binds to: the
// defining scope when known, else the file. known is false when the file is
// neither in this build nor in the store.
func (r *buildRun) targetNode(ctx context.Context, path, symbol string) (string, bool, error) {
	fileID, known, err := r.fileNode(ctx, path)
	if err != nil || !known {
		return "", false, err
	}
	if symbol == "" || symbol == "*" || symbol == "default" {
		return fileID, true, nil
	}
	scopes, err := r.scopesIn(ctx, path)
	if err != nil {
		return "", false, err
	}
	var named []scopeCandidate
	for _, s := range scopes {
		if s.name == symbol && s.kind != "method" {
			named = append(named, s)
		}
	}
	if c, ok := pickScope(named); ok {
		return c.id, true, nil
	}
	return fileID, true, nil
}

// scopesIn returns the scopes of a file, from this build when the file is
// part of it, else from the store.
func (r *buildRun) scopesIn(ctx context.Context, path string) ([]scopeCandidate, error) {
	path = filepath.Clean(path)
	if f, ok := r.byPath[path]; ok {
		out := make([]scopeCandidate, len(f.scopes))
		for i, s := range f.scopes {
			out[i] = candidateOf(s)
		}
		return out, nil
	}
	if cached, ok := r.storeScope[path]; ok {
		return cached, nil
	}
	var out []scopeCandidate
	if r.b.config.Reader != nil {
		entries, err := r.b.config.Reader.ScopesInFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("look up scopes in %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Stale {
				continue
			}
			out = append(out, scopeCandidate{id: e.ID, name: e.Name, kind: e.Kind, line: e.StartLine, topLevel: true})
		}
	}
	r.storeScope[path] = out
	return out, nil
}

// addImport links the consuming scopes of a local code import to the
// definitions it imports.
func (r *buildRun) addImport(ctx context.Context, f *fileState, ref refs.RawReference) error {
	consumers := r.consumersOf(f, ref)

	module, ok := r.imports.ResolveModule(ref.Source, f.path)
	if !ok {
		candidate := resolve.CandidatePath(ref.Source, f.path, r.project.Root)
		relation := resolve.RelationForPath(candidate)
		for _, c := range consumers {
			r.deferReference(f, c.id, ref, candidate, relation, c.symbols)
		}
		return nil
	}

	if len(ref.Symbols) == 0 {
		return r.bindImport(ctx, f, ref, f.id, module, "")
	}
	for _, c := range consumers {
		for _, symbol := range c.symbols {
			target, ok := r.imports.ResolveSymbol(ref.Source, f.path, symbol)
			if !ok {
				target = resolve.Target{Path: module, Symbol: symbol}
			}
			if err := r.bindImport(ctx, f, ref, c.id, target.Path, target.Symbol); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *buildRun) bindImport(ctx context.Context, f *fileState, ref refs.RawReference, sourceID, path, symbol string) error {
	targetID, known, err := r.targetNode(ctx, path, symbol)
	if err != nil {
		return err
	}
	if !known {
		var symbols []string
		if symbol != "" {
			symbols = []string{symbol}
		}
		r.deferReference(f, sourceID, ref, filepath.Clean(path), graph.RelConsumes, symbols)
		return nil
	}
	if targetID == sourceID {
		return nil
	}
	props := graph.Properties{"line": ref.Line, "scope": "import", "source": ref.Source}
	if symbol != "" {
		props["symbol"] = symbol
	}
	r.batch.AddRelationship(graph.Relationship{Type: graph.RelConsumes, FromID: sourceID, ToID: targetID, Properties: props})
	return nil
}

// addLink resolves a local link or asset reference exactly.
func (r *buildRun) addLink(ctx context.Context, f *fileState, ref refs.RawReference) error {
	sourceID := r.sourceFor(f, ref.Line)
	resolved := r.b.resolver.Resolve(ref, f.path, r.project.Root)
	if resolved == nil {
		candidate := resolve.CandidatePath(ref.Source, f.path, r.project.Root)
		r.deferReference(f, sourceID, ref, candidate, resolve.RelationForPath(candidate), nil)
		return nil
	}
	targetID, known, err := r.fileNode(ctx, resolved.AbsolutePath)
	if err != nil {
		return err
	}
	if !known {
		r.deferReference(f, sourceID, ref, resolved.AbsolutePath, resolved.RelationType, nil)
		return nil
	}
	if targetID == f.id {
		return nil
	}
	r.batch.AddRelationship(graph.Relationship{
		Type:       resolved.RelationType,
		FromID:     sourceID,
		ToID:       targetID,
		Properties: graph.Properties{"line": ref.Line, "target": ref.Source},
	})
	return nil
}

// addURL adds an ExternalURL node and a LINKS_TO edge.
func (r *buildRun) addURL(f *fileState, ref refs.RawReference) {
	link := ref.URL
	if link == "" {
		link = ref.Source
	}
	host := ""
	if u, err := url.Parse(link); err == nil {
		host = u.Hostname()
	}
	id := r.b.config.Identity.URLID(r.project.ID, link)
	r.batch.AddNode(graph.Node{
		Labels:     []string{graph.LabelExternalURL},
		ID:         id,
		Properties: graph.URLProps{URL: link, Host: host, ProjectID: r.project.ID}.Properties(),
	})
	r.batch.AddRelationship(graph.Relationship{
		Type:       graph.RelLinksTo,
		FromID:     r.sourceFor(f, ref.Line),
		ToID:       id,
		Properties: graph.Properties{"line": ref.Line},
	})
}

// addLibrary adds an ExternalLibrary node and one USES_LIBRARY edge per
// imported symbol.
func (r *buildRun) addLibrary(f *fileState, ref refs.RawReference) {
	name := libraryName(ref.Source, f.format == refs.FormatPython)
	if name == "" {
		return
	}
	id := r.b.config.Identity.LibraryID(r.project.ID, name)
	r.batch.AddNode(graph.Node{
		Labels:     []string{graph.LabelExternalLibrary},
		ID:         id,
		Properties: graph.LibraryProps{Name: name, ProjectID: r.project.ID}.Properties(),
	})
	symbols := ref.Symbols
	if len(symbols) == 0 {
		symbols = []string{"*"}
	}
	for _, symbol := range symbols {
		r.batch.AddRelationship(graph.Relationship{
			Type:          graph.RelUsesLibrary,
			FromID:        f.id,
			ToID:          id,
			Discriminator: "symbol",
			Properties:    graph.Properties{"symbol": symbol, "source": ref.Source},
		})
	}
}

// addMention resolves a loose mention against known files, deferring it to
// the ledger when nothing matches.
func (r *buildRun) addMention(ctx context.Context, f *fileState, ref refs.RawReference) error {
	candidates, err := r.fileCandidates(ctx)
	if err != nil {
		return err
	}
	sourceID := r.sourceFor(f, ref.Line)
	if match, ok := r.b.fuzzy.Match(ref.Source, candidates); ok {
		if match.ID == f.id {
			return nil
		}
		r.batch.AddRelationship(graph.Relationship{
			Type:       graph.RelMentionsFile,
			FromID:     sourceID,
			ToID:       match.ID,
			Properties: MentionProps(ref.Source, ref.Line, ref.Confidence, match, r.b.config.Scoring, ResolvedFromIngestion),
		})
		return nil
	}
	r.mentions = append(r.mentions, store.MentionRecord{
		SourceID:   sourceID,
		ProjectID:  r.project.ID,
		SourceFile: f.path,
		Text:       ref.Source,
		RefType:    string(ref.Type),
		Line:       ref.Line,
		Context:    ref.Context,
		Confidence: ref.Confidence,
		CreatedAt:  r.now,
	})
	return nil
}

// MentionProps renders the properties of a resolved MENTIONS_FILE edge.
func MentionProps(text string, line int, extraction float64, match resolve.FuzzyMatchResult, scoring resolve.ScoringPolicy, from string) graph.Properties {
	if scoring == nil {
		scoring = resolve.ProductScoring
	}
	return graph.Properties{
		"text":         text,
		"line":         line,
		"resolved":     true,
		"matchType":    string(match.MatchType),
		"matchScore":   match.Score,
		"confidence":   scoring(extraction, match.Score),
		"resolvedFrom": from,
	}
}

// libraryName reduces an import specifier to its package: the scope and
// name of an npm package, or the top-level module of a dotted Python path.
func libraryName(source string, python bool) string {
	source = strings.TrimPrefix(strings.TrimSpace(source), "~")
	if source == "" {
		return ""
	}
	if strings.HasPrefix(source, "@") {
		parts := strings.SplitN(source, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return source
	}
	if idx := strings.Index(source, "/"); idx > 0 {
		return source[:idx]
	}
	if idx := strings.Index(source, "."); python && idx > 0 {
		return source[:idx]
	}
	return source
}
