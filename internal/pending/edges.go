package pending

import (
	"context"
	"errors"
	"fmt"

	"github.com/skelly-dev/graphloom/internal/build"
	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/resolve"
	"github.com/skelly-dev/graphloom/internal/store"
)

// resolvePending finds the file a record points at: its recorded absolute
// path when that file now exists, else a fresh probe of the specifier.
func resolvePending(resolver *resolve.Resolver, prober *resolve.GraphProber, rec store.PendingRecord, root string) (string, bool) {
	if rec.AbsolutePath != "" && prober.IsFile(rec.AbsolutePath) {
		return rec.AbsolutePath, true
	}
	if rec.TargetPath == "" {
		return "", false
	}
	return resolver.ResolvePath(rec.TargetPath, rec.SourceFile, root)
}

func wantsScopes(rec store.PendingRecord) bool {
	return rec.RelationType == graph.RelConsumes && len(rec.Symbols) > 0
}

// edgeBinder turns resolved records into edges against the current graph.
// Symbols follow re-export chains to their defining file, the same way
// ingestion binds them.
type edgeBinder struct {
	reader  store.Reader
	prober  *resolve.GraphProber
	imports *resolve.ImportResolver
	scopes  map[string][]store.ScopeEntry
}

// Re-export chains are followed over the graph and the filesystem so a
// defining file that exists but is not ingested yet keeps the record
// pending instead of binding to the barrel.
func newEdgeBinder(reader store.Reader, prober *resolve.GraphProber, root string) *edgeBinder {
	chain := resolve.New(resolve.Probers{prober, resolve.FSProber{}})
	return &edgeBinder{
		reader:  reader,
		prober:  prober,
		imports: resolve.NewImportResolver(chain, root, nil),
		scopes:  make(map[string][]store.ScopeEntry),
	}
}

// edges renders the edges a record resolved to target stands for, with
// the same properties ingestion gives an edge resolved on the spot. It
// reports false while a symbol's defining file is not in the graph yet.
func (b *edgeBinder) edges(ctx context.Context, rec store.PendingRecord, target store.FileEntry) ([]graph.Relationship, bool, error) {
	if !wantsScopes(rec) {
		return []graph.Relationship{{
			Type:       rec.RelationType,
			FromID:     rec.SourceID,
			ToID:       target.ID,
			Properties: graph.Properties{"line": rec.Line, "target": rec.TargetPath},
		}}, true, nil
	}

	out := make([]graph.Relationship, 0, len(rec.Symbols))
	for _, symbol := range rec.Symbols {
		def := b.imports.ResolveSymbolIn(target.Path, symbol)
		file, ok := b.prober.File(def.Path)
		if !ok {
			return nil, false, nil
		}
		toID := file.ID
		if def.Symbol != "*" && def.Symbol != "default" {
			scopes, err := b.scopesIn(ctx, file.Path)
			if err != nil {
				return nil, false, err
			}
			if id, ok := build.ScopeForSymbol(scopes, def.Symbol); ok {
				toID = id
			}
		}
		if toID == rec.SourceID {
			continue
		}
		out = append(out, graph.Relationship{
			Type:   graph.RelConsumes,
			FromID: rec.SourceID,
			ToID:   toID,
			Properties: graph.Properties{
				"line":   rec.Line,
				"scope":  "import",
				"source": rec.TargetPath,
				"symbol": def.Symbol,
			},
		})
	}
	return out, true, nil
}

func (b *edgeBinder) scopesIn(ctx context.Context, path string) ([]store.ScopeEntry, error) {
	if cached, ok := b.scopes[path]; ok {
		return cached, nil
	}
	entries, err := b.reader.ScopesInFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("look up scopes in %s: %w", path, err)
	}
	b.scopes[path] = entries
	return entries, nil
}

// sourceCheck caches whether ledger sources still exist in the graph.
type sourceCheck struct {
	reader store.Reader
	seen   map[string]bool
}

func newSourceCheck(reader store.Reader) *sourceCheck {
	return &sourceCheck{reader: reader, seen: make(map[string]bool)}
}

func (c *sourceCheck) exists(ctx context.Context, id string) (bool, error) {
	if ok, cached := c.seen[id]; cached {
		return ok, nil
	}
	_, err := c.reader.NodeByID(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.seen[id] = false
		return false, nil
	case err != nil:
		return false, fmt.Errorf("look up source %s: %w", id, err)
	}
	c.seen[id] = true
	return true, nil
}
