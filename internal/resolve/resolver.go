// Package resolve turns raw references into concrete target files, exactly
// through path probing or loosely through a similarity cascade.
package resolve

import (
	"path/filepath"
	"strings"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/refs"
)

// ProbeExtensions are tried, in order, for references written without an
// extension and for directory index files.
var ProbeExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".py", ".vue", ".svelte", ".astro", ".md", ".mdx"}

// transpiledSources maps a compiled-output extension to the source
// extensions it is usually built from.
var transpiledSources = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// ResolvedReference is a raw reference bound to a target file.
type ResolvedReference struct {
	refs.RawReference
	AbsolutePath string
	RelativePath string
	RelationType string
}

// Resolver resolves local references by probing candidate paths.
type Resolver struct {
	prober Prober
}

// New creates a resolver backed by prober.
func New(prober Prober) *Resolver {
	return &Resolver{prober: prober}
}

// Resolve returns the target of ref, or nil when ref is not local or no
// probe hits.
func (r *Resolver) Resolve(ref refs.RawReference, sourceFile, projectRoot string) *ResolvedReference {
	if !ref.IsLocal || ref.Type == refs.TypeURL {
		return nil
	}
	abs, ok := r.ResolvePath(ref.Source, sourceFile, projectRoot)
	if !ok {
		return nil
	}
	return &ResolvedReference{
		RawReference: ref,
		AbsolutePath: abs,
		RelativePath: RelativePath(projectRoot, abs),
		RelationType: RelationForPath(abs),
	}
}

// ResolvePath probes for the file a source specifier points at.
func (r *Resolver) ResolvePath(source, sourceFile, projectRoot string) (string, bool) {
	return r.probe(CandidatePath(source, sourceFile, projectRoot))
}

func (r *Resolver) probe(base string) (string, bool) {
	if r.prober.IsFile(base) {
		return base, true
	}

	ext := filepath.Ext(base)
	for _, alt := range transpiledSources[strings.ToLower(ext)] {
		if candidate := strings.TrimSuffix(base, ext) + alt; r.prober.IsFile(candidate) {
			return candidate, true
		}
	}

	if !isProbeExtension(ext) {
		for _, alt := range ProbeExtensions {
			if candidate := base + alt; r.prober.IsFile(candidate) {
				return candidate, true
			}
		}
	}

	for _, alt := range ProbeExtensions {
		if candidate := filepath.Join(base, "index"+alt); r.prober.IsFile(candidate) {
			return candidate, true
		}
	}
	if candidate := filepath.Join(base, "__init__.py"); r.prober.IsFile(candidate) {
		return candidate, true
	}
	return "", false
}

// CandidatePath is the unprobed absolute path a specifier names. A leading
// slash is relative to the project root, anything else to the directory of
// the referencing file.
func CandidatePath(source, sourceFile, projectRoot string) string {
	source = filepath.FromSlash(source)
	if strings.HasPrefix(source, string(filepath.Separator)) {
		return filepath.Join(projectRoot, source)
	}
	return filepath.Join(filepath.Dir(sourceFile), source)
}

// RelativePath renders abs relative to root with forward slashes.
func RelativePath(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// RelationForPath maps a target file to the relationship type a reference
// to it creates.
func RelationForPath(target string) string {
	switch refs.TypeForExtension(filepath.Ext(target)) {
	case refs.TypeAsset:
		return graph.RelReferencesAsset
	case refs.TypeDocument:
		return graph.RelReferencesDoc
	case refs.TypeStylesheet:
		return graph.RelReferencesStyle
	case refs.TypeData:
		return graph.RelReferencesData
	default:
		return graph.RelConsumes
	}
}

func isProbeExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, candidate := range ProbeExtensions {
		if candidate == ext {
			return true
		}
	}
	return false
}
