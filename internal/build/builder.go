// Package build turns parsed files and their raw references into a graph
// batch plus the references that could not be resolved yet.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/identity"
	"github.com/skelly-dev/graphloom/internal/parser"
	"github.com/skelly-dev/graphloom/internal/refs"
	"github.com/skelly-dev/graphloom/internal/resolve"
	"github.com/skelly-dev/graphloom/internal/store"
)

// ImportResolver maps import specifiers to files and symbols to the file
// that defines them.
type ImportResolver interface {
	ResolveModule(spec, currentFile string) (string, bool)
	ResolveSymbol(spec, currentFile, symbol string) (resolve.Target, bool)
}

// Project identifies the project a build belongs to.
type Project struct {
	ID   string
	Name string
	Root string
}

// FileInput is one file to build. Record is nil for files no structural
// parser understands.
type FileInput struct {
	Path    string
	Content []byte
	Record  *parser.FileRecord
}

// Result is the outcome of one build.
type Result struct {
	Batch    *graph.Batch
	Pending  []store.PendingRecord
	Mentions []store.MentionRecord
	// Sources lists every node id owned by the built files; their old
	// ledger records are superseded by this result.
	Sources []string
}

// Config configures a Builder.
type Config struct {
	Identity *identity.Assigner // Optional, a fresh assigner if nil
	Prober   resolve.Prober     // Optional, uses resolve.FSProber if nil
	Imports  ImportResolver     // Optional, built per call from Prober if nil
	// Reader enables lookups of files and scopes ingested by earlier runs.
	Reader        store.Reader
	MinSimilarity float64               // Optional, uses resolve.DefaultMinSimilarity if 0
	Scoring       resolve.ScoringPolicy // Optional, uses resolve.ProductScoring if nil
	Logger        *slog.Logger          // Optional, uses slog.Default() if nil
	Now           func() time.Time      // Optional, uses time.Now if nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Identity == nil {
		cfg.Identity = identity.New(0)
	}
	if cfg.Prober == nil {
		cfg.Prober = resolve.FSProber{}
	}
	if cfg.Scoring == nil {
		cfg.Scoring = resolve.ProductScoring
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// Builder builds batches. It holds no per-build state and is safe for
// concurrent use.
type Builder struct {
	config   Config
	resolver *resolve.Resolver
	fuzzy    *resolve.Fuzzy
	logger   *slog.Logger
}

// New creates a builder.
func New(cfg Config) *Builder {
	cfg = applyConfigDefaults(cfg)
	return &Builder{
		config:   cfg,
		resolver: resolve.New(cfg.Prober),
		fuzzy:    resolve.NewFuzzy(cfg.MinSimilarity),
		logger:   cfg.Logger,
	}
}

// Build produces the nodes and relationships of files, resolving what it
// can against the files themselves, the filesystem and the store.
func (b *Builder) Build(ctx context.Context, project Project, files []FileInput) (*Result, error) {
	r := newRun(b, project, files)

	r.addProject()
	for _, f := range r.files {
		r.addFile(f)
	}
	for _, f := range r.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.addScopeRelationships(f)
		if err := r.addHeritage(ctx, f); err != nil {
			return nil, err
		}
		if err := r.addReferences(ctx, f); err != nil {
			return nil, err
		}
	}

	result := r.result()
	b.logger.Debug("built batch",
		"project", project.ID,
		"files", len(files),
		"nodes", len(result.Batch.Nodes),
		"relationships", len(result.Batch.Relationships),
		"pending", len(result.Pending),
		"mentions", len(result.Mentions))
	return result, nil
}

type fileState struct {
	path     string
	id       string
	input    FileInput
	format   refs.Format
	language string
	refs     []refs.RawReference
	scopes   []scopeRef
	sections []sectionRef
}

type sectionRef struct {
	id      string
	section parser.Section
}

// buildRun holds the state of one Build call.
type buildRun struct {
	b         *Builder
	project   Project
	projectID string
	now       time.Time
	imports   ImportResolver

	files  []*fileState
	byPath map[string]*fileState
	batch  *graph.Batch

	pending     map[string]*store.PendingRecord
	pendingKeys []string
	mentions    []store.MentionRecord
	sources     []string

	fileIDs    map[string]string
	storeScope map[string][]scopeCandidate
	candidates []resolve.Candidate
	loadedAll  bool
}

func newRun(b *Builder, project Project, inputs []FileInput) *buildRun {
	r := &buildRun{
		b:          b,
		project:    project,
		projectID:  b.config.Identity.ProjectID(project.ID),
		now:        b.config.Now(),
		byPath:     make(map[string]*fileState, len(inputs)),
		batch:      graph.NewBatch(),
		pending:    make(map[string]*store.PendingRecord),
		fileIDs:    make(map[string]string),
		storeScope: make(map[string][]scopeCandidate),
	}

	sorted := append([]FileInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, in := range sorted {
		path := filepath.Clean(in.Path)
		if _, dup := r.byPath[path]; dup {
			continue
		}
		f := &fileState{
			path:   path,
			id:     b.config.Identity.FileID(path),
			input:  in,
			format: refs.Classify(path),
		}
		if in.Record != nil {
			f.language = in.Record.Language
		}
		if f.format != refs.FormatBinary {
			f.refs = refs.Extract(in.Content, f.format)
		}
		r.files = append(r.files, f)
		r.byPath[path] = f
	}

	r.imports = b.config.Imports
	if r.imports == nil {
		r.imports = resolve.NewImportResolver(b.resolver, project.Root, r.read)
	}
	return r
}

// read serves file contents to the import resolver, preferring the
// in-memory inputs of this build.
func (r *buildRun) read(path string) ([]byte, error) {
	if f, ok := r.byPath[filepath.Clean(path)]; ok {
		return f.input.Content, nil
	}
	return os.ReadFile(path)
}

func (r *buildRun) addProject() {
	r.batch.AddNode(graph.Node{
		Labels: []string{graph.LabelProject},
		ID:     r.projectID,
		Properties: graph.ProjectProps{
			ProjectID: r.project.ID,
			Name:      r.project.Name,
			Root:      r.project.Root,
		}.Properties(),
	})
}

func (r *buildRun) addFile(f *fileState) {
	ident := r.b.config.Identity
	ext := strings.ToLower(filepath.Ext(f.path))
	labels := fileLabels(f.format, ext)

	props := graph.FileProps{
		Path:         f.path,
		RelativePath: resolve.RelativePath(r.project.Root, f.path),
		Name:         filepath.Base(f.path),
		Extension:    ext,
		Format:       f.format.String(),
		Language:     f.language,
		ProjectID:    r.project.ID,
		ContentHash:  identity.ContentHash(string(f.input.Content)),
	}
	if hasLabel(labels, graph.LabelDocumentFile) && f.format != refs.FormatBinary && f.format != refs.FormatMarkdown {
		props.Content = string(f.input.Content)
	}
	r.batch.AddNode(graph.Node{Labels: labels, ID: f.id, Properties: props.Properties()})
	r.sources = append(r.sources, f.id)
	r.batch.AddRelationship(graph.Relationship{Type: graph.RelBelongsTo, FromID: f.id, ToID: r.projectID})
	if dirID, ok := r.addDirectories(filepath.Dir(f.path)); ok {
		r.batch.AddRelationship(graph.Relationship{Type: graph.RelInDirectory, FromID: f.id, ToID: dirID})
	}

	if f.input.Record == nil {
		return
	}
	for _, scope := range f.input.Record.Scopes {
		ref := scopeRef{id: ident.ScopeID(f.path, scope), scope: scope}
		f.scopes = append(f.scopes, ref)
		r.batch.AddNode(graph.Node{
			Labels:     []string{graph.LabelScope},
			ID:         ref.id,
			Properties: scopeProps(r.project.ID, f, scope).Properties(),
		})
		r.sources = append(r.sources, ref.id)
		r.batch.AddRelationship(graph.Relationship{
			Type:       graph.RelDefinedIn,
			FromID:     ref.id,
			ToID:       f.id,
			Properties: graph.Properties{graph.PropFileHash: props.ContentHash},
		})
	}
	r.addDocument(f)
}

// addDirectories adds the directory chain from dir up to the project root
// and returns the id of dir, or false when dir is the root.
func (r *buildRun) addDirectories(dir string) (string, bool) {
	root := filepath.Clean(r.project.Root)
	if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", false
	}
	id := r.b.config.Identity.DirectoryID(dir)
	if r.batch.HasNode(id) {
		return id, true
	}
	r.batch.AddNode(graph.Node{
		Labels: []string{graph.LabelDirectory},
		ID:     id,
		Properties: graph.DirectoryProps{
			Path:         dir,
			RelativePath: resolve.RelativePath(root, dir),
			Name:         filepath.Base(dir),
			ProjectID:    r.project.ID,
		}.Properties(),
	})
	r.batch.AddRelationship(graph.Relationship{Type: graph.RelBelongsTo, FromID: id, ToID: r.projectID})
	if parentID, ok := r.addDirectories(filepath.Dir(dir)); ok {
		r.batch.AddRelationship(graph.Relationship{Type: graph.RelInDirectory, FromID: id, ToID: parentID})
	}
	return id, true
}

func (r *buildRun) addDocument(f *fileState) {
	record := f.input.Record
	if len(record.Sections) == 0 && record.Title == "" {
		return
	}
	ident := r.b.config.Identity
	docID := ident.DocumentID(f.path)
	content := string(f.input.Content)
	r.batch.AddNode(graph.Node{
		Labels: []string{graph.LabelMarkdownDocument},
		ID:     docID,
		Properties: graph.DocumentProps{
			Title:       record.Title,
			FilePath:    f.path,
			ProjectID:   r.project.ID,
			Content:     content,
			ContentHash: identity.ContentHash(content),
		}.Properties(),
	})
	r.sources = append(r.sources, docID)
	r.batch.AddRelationship(graph.Relationship{Type: graph.RelDefinedIn, FromID: docID, ToID: f.id})

	for _, section := range record.Sections {
		ref := sectionRef{id: ident.SectionID(f.path, section), section: section}
		r.batch.AddNode(graph.Node{
			Labels: []string{graph.LabelMarkdownSection},
			ID:     ref.id,
			Properties: graph.SectionProps{
				Title:       section.Title,
				Level:       section.Level,
				Ordinal:     section.Ordinal,
				FilePath:    f.path,
				ProjectID:   r.project.ID,
				StartLine:   section.StartLine,
				EndLine:     section.EndLine,
				Content:     section.Content,
				ContentHash: identity.ContentHash(section.Content),
			}.Properties(),
		})
		r.sources = append(r.sources, ref.id)
		r.batch.AddRelationship(graph.Relationship{Type: graph.RelHasSection, FromID: docID, ToID: ref.id})

		// Nest under the nearest preceding shallower heading.
		for i := len(f.sections) - 1; i >= 0; i-- {
			if f.sections[i].section.Level < section.Level {
				r.batch.AddRelationship(graph.Relationship{Type: graph.RelHasParent, FromID: ref.id, ToID: f.sections[i].id})
				break
			}
		}
		f.sections = append(f.sections, ref)
	}
}

// sourceFor returns the node a reference on line originates from: the
// section containing it, else the file.
func (r *buildRun) sourceFor(f *fileState, line int) string {
	if line > 0 {
		for i := len(f.sections) - 1; i >= 0; i-- {
			s := f.sections[i].section
			if s.StartLine <= line && (line <= s.EndLine || s.EndLine == 0) {
				return f.sections[i].id
			}
		}
	}
	return f.id
}

// fileNode returns the id of the File node at path if it is part of this
// build or already in the store.
func (r *buildRun) fileNode(ctx context.Context, path string) (string, bool, error) {
	path = filepath.Clean(path)
	if f, ok := r.byPath[path]; ok {
		return f.id, true, nil
	}
	if id, ok := r.fileIDs[path]; ok {
		return id, id != "", nil
	}
	if r.b.config.Reader == nil {
		return "", false, nil
	}
	entry, err := r.b.config.Reader.FileByPath(ctx, r.project.ID, path)
	if errors.Is(err, store.ErrNotFound) {
		r.fileIDs[path] = ""
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("look up file %s: %w", path, err)
	}
	r.fileIDs[path] = entry.ID
	return entry.ID, true, nil
}

// fileCandidates returns every known file as a fuzzy candidate: the files of
// this build plus those already in the store.
func (r *buildRun) fileCandidates(ctx context.Context) ([]resolve.Candidate, error) {
	if r.loadedAll {
		return r.candidates, nil
	}
	seen := make(map[string]bool)
	for _, f := range r.files {
		seen[f.path] = true
		r.candidates = append(r.candidates, resolve.Candidate{
			ID:           f.id,
			Path:         f.path,
			RelativePath: resolve.RelativePath(r.project.Root, f.path),
			Name:         filepath.Base(f.path),
			Labels:       fileLabels(f.format, strings.ToLower(filepath.Ext(f.path))),
		})
	}
	if r.b.config.Reader != nil {
		entries, err := r.b.config.Reader.Files(ctx, r.project.ID)
		if err != nil {
			return nil, fmt.Errorf("load files for %s: %w", r.project.ID, err)
		}
		for _, e := range entries {
			if seen[filepath.Clean(e.Path)] {
				continue
			}
			r.candidates = append(r.candidates, resolve.Candidate{
				ID: e.ID, Path: e.Path, RelativePath: e.RelativePath, Name: e.Name, Labels: e.Labels,
			})
		}
	}
	r.loadedAll = true
	return r.candidates, nil
}

// deferReference records a pending reference, merging symbols of records
// that share an identity.
func (r *buildRun) deferReference(f *fileState, sourceID string, ref refs.RawReference, absolute, relation string, symbols []string) {
	rec := store.PendingRecord{
		SourceID:     sourceID,
		ProjectID:    r.project.ID,
		SourceFile:   f.path,
		TargetPath:   ref.Source,
		RelationType: relation,
		AbsolutePath: absolute,
		Line:         ref.Line,
		CreatedAt:    r.now,
	}
	key := rec.Key()
	if existing, ok := r.pending[key]; ok {
		existing.Symbols = dedupeAndSort(append(existing.Symbols, symbols...))
		return
	}
	rec.Symbols = dedupeAndSort(append([]string(nil), symbols...))
	r.pending[key] = &rec
	r.pendingKeys = append(r.pendingKeys, key)
}

func (r *buildRun) result() *Result {
	pending := make([]store.PendingRecord, 0, len(r.pendingKeys))
	for _, key := range r.pendingKeys {
		pending = append(pending, *r.pending[key])
	}
	return &Result{
		Batch:    r.batch,
		Pending:  pending,
		Mentions: r.mentions,
		Sources:  r.sources,
	}
}

func fileLabels(format refs.Format, ext string) []string {
	switch refs.TypeForExtension(ext) {
	case refs.TypeDocument:
		return []string{graph.LabelFile, graph.LabelDocumentFile}
	case refs.TypeAsset:
		return []string{graph.LabelFile, graph.LabelMediaFile}
	}
	if format == refs.FormatBinary {
		return []string{graph.LabelFile, graph.LabelMediaFile}
	}
	return []string{graph.LabelFile}
}

func scopeProps(projectID string, f *fileState, scope parser.Scope) graph.ScopeProps {
	return graph.ScopeProps{
		Name:        scope.Name,
		Kind:        scope.Kind.String(),
		FilePath:    f.path,
		ProjectID:   projectID,
		Language:    f.language,
		StartLine:   scope.StartLine,
		EndLine:     scope.EndLine,
		Signature:   scope.Signature,
		ParentName:  scope.ParentName,
		Content:     scope.Content,
		Exported:    scope.Exported,
		Modifiers:   parser.JoinList(scope.Modifiers),
		Decorators:  parser.JoinList(scope.Decorators),
		Generics:    parser.JoinList(scope.Generics),
		ContentHash: identity.ContentHash(scope.Content),
	}
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func dedupeAndSort(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
