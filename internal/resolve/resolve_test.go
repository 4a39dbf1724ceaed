package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/graph"
	"github.com/skelly-dev/graphloom/internal/refs"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func localRef(source string) refs.RawReference {
	return refs.RawReference{Source: source, IsLocal: true, Type: refs.TypeCode}
}

func TestResolveProbeOrder(t *testing.T) {
	root := "/p"
	prober := SetProber{
		"/p/src/exact.js":          true,
		"/p/src/compiled.ts":       true,
		"/p/src/noext.tsx":         true,
		"/p/src/noext.py":          true,
		"/p/src/lib/index.ts":      true,
		"/p/src/pkg/__init__.py":   true,
		"/p/assets/logo.png":       true,
		"/p/docs/guide.md":         true,
		"/p/src/exact.ts":          true,
		"/p/src/dotted.helpers.ts": true,
	}
	r := New(prober)
	source := "/p/src/main.ts"

	cases := map[string]string{
		"./exact.js":       "/p/src/exact.js",
		"./compiled.js":    "/p/src/compiled.ts",
		"./noext":          "/p/src/noext.tsx",
		"./lib":            "/p/src/lib/index.ts",
		"./pkg":            "/p/src/pkg/__init__.py",
		"../docs/guide.md": "/p/docs/guide.md",
		"/assets/logo.png": "/p/assets/logo.png",
		"./dotted.helpers": "/p/src/dotted.helpers.ts",
	}
	for spec, want := range cases {
		got := r.Resolve(localRef(spec), source, root)
		require.NotNil(t, got, spec)
		assert.Equal(t, want, got.AbsolutePath, spec)
	}

	assert.Nil(t, r.Resolve(localRef("./missing"), source, root))
	assert.Nil(t, r.Resolve(refs.RawReference{Source: "react", Type: refs.TypeExternal}, source, root))
}

func TestResolveRelationTaxonomy(t *testing.T) {
	assert.Equal(t, graph.RelReferencesAsset, RelationForPath("/p/a.png"))
	assert.Equal(t, graph.RelReferencesDoc, RelationForPath("/p/a.md"))
	assert.Equal(t, graph.RelReferencesStyle, RelationForPath("/p/a.scss"))
	assert.Equal(t, graph.RelReferencesData, RelationForPath("/p/a.json"))
	assert.Equal(t, graph.RelConsumes, RelationForPath("/p/a.ts"))

	r := New(SetProber{"/p/docs/a.md": true})
	got := r.Resolve(localRef("docs/a.md"), "/p/README.md", "/p")
	require.NotNil(t, got)
	assert.Equal(t, "docs/a.md", got.RelativePath)
	assert.Equal(t, graph.RelReferencesDoc, got.RelationType)
}

func TestFSProberAndImportChains(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "src", "index.ts"), "export { helper as h } from './util'\nexport * from './more'\n")
	mustWriteFile(t, filepath.Join(root, "src", "util.ts"), "export function helper() {}\n")
	mustWriteFile(t, filepath.Join(root, "src", "more", "index.ts"), "export * from './deep'\n")
	mustWriteFile(t, filepath.Join(root, "src", "more", "deep.ts"), "export const deepValue = 1\n")
	mustWriteFile(t, filepath.Join(root, "src", "loop.ts"), "export * from './loop'\n")
	main := filepath.Join(root, "src", "main.ts")

	ir := NewImportResolver(New(FSProber{}), root, nil)

	file, ok := ir.ResolveModule("./index", main)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "index.ts"), file)

	target, ok := ir.ResolveSymbol("./index", main, "h")
	require.True(t, ok)
	assert.Equal(t, Target{Path: filepath.Join(root, "src", "util.ts"), Symbol: "helper"}, target)

	target, ok = ir.ResolveSymbol(".", main, "deepValue")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "more", "deep.ts"), target.Path)

	target, ok = ir.ResolveSymbol("./loop", main, "nothing")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "loop.ts"), target.Path)

	_, ok = ir.ResolveSymbol("./absent", main, "x")
	assert.False(t, ok)
}

func TestSimilarityProperties(t *testing.T) {
	words := []string{"", "a", "utils.py", "util.py", "helpers.ts", "héllo", "README.md"}
	for _, a := range words {
		assert.Equal(t, 1.0, Similarity(a, a))
		for _, b := range words {
			assert.Equal(t, Similarity(a, b), Similarity(b, a), "%q vs %q", a, b)
			s := Similarity(a, b)
			assert.True(t, s >= 0 && s <= 1)
			if a != b {
				assert.Less(t, s, 1.0)
			}
		}
	}
	assert.InDelta(t, 1-1.0/8.0, Similarity("utils.py", "util.py"), 1e-9)
}

func candidates() []Candidate {
	return []Candidate{
		{ID: "1", Path: "/p/src/helpers/utils.py", RelativePath: "src/helpers/utils.py"},
		{ID: "2", Path: "/p/src/app/main.ts", RelativePath: "src/app/main.ts"},
		{ID: "3", Path: "/p/docs/setup.md", RelativePath: "docs/setup.md"},
		{ID: "4", Path: "/p/web/app/main.ts", RelativePath: "web/app/main.ts"},
		{ID: "5", Path: "/p/README.md", RelativePath: "README.md"},
	}
}

func TestFuzzyCascade(t *testing.T) {
	f := NewFuzzy(0)

	got, ok := f.Match("docs/setup.md", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchExact, got.MatchType)

	got, ok = f.Match("helpers/utils.py", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchEndsWith, got.MatchType)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, "1", got.ID)

	got, ok = f.Match("app/main.ts", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchEndsWith, got.MatchType)
	assert.Equal(t, 0.7, got.Score)
	assert.Equal(t, "2", got.ID)

	got, ok = f.Match("utils.py", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchFilename, got.MatchType)
	assert.Equal(t, 0.95, got.Score)
	assert.Equal(t, "utils.py", got.Name)

	got, ok = f.Match("main.ts", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchFilename, got.MatchType)
	assert.Equal(t, 0.7, got.Score)
	assert.Equal(t, "2", got.ID)

	got, ok = f.Match("util.py", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, got.MatchType)
	assert.Equal(t, "1", got.ID)
	assert.InDelta(t, 1-1.0/8.0, got.Score, 1e-9)

	got, ok = f.Match("readme.txt", candidates())
	require.True(t, ok)
	assert.Equal(t, MatchFuzzy, got.MatchType)
	assert.Equal(t, "5", got.ID)
	assert.InDelta(t, 0.9, got.Score, 1e-9)

	_, ok = f.Match("completely-unrelated.go", candidates())
	assert.False(t, ok)
}
