// Package identity assigns stable graph ids and change-detection hashes.
//
// Ids are pure functions of a file path and a stable signature; they never
// depend on body text, time or randomness. Change detection uses a separate
// content hash computed from the body alone.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/skelly-dev/graphloom/internal/parser"
)

// Strategy names how an entity kind derives its id.
type Strategy int

const (
	ByPath Strategy = iota
	BySignature
	ByContent
	ByPosition
)

func (s Strategy) String() string {
	switch s {
	case ByPath:
		return "path"
	case BySignature:
		return "signature"
	case ByContent:
		return "content"
	case ByPosition:
		return "position"
	default:
		return "unknown"
	}
}

// DefaultCacheFiles bounds how many files keep a signature cache.
const DefaultCacheFiles = 4096

// Assigner derives ids. It is safe for concurrent use.
type Assigner struct {
	cache *lru.Cache[string, *fileIDs]
}

// New creates an assigner whose signature cache holds up to size files.
func New(size int) *Assigner {
	if size <= 0 {
		size = DefaultCacheFiles
	}
	cache, _ := lru.New[string, *fileIDs](size)
	return &Assigner{cache: cache}
}

// ProjectID returns the id of a project node.
func (a *Assigner) ProjectID(project string) string {
	return hashID("project", project)
}

// DirectoryID returns the id of a directory node.
func (a *Assigner) DirectoryID(path string) string {
	return hashID("dir", path)
}

// FileID returns the id of a file node. It does not change when the file's
// content does.
func (a *Assigner) FileID(path string) string {
	return hashID("file", path)
}

// DocumentID returns the id of the MarkdownDocument parsed from a file.
func (a *Assigner) DocumentID(path string) string {
	return hashID("doc", path)
}

// SectionID returns the id of a document section, keyed by its position.
func (a *Assigner) SectionID(path string, section parser.Section) string {
	return hashID("section", path, strconv.Itoa(section.Ordinal), strconv.Itoa(section.Level))
}

// LibraryID returns the id of an external library within a project.
func (a *Assigner) LibraryID(project, name string) string {
	return hashID("library", project, name)
}

// URLID returns the id of an external URL within a project.
func (a *Assigner) URLID(project, url string) string {
	return hashID("url", project, url)
}

// ScopeID returns the id of a code scope. The id is derived from the file,
// the parent-qualified kind and name, and the whitespace-normalised
// signature. Bindings are additionally salted with their start line so
// same-named locals do not collide.
func (a *Assigner) ScopeID(path string, scope parser.Scope) string {
	key := SignatureKey(scope)
	ids := a.forFile(path)
	if id, ok := ids.get(key); ok {
		return id
	}
	id := hashID("scope", path, key)
	ids.put(key, id)
	return id
}

// Forget drops the cached ids of a file, e.g. after it was deleted.
func (a *Assigner) Forget(path string) {
	a.cache.Remove(path)
}

func (a *Assigner) forFile(path string) *fileIDs {
	if ids, ok := a.cache.Get(path); ok {
		return ids
	}
	ids := &fileIDs{ids: make(map[string]string)}
	if prev, ok, _ := a.cache.PeekOrAdd(path, ids); ok {
		return prev
	}
	return ids
}

// SignatureKey renders the stable signature a scope id is hashed from.
func SignatureKey(scope parser.Scope) string {
	var b strings.Builder
	b.WriteString(scope.Kind.String())
	b.WriteByte(':')
	b.WriteString(scope.QualifiedName())
	if sig := NormalizeSignature(scope.Signature); sig != "" {
		b.WriteByte('|')
		b.WriteString(sig)
	}
	if scope.Kind.IsBinding() {
		fmt.Fprintf(&b, "@%d", scope.StartLine)
	}
	return b.String()
}

// NormalizeSignature collapses runs of whitespace so reformatting a
// declaration does not change its id.
func NormalizeSignature(signature string) string {
	return strings.Join(strings.Fields(signature), " ")
}

// ContentHash returns the change-detection hash of a body. Line endings are
// normalised and trailing whitespace is ignored.
func ContentHash(body string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(NormalizeBody(body)))
}

// NormalizeBody converts CRLF to LF and strips trailing whitespace per line
// and at the end of the text.
func NormalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func hashID(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
