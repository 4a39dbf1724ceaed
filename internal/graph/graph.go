package graph

import (
	"sort"
	"strings"
)

// Node labels. The first label of a node is its primary type.
const (
	LabelProject          = "Project"
	LabelDirectory        = "Directory"
	LabelFile             = "File"
	LabelMediaFile        = "MediaFile"
	LabelDocumentFile     = "DocumentFile"
	LabelScope            = "Scope"
	LabelMarkdownDocument = "MarkdownDocument"
	LabelMarkdownSection  = "MarkdownSection"
	LabelExternalLibrary  = "ExternalLibrary"
	LabelExternalURL      = "ExternalURL"
)

// Relationship types.
const (
	RelBelongsTo       = "BELONGS_TO"
	RelInDirectory     = "IN_DIRECTORY"
	RelDefinedIn       = "DEFINED_IN"
	RelHasParent       = "HAS_PARENT"
	RelConsumes        = "CONSUMES"
	RelInheritsFrom    = "INHERITS_FROM"
	RelImplements      = "IMPLEMENTS"
	RelUsesLibrary     = "USES_LIBRARY"
	RelHasSection      = "HAS_SECTION"
	RelReferencesAsset = "REFERENCES_ASSET"
	RelReferencesDoc   = "REFERENCES_DOC"
	RelReferencesStyle = "REFERENCES_STYLE"
	RelReferencesData  = "REFERENCES_DATA"
	RelLinksTo         = "LINKS_TO"
	RelMentionsFile    = "MENTIONS_FILE"
)

// Property names shared with the rest of the system. Renaming any of these
// requires a data migration.
const (
	PropID             = "id"
	PropPath           = "path"
	PropRelativePath   = "relativePath"
	PropProjectID      = "projectId"
	PropFilePath       = "filePath"
	PropName           = "name"
	PropCreatedAt      = "createdAt"
	PropUpdatedAt      = "updatedAt"
	PropState          = "state"
	PropStateChangedAt = "stateChangedAt"
	PropContentHash    = "contentHash"
	PropSchemaVersion  = "schemaVersion"
	// PropFileHash on a DEFINED_IN edge is the content hash of the file
	// when the edge was last built.
	PropFileHash       = "fileHash"
)

// LifecycleState tracks a content-bearing node through parse -> link -> embed.
type LifecycleState string

const (
	StateParsed           LifecycleState = "parsed"
	StateLinked           LifecycleState = "linked"
	StateEmbeddingPending LifecycleState = "embedding-pending"
)

// Rank orders states so transitions can be checked for monotonicity.
func (s LifecycleState) Rank() int {
	switch s {
	case StateParsed:
		return 1
	case StateLinked:
		return 2
	case StateEmbeddingPending:
		return 3
	default:
		return 0
	}
}

// contentLabels lists labels whose nodes carry text that may later be embedded,
// most specific first.
var contentLabels = []string{
	LabelMarkdownSection,
	LabelMarkdownDocument,
	LabelDocumentFile,
	LabelScope,
}

// ContentLabels returns the content-bearing labels, most specific first.
func ContentLabels() []string {
	return append([]string(nil), contentLabels...)
}

// Properties is the scalar property bag rendered from the per-label structs.
type Properties map[string]any

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the named property as a string, or "" when absent.
func (p Properties) String(name string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return ""
}

// Int returns the named property as an int, or 0 when absent or not a
// number. Stores decode numbers as int, int64 or float64.
func (p Properties) Int(name string) int {
	switch n := p[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Node is a labelled entity in the property graph.
type Node struct {
	Labels     []string
	ID         string
	Properties Properties
}

// PrimaryLabel returns the first label.
func (n Node) PrimaryLabel() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

// LabelSet returns the labels joined as a stable grouping key.
func (n Node) LabelSet() string {
	return strings.Join(n.Labels, ":")
}

// HasLabel reports whether the node carries label.
func (n Node) HasLabel(label string) bool {
	return hasLabel(n.Labels, label)
}

// KeyValue returns the value of the node's unique merge key.
func (n Node) KeyValue() string {
	key := UniqueKey(n.Labels)
	if key == PropID {
		return n.ID
	}
	return n.Properties.String(key)
}

// Relationship is a typed edge between two nodes matched by id.
type Relationship struct {
	Type       string
	FromID     string
	ToID       string
	Properties Properties
	// Discriminator names a property that joins the MERGE identity, so one
	// (from, to) pair can carry several edges of the same type.
	Discriminator string
}

// Identity returns the key a relationship is merged on.
func (r Relationship) Identity() string {
	key := r.Type + "|" + r.FromID + "|" + r.ToID
	if r.Discriminator != "" {
		key += "|" + r.DiscriminatorValue()
	}
	return key
}

// DiscriminatorValue returns the string value of the discriminator property.
func (r Relationship) DiscriminatorValue() string {
	if r.Discriminator == "" {
		return ""
	}
	return r.Properties.String(r.Discriminator)
}

// UniqueKey returns the property a node with the given label set is merged on.
func UniqueKey(labels []string) string {
	switch {
	case hasLabel(labels, LabelProject):
		return PropProjectID
	case hasLabel(labels, LabelMediaFile), hasLabel(labels, LabelDocumentFile):
		return PropID
	case hasLabel(labels, LabelFile), hasLabel(labels, LabelDirectory):
		return PropPath
	default:
		return PropID
	}
}

// IsContentBearing reports whether nodes with these labels hold embeddable text.
func IsContentBearing(labels []string) bool {
	return ContentLabel(labels) != ""
}

// ContentLabel returns the most specific content label present, or "".
func ContentLabel(labels []string) string {
	for _, label := range contentLabels {
		if hasLabel(labels, label) {
			return label
		}
	}
	return ""
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
