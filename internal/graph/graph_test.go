package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueKeyPerLabelSet(t *testing.T) {
	assert.Equal(t, PropPath, UniqueKey([]string{LabelFile}))
	assert.Equal(t, PropPath, UniqueKey([]string{LabelDirectory}))
	assert.Equal(t, PropID, UniqueKey([]string{LabelFile, LabelMediaFile}))
	assert.Equal(t, PropID, UniqueKey([]string{LabelFile, LabelDocumentFile}))
	assert.Equal(t, PropProjectID, UniqueKey([]string{LabelProject}))
	assert.Equal(t, PropID, UniqueKey([]string{LabelScope}))
	assert.Equal(t, PropID, UniqueKey([]string{LabelMarkdownSection}))
}

func TestContentLabelPrefersMostSpecific(t *testing.T) {
	assert.Equal(t, LabelDocumentFile, ContentLabel([]string{LabelFile, LabelDocumentFile}))
	assert.Equal(t, LabelScope, ContentLabel([]string{LabelScope}))
	assert.Equal(t, "", ContentLabel([]string{LabelFile}))
	assert.False(t, IsContentBearing([]string{LabelExternalURL}))
	assert.True(t, IsContentBearing([]string{LabelMarkdownSection}))
}

func TestBatchDeduplicatesNodesAndRelationships(t *testing.T) {
	b := NewBatch()
	b.AddNode(Node{Labels: []string{LabelScope}, ID: "s1", Properties: Properties{"name": "a"}})
	b.AddNode(Node{Labels: []string{LabelScope}, ID: "s1", Properties: Properties{"kind": "function"}})
	require.Len(t, b.Nodes, 1)
	assert.Equal(t, "a", b.Nodes[0].Properties["name"])
	assert.Equal(t, "function", b.Nodes[0].Properties["kind"])
	assert.Equal(t, "s1", b.Nodes[0].Properties[PropID])

	assert.True(t, b.AddRelationship(Relationship{Type: RelConsumes, FromID: "s1", ToID: "s2"}))
	assert.False(t, b.AddRelationship(Relationship{Type: RelConsumes, FromID: "s1", ToID: "s2"}))
	assert.False(t, b.AddRelationship(Relationship{Type: RelConsumes, FromID: "s1"}))
	assert.True(t, b.HasRelationship(Relationship{Type: RelConsumes, FromID: "s1", ToID: "s2"}))
	assert.False(t, b.HasRelationship(Relationship{Type: RelConsumes, FromID: "s2", ToID: "s1"}))

	lib := Relationship{Type: RelUsesLibrary, FromID: "s1", ToID: "lib", Discriminator: "symbol"}
	first := lib
	first.Properties = Properties{"symbol": "useState"}
	second := lib
	second.Properties = Properties{"symbol": "useEffect"}
	assert.True(t, b.AddRelationship(first))
	assert.True(t, b.AddRelationship(second))
	assert.Len(t, b.Relationships, 3)

	assert.True(t, b.HasRelationship(first))
	other := lib
	other.Properties = Properties{"symbol": "useMemo"}
	assert.False(t, b.HasRelationship(other))
}

func TestGroupNodesOrdersContainersFirst(t *testing.T) {
	b := NewBatch()
	b.AddNode(Node{Labels: []string{LabelScope}, ID: "s"})
	b.AddNode(Node{Labels: []string{LabelFile}, ID: "f", Properties: Properties{PropPath: "/p/a.ts"}})
	b.AddNode(Node{Labels: []string{LabelProject}, ID: "p", Properties: Properties{PropProjectID: "p"}})
	b.AddNode(Node{Labels: []string{LabelFile, LabelMediaFile}, ID: "m"})

	groups := b.GroupNodes()
	require.Len(t, groups, 4)
	assert.Equal(t, []string{LabelProject}, groups[0].Labels)
	assert.Equal(t, []string{LabelFile}, groups[1].Labels)
	assert.Equal(t, []string{LabelFile, LabelMediaFile}, groups[2].Labels)
	assert.Equal(t, PropID, groups[2].Key)
	assert.Equal(t, []string{LabelScope}, groups[3].Labels)
	assert.Equal(t, "/p/a.ts", groups[1].Nodes[0].KeyValue())
}
