package graph

import (
	"sort"
	"strings"
)

// Batch is a set of nodes and relationships to merge together.
type Batch struct {
	Nodes         []Node
	Relationships []Relationship

	nodeIndex map[string]int
	relIndex  map[string]int
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{
		nodeIndex: make(map[string]int),
		relIndex:  make(map[string]int),
	}
}

// AddNode appends a node. A node with an id already in the batch has its
// properties overlaid onto the earlier entry.
func (b *Batch) AddNode(n Node) {
	if b.nodeIndex == nil {
		b.nodeIndex = make(map[string]int)
	}
	if idx, ok := b.nodeIndex[n.ID]; ok {
		existing := b.Nodes[idx]
		for k, v := range n.Properties {
			existing.Properties[k] = v
		}
		return
	}
	if n.Properties == nil {
		n.Properties = Properties{}
	}
	n.Properties[PropID] = n.ID
	b.nodeIndex[n.ID] = len(b.Nodes)
	b.Nodes = append(b.Nodes, n)
}

// HasNode reports whether a node with id is in the batch.
func (b *Batch) HasNode(id string) bool {
	_, ok := b.nodeIndex[id]
	return ok
}

// AddRelationship appends a relationship unless one with the same identity
// is already present. It returns false for duplicates.
func (b *Batch) AddRelationship(r Relationship) bool {
	if b.relIndex == nil {
		b.relIndex = make(map[string]int)
	}
	if r.FromID == "" || r.ToID == "" {
		return false
	}
	key := r.Identity()
	if _, ok := b.relIndex[key]; ok {
		return false
	}
	if r.Properties == nil {
		r.Properties = Properties{}
	}
	b.relIndex[key] = len(b.Relationships)
	b.Relationships = append(b.Relationships, r)
	return true
}

// HasRelationship reports whether an edge with the identity of r is in the
// batch. Discriminated edges match only when r carries the same
// discriminator value.
func (b *Batch) HasRelationship(r Relationship) bool {
	_, ok := b.relIndex[r.Identity()]
	return ok
}

// Merge appends every node and relationship of other.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	for _, n := range other.Nodes {
		b.AddNode(n)
	}
	for _, r := range other.Relationships {
		b.AddRelationship(r)
	}
}

// NodeGroup holds the nodes sharing one exact label set.
type NodeGroup struct {
	Labels []string
	Key    string
	Nodes  []Node
}

// GroupNodes splits nodes by exact label set, in a deterministic order.
func (b *Batch) GroupNodes() []NodeGroup {
	index := make(map[string]int)
	groups := make([]NodeGroup, 0)
	for _, n := range b.Nodes {
		set := n.LabelSet()
		idx, ok := index[set]
		if !ok {
			idx = len(groups)
			index[set] = idx
			groups = append(groups, NodeGroup{Labels: n.Labels, Key: UniqueKey(n.Labels)})
		}
		groups[idx].Nodes = append(groups[idx].Nodes, n)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groupOrder(groups[i].Labels) < groupOrder(groups[j].Labels) ||
			(groupOrder(groups[i].Labels) == groupOrder(groups[j].Labels) &&
				strings.Join(groups[i].Labels, ":") < strings.Join(groups[j].Labels, ":"))
	})
	return groups
}

// RelationshipGroup holds relationships of one type.
type RelationshipGroup struct {
	Type          string
	Discriminator string
	Relationships []Relationship
}

// GroupRelationships splits relationships by type, sorted by type name.
func (b *Batch) GroupRelationships() []RelationshipGroup {
	index := make(map[string]int)
	groups := make([]RelationshipGroup, 0)
	for _, r := range b.Relationships {
		key := r.Type + "|" + r.Discriminator
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, RelationshipGroup{Type: r.Type, Discriminator: r.Discriminator})
		}
		groups[idx].Relationships = append(groups[idx].Relationships, r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Type == groups[j].Type {
			return groups[i].Discriminator < groups[j].Discriminator
		}
		return groups[i].Type < groups[j].Type
	})
	return groups
}

// Containers are written before their contents so relationship endpoints exist.
func groupOrder(labels []string) int {
	switch labels[0] {
	case LabelProject:
		return 0
	case LabelDirectory:
		return 1
	case LabelFile:
		return 2
	default:
		return 3
	}
}
