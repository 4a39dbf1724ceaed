package languages

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/skelly-dev/graphloom/internal/parser"
)

// parserPool hands out tree-sitter parsers for one grammar. A sitter.Parser
// is not safe for concurrent use, so workers borrow one per file.
type parserPool struct {
	pool sync.Pool
}

func newParserPool(lang *sitter.Language) *parserPool {
	return &parserPool{pool: sync.Pool{New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		return p
	}}}
}

// parse runs one parse with a pooled parser. The caller closes the tree.
func (pp *parserPool) parse(content []byte) (*sitter.Tree, error) {
	p := pp.pool.Get().(*sitter.Parser)
	defer pp.pool.Put(p)
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	return tree, nil
}

// newScope fills the position and body of a scope from the node spanning it.
func newScope(span *sitter.Node, content []byte, name string, kind parser.ScopeKind, parent string) parser.Scope {
	return parser.Scope{
		Name:       name,
		Kind:       kind,
		StartLine:  int(span.StartPoint().Row) + 1,
		EndLine:    int(span.EndPoint().Row) + 1,
		Content:    span.Content(content),
		ParentName: parent,
	}
}

func fieldContent(node *sitter.Node, field string, content []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Content(content))
}

// namedChildren returns the content of every named child, skipping the
// given node types.
func namedChildren(node *sitter.Node, content []byte, skip ...string) []string {
	if node == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if contains(skip, child.Type()) {
			continue
		}
		if text := strings.TrimSpace(child.Content(content)); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// parameterNames renders each parameter of a parameter list as written.
func parameterNames(params *sitter.Node, content []byte) []string {
	return namedChildren(params, content, "comment")
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
