package languages

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/skelly-dev/graphloom/internal/parser"
)

var pyConstantRe = regexp.MustCompile(`^_*[A-Z][A-Z0-9_]*$`)

// PythonParser implements parsing for Python source files
type PythonParser struct {
	pool *parserPool
}

// NewPythonParser creates a new Python parser
func NewPythonParser() *PythonParser {
	return &PythonParser{pool: newParserPool(python.GetLanguage())}
}

func (p *PythonParser) Language() string {
	return "python"
}

func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi", ".pyw"}
}

func (p *PythonParser) Parse(filename string, content []byte) (*parser.FileRecord, error) {
	tree, err := p.pool.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	w := &pyWalker{content: content}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.statement(root.NamedChild(i), "", true)
	}
	return &parser.FileRecord{Path: filename, Language: "python", Scopes: w.scopes}, nil
}

type pyWalker struct {
	content []byte
	scopes  []parser.Scope
}

// statement handles one statement of a module or class body.
func (w *pyWalker) statement(node *sitter.Node, className string, module bool) {
	switch node.Type() {
	case "decorated_definition":
		w.definition(node.ChildByFieldName("definition"), node, className)

	case "function_definition", "class_definition":
		w.definition(node, node, className)

	case "expression_statement":
		if module {
			w.assignments(node)
		}

	case "if_statement", "try_statement", "with_statement":
		// Conditional definitions at module level, e.g. TYPE_CHECKING guards.
		if !module {
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "block" || strings.HasSuffix(child.Type(), "_clause") {
				w.block(child)
			}
		}
	}
}

func (w *pyWalker) block(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "block" {
			w.block(child)
			continue
		}
		w.statement(child, "", true)
	}
}

// definition records a function or class. span is the decorated wrapper
// when there is one.
func (w *pyWalker) definition(node, span *sitter.Node, className string) {
	if node == nil {
		return
	}
	name := fieldContent(node, "name", w.content)
	if name == "" {
		return
	}
	decorators := decoratorsOf(span, w.content)

	switch node.Type() {
	case "function_definition":
		kind := parser.ScopeFunction
		if className != "" {
			kind = parser.ScopeMethod
		}
		scope := newScope(span, w.content, name, kind, className)
		scope.Signature = buildPythonFunctionSignature(node, w.content)
		scope.Parameters = parameterNames(node.ChildByFieldName("parameters"), w.content)
		scope.Decorators = decorators
		scope.Modifiers = pythonModifiers(node, decorators)
		scope.Exported = !strings.HasPrefix(name, "_")
		w.scopes = append(w.scopes, scope)

	case "class_definition":
		scope := newScope(span, w.content, name, parser.ScopeClass, className)
		scope.Signature = buildPythonClassSignature(node, w.content)
		scope.Decorators = decorators
		scope.Heritage = pythonBases(node, w.content)
		scope.Exported = !strings.HasPrefix(name, "_")
		if tp := node.ChildByFieldName("type_parameters"); tp != nil {
			scope.Generics = namedChildren(tp, w.content)
		}
		w.scopes = append(w.scopes, scope)

		if body := node.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				w.statement(body.NamedChild(i), name, false)
			}
		}
	}
}

// assignments records module-level bindings. UPPER_CASE names are
// constants by convention.
func (w *pyWalker) assignments(stmt *sitter.Node) {
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		assign := stmt.NamedChild(i)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			continue
		}
		name := left.Content(w.content)
		kind := parser.ScopeVariable
		if pyConstantRe.MatchString(name) {
			kind = parser.ScopeConstant
		}
		scope := newScope(stmt, w.content, name, kind, "")
		scope.Signature = name
		if typ := fieldContent(assign, "type", w.content); typ != "" {
			scope.Signature += ": " + typ
		}
		scope.Exported = !strings.HasPrefix(name, "_")
		w.scopes = append(w.scopes, scope)
	}
}

// pythonBases reads the superclass list, skipping keyword arguments such
// as metaclass=.
func pythonBases(node *sitter.Node, content []byte) *parser.Heritage {
	bases := node.ChildByFieldName("superclasses")
	if bases == nil {
		return nil
	}
	extends := namedChildren(bases, content, "keyword_argument", "comment", "list_splat", "dictionary_splat")
	if len(extends) == 0 {
		return nil
	}
	return &parser.Heritage{Extends: extends}
}

func pythonModifiers(node *sitter.Node, decorators []string) []string {
	var out []string
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == "async" {
			out = append(out, "async")
		}
	}
	for _, d := range decorators {
		switch strings.TrimPrefix(d, "@") {
		case "staticmethod":
			out = append(out, "static")
		case "classmethod":
			out = append(out, "classmethod")
		case "property":
			out = append(out, "get")
		case "abstractmethod", "abc.abstractmethod":
			out = append(out, "abstract")
		}
	}
	return out
}

func buildPythonFunctionSignature(node *sitter.Node, content []byte) string {
	sig := "def"
	if name := fieldContent(node, "name", content); name != "" {
		sig += " " + name
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(content)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + ret.Content(content)
	}
	return sig
}

func buildPythonClassSignature(node *sitter.Node, content []byte) string {
	sig := "class"
	if name := fieldContent(node, "name", content); name != "" {
		sig += " " + name
	}
	if bases := node.ChildByFieldName("superclasses"); bases != nil {
		sig += bases.Content(content)
	}
	return sig
}
