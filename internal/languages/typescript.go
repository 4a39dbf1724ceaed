package languages

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/skelly-dev/graphloom/internal/parser"
)

// TypeScriptParser implements parsing for TypeScript/JavaScript source files
type TypeScriptParser struct {
	ts  *parserPool
	tsx *parserPool
	js  *parserPool
}

// NewTypeScriptParser creates a new TypeScript/JavaScript parser
func NewTypeScriptParser() *TypeScriptParser {
	return &TypeScriptParser{
		ts:  newParserPool(typescript.GetLanguage()),
		tsx: newParserPool(tsx.GetLanguage()),
		js:  newParserPool(javascript.GetLanguage()),
	}
}

func (t *TypeScriptParser) Language() string {
	return "typescript"
}

func (t *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}
}

func (t *TypeScriptParser) Parse(filename string, content []byte) (*parser.FileRecord, error) {
	pool, lang := t.ts, "typescript"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsx":
		pool = t.tsx
	case ".js", ".jsx", ".mjs", ".cjs":
		pool, lang = t.js, "javascript"
	}

	tree, err := pool.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	w := &tsWalker{content: content}
	w.walk(tree.RootNode(), declContext{})
	return &parser.FileRecord{Path: filename, Language: lang, Scopes: w.scopes}, nil
}

// declContext carries what an enclosing export statement contributes to
// the declaration inside it.
type declContext struct {
	exported   bool
	span       *sitter.Node
	modifiers  []string
	decorators []string
}

func (dc declContext) spanOr(node *sitter.Node) *sitter.Node {
	if dc.span != nil {
		return dc.span
	}
	return node
}

type tsWalker struct {
	content []byte
	scopes  []parser.Scope
}

func (w *tsWalker) walk(node *sitter.Node, dc declContext) {
	switch node.Type() {
	case "export_statement":
		inner := declContext{exported: true, span: node}
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "decorator":
				inner.decorators = append(inner.decorators, child.Content(w.content))
			case "default":
				inner.modifiers = append(inner.modifiers, "default")
			}
		}
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			w.walk(decl, inner)
		} else if value := node.ChildByFieldName("value"); value != nil {
			w.walk(value, inner)
		}
		return

	case "function_declaration", "generator_function_declaration", "function", "function_expression":
		w.addFunction(node, dc)
		return

	case "class_declaration", "abstract_class_declaration", "class":
		w.addClass(node, dc)
		return

	case "interface_declaration":
		w.addInterface(node, dc)
		return

	case "type_alias_declaration":
		w.addNamed(node, dc, parser.ScopeTypeAlias, "type ")
		return

	case "enum_declaration":
		w.addNamed(node, dc, parser.ScopeEnum, "enum ")
		return

	case "internal_module", "module":
		w.addNamed(node, dc, parser.ScopeModule, "namespace ")
		return

	case "lexical_declaration", "variable_declaration":
		w.addVariables(node, dc)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), declContext{})
	}
}

// name returns the declared name, or "default" for anonymous default
// exports.
func (w *tsWalker) name(node *sitter.Node, dc declContext) string {
	if name := fieldContent(node, "name", w.content); name != "" {
		return name
	}
	if contains(dc.modifiers, "default") {
		return "default"
	}
	return ""
}

func (w *tsWalker) declare(node *sitter.Node, dc declContext, name string, kind parser.ScopeKind) parser.Scope {
	scope := newScope(dc.spanOr(node), w.content, name, kind, "")
	scope.Exported = dc.exported
	scope.Modifiers = append(append([]string(nil), dc.modifiers...), tokenModifiers(node, w.content)...)
	scope.Decorators = append(append([]string(nil), dc.decorators...), decoratorsOf(node, w.content)...)
	scope.Generics = typeParameters(node, w.content)
	return scope
}

func (w *tsWalker) addFunction(node *sitter.Node, dc declContext) {
	name := w.name(node, dc)
	if name == "" {
		return
	}
	scope := w.declare(node, dc, name, parser.ScopeFunction)
	scope.Signature = buildFunctionSignature(node, w.content)
	scope.Parameters = parameterNames(node.ChildByFieldName("parameters"), w.content)
	w.scopes = append(w.scopes, scope)
}

func (w *tsWalker) addClass(node *sitter.Node, dc declContext) {
	name := w.name(node, dc)
	if name == "" {
		return
	}
	scope := w.declare(node, dc, name, parser.ScopeClass)
	if node.Type() == "abstract_class_declaration" && !contains(scope.Modifiers, "abstract") {
		scope.Modifiers = append(scope.Modifiers, "abstract")
	}
	scope.Signature = buildClassSignature(node, w.content)
	scope.Heritage = classHeritage(node, w.content)
	w.scopes = append(w.scopes, scope)

	w.addMembers(node.ChildByFieldName("body"), name)
}

// addMembers records the methods of a class body. Decorators written
// before a member are siblings of it in the body.
func (w *tsWalker) addMembers(body *sitter.Node, className string) {
	if body == nil {
		return
	}
	var decorators []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "decorator":
			decorators = append(decorators, member.Content(w.content))
			continue

		case "method_definition", "abstract_method_signature":
			scope := w.member(member, className, decorators)
			scope.Signature = buildMethodSignature(member, w.content)
			scope.Parameters = parameterNames(member.ChildByFieldName("parameters"), w.content)
			w.scopes = append(w.scopes, scope)

		case "public_field_definition", "field_definition":
			value := member.ChildByFieldName("value")
			if value == nil || !isFunctionValue(value.Type()) {
				break
			}
			scope := w.member(member, className, decorators)
			if scope.Name == "" {
				break
			}
			scope.Signature = scope.Name + " = " + buildArrowSignature(value, w.content)
			scope.Parameters = parameterNames(functionParams(value), w.content)
			scope.Modifiers = append(scope.Modifiers, tokenModifiers(value, w.content)...)
			w.scopes = append(w.scopes, scope)
		}
		decorators = nil
	}
}

func (w *tsWalker) member(node *sitter.Node, className string, decorators []string) parser.Scope {
	name := fieldContent(node, "name", w.content)
	if name == "" {
		name = fieldContent(node, "property", w.content)
	}
	scope := newScope(node, w.content, name, parser.ScopeMethod, className)
	scope.Modifiers = tokenModifiers(node, w.content)
	scope.Decorators = append(append([]string(nil), decorators...), decoratorsOf(node, w.content)...)
	scope.Generics = typeParameters(node, w.content)
	return scope
}

func (w *tsWalker) addInterface(node *sitter.Node, dc declContext) {
	name := w.name(node, dc)
	if name == "" {
		return
	}
	scope := w.declare(node, dc, name, parser.ScopeInterface)
	scope.Signature = "interface " + name
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "extends_type_clause" {
			scope.Heritage = &parser.Heritage{Extends: namedChildren(child, w.content)}
			scope.Signature += " " + child.Content(w.content)
		}
	}
	w.scopes = append(w.scopes, scope)
}

func (w *tsWalker) addNamed(node *sitter.Node, dc declContext, kind parser.ScopeKind, keyword string) {
	name := w.name(node, dc)
	if name == "" {
		return
	}
	scope := w.declare(node, dc, name, kind)
	scope.Signature = keyword + name
	w.scopes = append(w.scopes, scope)
}

// addVariables records function-valued bindings anywhere and plain
// bindings at the top level of the module.
func (w *tsWalker) addVariables(node *sitter.Node, dc declContext) {
	keyword := "var"
	if node.ChildCount() > 0 {
		if first := node.Child(0).Type(); first == "const" || first == "let" {
			keyword = first
		}
	}
	topLevel := false
	if p := node.Parent(); p == nil || p.Type() == "program" || p.Type() == "export_statement" {
		topLevel = true
	}

	var declarators []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "variable_declarator" {
			declarators = append(declarators, child)
		}
	}
	for _, decl := range declarators {
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nameNode.Content(w.content)
		span := decl
		if len(declarators) == 1 {
			span = dc.spanOr(node)
		}

		value := decl.ChildByFieldName("value")
		var scope parser.Scope
		switch {
		case value != nil && isFunctionValue(value.Type()):
			scope = newScope(span, w.content, name, parser.ScopeFunction, "")
			scope.Signature = keyword + " " + name + " = " + buildArrowSignature(value, w.content)
			scope.Parameters = parameterNames(functionParams(value), w.content)
			scope.Modifiers = tokenModifiers(value, w.content)
			scope.Generics = typeParameters(value, w.content)
		case topLevel:
			kind := parser.ScopeVariable
			if keyword == "const" {
				kind = parser.ScopeConstant
			}
			scope = newScope(span, w.content, name, kind, "")
			scope.Signature = keyword + " " + name
			if typ := fieldContent(decl, "type", w.content); typ != "" {
				scope.Signature += formatTypeScriptReturnType(typ)
			}
		default:
			continue
		}
		scope.Exported = dc.exported
		scope.Modifiers = append(append([]string(nil), dc.modifiers...), scope.Modifiers...)
		scope.Decorators = dc.decorators
		w.scopes = append(w.scopes, scope)
	}
}

func isFunctionValue(nodeType string) bool {
	switch nodeType {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	default:
		return false
	}
}

// functionParams returns the parameter list of a function value; a bare
// arrow parameter has no list node.
func functionParams(value *sitter.Node) *sitter.Node {
	if params := value.ChildByFieldName("parameters"); params != nil {
		return params
	}
	return value.ChildByFieldName("parameter")
}

// classHeritage reads extends/implements clauses. The JavaScript grammar
// puts the extended expression directly under class_heritage.
func classHeritage(node *sitter.Node, content []byte) *parser.Heritage {
	h := &parser.Heritage{}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		heritage := node.NamedChild(i)
		if heritage.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(heritage.NamedChildCount()); j++ {
			clause := heritage.NamedChild(j)
			switch clause.Type() {
			case "extends_clause":
				h.Extends = append(h.Extends, namedChildren(clause, content, "type_arguments")...)
			case "implements_clause":
				h.Implements = append(h.Implements, namedChildren(clause, content)...)
			case "comment":
			default:
				h.Extends = append(h.Extends, strings.TrimSpace(clause.Content(content)))
			}
		}
	}
	if h.Empty() {
		return nil
	}
	return h
}

var modifierTokens = map[string]bool{
	"async": true, "static": true, "abstract": true, "readonly": true, "declare": true,
	"get": true, "set": true, "override": true,
}

// tokenModifiers collects modifier keywords that are direct children of a
// declaration.
func tokenModifiers(node *sitter.Node, content []byte) []string {
	var out []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch {
		case child.Type() == "accessibility_modifier" || child.Type() == "override_modifier":
			out = append(out, child.Content(content))
		case child.Type() == "*":
			out = append(out, "generator")
		case !child.IsNamed() && modifierTokens[child.Type()]:
			out = append(out, child.Type())
		}
	}
	return out
}

func decoratorsOf(node *sitter.Node, content []byte) []string {
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "decorator" {
			out = append(out, child.Content(content))
		}
	}
	return out
}

func typeParameters(node *sitter.Node, content []byte) []string {
	params := node.ChildByFieldName("type_parameters")
	if params == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		if name := fieldContent(param, "name", content); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func buildFunctionSignature(node *sitter.Node, content []byte) string {
	sig := "function"
	if name := fieldContent(node, "name", content); name != "" {
		sig += " " + name
	}
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		sig += tp.Content(content)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(content)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += formatTypeScriptReturnType(ret.Content(content))
	}
	return sig
}

func buildMethodSignature(node *sitter.Node, content []byte) string {
	sig := fieldContent(node, "name", content)
	if params := node.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(content)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		sig += formatTypeScriptReturnType(ret.Content(content))
	}
	return sig
}

func buildClassSignature(node *sitter.Node, content []byte) string {
	sig := "class"
	if name := fieldContent(node, "name", content); name != "" {
		sig += " " + name
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "class_heritage" {
			sig += " " + child.Content(content)
			break
		}
	}
	return sig
}

func buildArrowSignature(value *sitter.Node, content []byte) string {
	sig := ""
	if params := functionParams(value); params != nil {
		sig += params.Content(content)
	}
	sig += " =>"
	if ret := value.ChildByFieldName("return_type"); ret != nil {
		sig += formatTypeScriptReturnType(ret.Content(content))
	}
	return sig
}

func formatTypeScriptReturnType(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	value = strings.TrimSpace(strings.TrimPrefix(value, ":"))
	if value == "" {
		return ""
	}
	return ": " + value
}
