package parsers

import (
	"fmt"
	"slices"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"

	"github.com/Benny93/depsphere-go/internal/graph"
)

var typeDeclarationKinds = map[string]TypeKind{
	"class_declaration":         KindClass,
	"struct_declaration":        KindStruct,
	"interface_declaration":     KindInterface,
	"record_declaration":        KindRecord,
	"record_struct_declaration": KindRecord,
}

var statementKinds = map[string]bool{
	"block":                       true,
	"break_statement":             true,
	"checked_statement":           true,
	"continue_statement":          true,
	"do_statement":                true,
	"empty_statement":             true,
	"expression_statement":        true,
	"fixed_statement":             true,
	"for_statement":               true,
	"foreach_statement":           true,
	"for_each_statement":          true,
	"goto_statement":              true,
	"if_statement":                true,
	"labeled_statement":           true,
	"local_declaration_statement": true,
	"local_function_statement":    true,
	"lock_statement":              true,
	"return_statement":            true,
	"switch_statement":            true,
	"throw_statement":             true,
	"try_statement":               true,
	"unsafe_statement":            true,
	"using_statement":             true,
	"while_statement":             true,
	"yield_statement":             true,
}

var branchKinds = map[string]bool{
	"if_statement":           true,
	"switch_statement":       true,
	"switch_expression":      true,
	"for_statement":          true,
	"foreach_statement":      true,
	"for_each_statement":     true,
	"while_statement":        true,
	"do_statement":           true,
	"conditional_expression": true,
}

// CSharpParser extracts type declarations from C# source with tree-sitter.
// It is safe for concurrent use; every Parse call uses its own parser.
type CSharpParser struct {
	language *sitter.Language
}

// NewCSharpParser creates a new C# parser.
func NewCSharpParser() *CSharpParser {
	return &CSharpParser{language: sitter.NewLanguage(tree_sitter_csharp.Language())}
}

// Language returns the language this parser handles.
func (p *CSharpParser) Language() string {
	return "csharp"
}

// Parse parses C# source code. Syntax errors are tolerated: declarations
// recovered by tree-sitter are still reported.
func (p *CSharpParser) Parse(filePath string, content []byte) (*ParseResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.language); err != nil {
		return nil, fmt.Errorf("setting C# language: %w", err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("parsing C# code: no syntax tree for %s", filePath)
	}
	defer tree.Close()

	e := &extractor{
		source: content,
		result: &ParseResult{
			FilePath: filePath,
			Usings:   []Using{},
			Types:    []TypeDeclaration{},
		},
	}
	e.visitScope(tree.RootNode(), "", nil)

	return e.result, nil
}

type extractor struct {
	source []byte
	result *ParseResult
}

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Utf8Text(e.source))
}

// typeText returns a type's text with all whitespace removed.
func (e *extractor) typeText(n *sitter.Node) string {
	return strings.Join(strings.Fields(e.text(n)), "")
}

// visitScope walks a compilation unit, namespace body or type body.
func (e *extractor) visitScope(node *sitter.Node, namespace string, containing []string) {
	scoped := namespace
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Kind() {
		case "using_directive":
			e.addUsing(child)
		case "namespace_declaration":
			name := joinName(scoped, e.typeText(child.ChildByFieldName("name")))
			if body := bodyOf(child); body != nil {
				e.visitScope(body, name, containing)
			}
		case "file_scoped_namespace_declaration":
			// Applies to the rest of the file. Some grammar revisions nest
			// the declarations inside the node, so visit it as well.
			scoped = joinName(namespace, e.typeText(child.ChildByFieldName("name")))
			e.visitScope(child, scoped, containing)
		case "declaration_list":
			e.visitScope(child, scoped, containing)
		default:
			if kind, ok := typeDeclarationKinds[child.Kind()]; ok {
				e.declare(child, kind, scoped, containing)
			}
		}
	}
}

func (e *extractor) declare(node *sitter.Node, kind TypeKind, namespace string, containing []string) {
	name := e.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}

	decl := TypeDeclaration{
		Name:       name,
		Namespace:  namespace,
		Containing: slices.Clone(containing),
		Kind:       kind,
		IsPartial:  e.hasModifier(node, "partial"),
		BaseTypes:  e.baseTypes(node),
		References: []TypeReference{},
		Members:    []Member{},
		Variables:  make(map[string]string),
		Location:   location(e.result.FilePath, node),
	}

	body := bodyOf(node)
	if body != nil {
		e.collectMembers(body, &decl)
	}
	e.scan(node, &decl)

	e.result.Types = append(e.result.Types, decl)

	if body != nil {
		nested := append(slices.Clone(containing), name)
		e.visitScope(body, namespace, nested)
	}
}

func (e *extractor) hasModifier(node *sitter.Node, modifier string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == modifier {
			return true
		}
		if child.Kind() == "modifier" && e.text(child) == modifier {
			return true
		}
	}
	return false
}

func (e *extractor) baseTypes(node *sitter.Node) []string {
	bases := []string{}
	list := childOfKind(node, "base_list")
	if list == nil {
		return bases
	}

	for i := uint(0); i < list.NamedChildCount(); i++ {
		child := list.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "comment", "argument_list":
			continue
		case "primary_constructor_base_type":
			if t := child.NamedChild(0); t != nil {
				bases = append(bases, e.typeText(t))
			}
		default:
			bases = append(bases, e.typeText(child))
		}
	}
	return bases
}

// collectMembers records direct members of a type body.
func (e *extractor) collectMembers(body *sitter.Node, decl *TypeDeclaration) {
	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Kind() {
		case "method_declaration":
			decl.Counts.Methods++
			_, paramTypes := e.parameters(parameterList(child))
			decl.Members = append(decl.Members, Member{
				Name:       e.text(child.ChildByFieldName("name")),
				Role:       MemberMethod,
				Type:       e.typeText(returnType(child)),
				ParamTypes: paramTypes,
			})
		case "field_declaration", "event_field_declaration":
			role := MemberField
			if child.Kind() == "event_field_declaration" {
				role = MemberEvent
			}
			typ, names := e.variableDeclaration(childOfKind(child, "variable_declaration"))
			for _, name := range names {
				decl.Members = append(decl.Members, Member{Name: name, Role: role, Type: typ})
			}
		case "property_declaration":
			decl.Members = append(decl.Members, Member{
				Name: e.text(child.ChildByFieldName("name")),
				Role: MemberProperty,
				Type: e.typeText(child.ChildByFieldName("type")),
			})
		case "event_declaration":
			decl.Members = append(decl.Members, Member{
				Name: e.text(child.ChildByFieldName("name")),
				Role: MemberEvent,
				Type: e.typeText(child.ChildByFieldName("type")),
			})
		}
	}
}

// scan walks every descendant of a type declaration, nested types included.
func (e *extractor) scan(node *sitter.Node, decl *TypeDeclaration) {
	stack := make([]*sitter.Node, 0, 32)
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		stack = append(stack, node.NamedChild(uint(i)))
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}

		kind := n.Kind()
		if statementKinds[kind] {
			decl.Counts.Statements++
		}
		if branchKinds[kind] {
			decl.Counts.Branches++
		}

		switch kind {
		case "invocation_expression":
			decl.Counts.CallSites++
		case "object_creation_expression":
			decl.Counts.CallSites++
			decl.addReference(e.typeText(n.ChildByFieldName("type")), RoleCreation)
		case "field_declaration":
			typ, names := e.variableDeclaration(childOfKind(n, "variable_declaration"))
			decl.addReference(typ, RoleField)
			decl.addVariables(typ, names...)
		case "property_declaration":
			typ := e.typeText(n.ChildByFieldName("type"))
			decl.addReference(typ, RoleProperty)
			decl.addVariables(typ, e.text(n.ChildByFieldName("name")))
		case "method_declaration":
			decl.addReference(e.typeText(returnType(n)), RoleReturn)
			_, types := e.parameters(parameterList(n))
			for _, t := range types {
				decl.addReference(t, RoleParameter)
			}
		case "parameter":
			decl.addVariables(e.typeText(n.ChildByFieldName("type")), e.text(n.ChildByFieldName("name")))
		case "local_declaration_statement":
			typ, names := e.variableDeclaration(childOfKind(n, "variable_declaration"))
			decl.addVariables(typ, names...)
		case "foreach_statement", "for_each_statement":
			decl.addVariables(e.typeText(n.ChildByFieldName("type")), e.text(n.ChildByFieldName("left")))
		case "member_access_expression":
			decl.MemberAccesses = append(decl.MemberAccesses, MemberAccess{
				Receiver: e.typeText(n.ChildByFieldName("expression")),
				Name:     e.text(n.ChildByFieldName("name")),
			})
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(uint(i)))
		}
	}
}

// parameters returns the names and types of a parameter list. Untyped
// lambda parameters are skipped.
func (e *extractor) parameters(list *sitter.Node) (names, types []string) {
	types = []string{}
	if list == nil {
		return nil, types
	}
	for i := uint(0); i < list.NamedChildCount(); i++ {
		param := list.NamedChild(i)
		if param == nil || param.Kind() != "parameter" {
			continue
		}
		typ := e.typeText(param.ChildByFieldName("type"))
		if typ == "" {
			continue
		}
		names = append(names, e.text(param.ChildByFieldName("name")))
		types = append(types, typ)
	}
	return names, types
}

// variableDeclaration returns the declared type and declarator names.
func (e *extractor) variableDeclaration(n *sitter.Node) (string, []string) {
	if n == nil {
		return "", nil
	}
	typ := e.typeText(n.ChildByFieldName("type"))

	var names []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		declarator := n.NamedChild(i)
		if declarator == nil || declarator.Kind() != "variable_declarator" {
			continue
		}
		name := declarator.ChildByFieldName("name")
		if name == nil {
			name = childOfKind(declarator, "identifier")
		}
		if s := e.text(name); s != "" {
			names = append(names, s)
		}
	}
	return typ, names
}

func (e *extractor) addUsing(node *sitter.Node) {
	var (
		u     Using
		alias *sitter.Node
		named []*sitter.Node
	)

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "static":
			u.IsStatic = true
		case "=":
			if len(named) > 0 {
				alias = named[len(named)-1]
			}
			named = nil
		case "name_equals":
			alias = childOfKind(child, "identifier")
		case "comment":
		default:
			if child.IsNamed() {
				named = append(named, child)
			}
		}
	}

	if len(named) == 0 {
		return
	}
	u.Namespace = e.typeText(named[len(named)-1])
	u.Alias = e.text(alias)
	e.result.Usings = append(e.result.Usings, u)
}

func (d *TypeDeclaration) addReference(text string, role RefRole) {
	if text == "" {
		return
	}
	d.References = append(d.References, TypeReference{Text: text, Role: role})
}

func (d *TypeDeclaration) addVariables(typ string, names ...string) {
	if typ == "" || typ == "var" {
		return
	}
	for _, name := range names {
		if name != "" {
			d.Variables[name] = typ
		}
	}
}

func returnType(method *sitter.Node) *sitter.Node {
	if t := method.ChildByFieldName("returns"); t != nil {
		return t
	}
	return method.ChildByFieldName("type")
}

func parameterList(method *sitter.Node) *sitter.Node {
	if p := method.ChildByFieldName("parameters"); p != nil {
		return p
	}
	return childOfKind(method, "parameter_list")
}

func bodyOf(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	return childOfKind(node, "declaration_list")
}

func childOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

func location(path string, node *sitter.Node) graph.SourceLocation {
	start, end := node.StartPosition(), node.EndPosition()
	return graph.SourceLocation{
		FilePath:    path,
		StartLine:   int(start.Row) + 1,
		StartColumn: int(start.Column) + 1,
		EndLine:     int(end.Row) + 1,
		EndColumn:   int(end.Column) + 1,
	}
}

func joinName(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}
