// Package parsers provides tree-sitter based syntax extraction for C# source.
//
// Extraction is purely syntactic: type references are reported as raw text
// and are resolved to declared type ids by the callers.
package parsers

import (
	"strings"

	"github.com/Benny93/depsphere-go/internal/graph"
)

// TypeKind is the declaration keyword of a type.
type TypeKind string

const (
	KindClass     TypeKind = "class"
	KindStruct    TypeKind = "struct"
	KindInterface TypeKind = "interface"
	KindRecord    TypeKind = "record"
)

// RefRole is where a type reference appears.
type RefRole string

const (
	RoleField     RefRole = "field"
	RoleProperty  RefRole = "property"
	RoleReturn    RefRole = "return"
	RoleParameter RefRole = "parameter"
	RoleCreation  RefRole = "creation"
)

// MemberRole is the kind of a declared member.
type MemberRole string

const (
	MemberField    MemberRole = "field"
	MemberProperty MemberRole = "property"
	MemberMethod   MemberRole = "method"
	MemberEvent    MemberRole = "event"
)

// Counts are the purely syntactic size measures of a type declaration.
type Counts struct {
	// Methods counts method declarations that are direct members.
	Methods int

	// Statements, Branches and CallSites count every descendant,
	// including those inside nested types.
	Statements int
	Branches   int
	CallSites  int
}

// Add returns the element-wise sum of c and other.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		Methods:    c.Methods + other.Methods,
		Statements: c.Statements + other.Statements,
		Branches:   c.Branches + other.Branches,
		CallSites:  c.CallSites + other.CallSites,
	}
}

// TypeReference is a raw type name used by a declaration.
type TypeReference struct {
	Text string
	Role RefRole
}

// Member is a field, property, event or method declared directly in a type.
type Member struct {
	Name string
	Role MemberRole

	// Type is the field/property/event type or the method return type.
	Type string

	// ParamTypes holds method parameter types in order.
	ParamTypes []string
}

// MemberAccess is an `a.b` expression: Receiver is the text of `a`.
type MemberAccess struct {
	Receiver string
	Name     string
}

// TypeDeclaration is a class, struct, interface or record declaration.
type TypeDeclaration struct {
	// Name is the simple name without generic parameters.
	Name string

	// Namespace is the dotted enclosing namespace, "" for the global namespace.
	Namespace string

	// Containing lists the names of enclosing types, outermost first.
	Containing []string

	Kind      TypeKind
	IsPartial bool

	// BaseTypes holds the base-list entries in declaration order.
	BaseTypes []string

	// References holds every field, property, return, parameter and
	// object-creation type found in the declaration.
	References []TypeReference

	MemberAccesses []MemberAccess

	// Members holds direct members only.
	Members []Member

	// Variables maps parameter, local, field and property names to their
	// declared type text. Implicitly typed locals are omitted.
	Variables map[string]string

	Counts   Counts
	Location graph.SourceLocation
}

// ID returns the fully qualified type id: namespace, enclosing types and
// name joined with dots.
func (t TypeDeclaration) ID() string {
	parts := make([]string, 0, len(t.Containing)+2)
	if t.Namespace != "" {
		parts = append(parts, t.Namespace)
	}
	parts = append(parts, t.Containing...)
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// MethodNames returns the names of direct method members in order.
func (t TypeDeclaration) MethodNames() []string {
	names := make([]string, 0)
	for _, m := range t.Members {
		if m.Role == MemberMethod {
			names = append(names, m.Name)
		}
	}
	return names
}

// Using is a using directive.
type Using struct {
	// Namespace is the imported namespace or, for aliases, the target name.
	Namespace string

	// Alias is set for `using Alias = Target;`.
	Alias string

	IsStatic bool
}

// ParseResult contains everything extracted from one source file.
type ParseResult struct {
	FilePath string
	Usings   []Using
	Types    []TypeDeclaration
}

// Aliases returns the using aliases of the file.
func (r *ParseResult) Aliases() map[string]string {
	aliases := make(map[string]string)
	for _, u := range r.Usings {
		if u.Alias != "" {
			aliases[u.Alias] = u.Namespace
		}
	}
	return aliases
}

// Parser defines the interface for language-specific parsers.
type Parser interface {
	// Parse extracts type declarations and usings from source code.
	Parse(filePath string, content []byte) (*ParseResult, error)

	// Language returns the language this parser handles.
	Language() string
}
