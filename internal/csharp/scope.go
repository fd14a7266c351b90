package csharp

import (
	"strings"

	"github.com/Benny93/depsphere-go/internal/analyzer"
	"github.com/Benny93/depsphere-go/internal/parsers"
)

// fileScope holds the using directives of one source file.
type fileScope struct {
	path    string
	usings  []string
	statics []string
	aliases map[string]string
}

func newFileScope(result *parsers.ParseResult) *fileScope {
	scope := &fileScope{
		path:    result.FilePath,
		aliases: result.Aliases(),
	}
	for _, u := range result.Usings {
		switch {
		case u.Alias != "":
		case u.IsStatic:
			scope.statics = append(scope.statics, analyzer.CleanTypeName(u.Namespace))
		default:
			scope.usings = append(scope.usings, u.Namespace)
		}
	}
	return scope
}

// declSite is one declaration of a type together with its lexical context.
type declSite struct {
	decl *parsers.TypeDeclaration
	file *fileScope

	// enclosing lists the declared type and its containers, innermost first.
	enclosing []string
}

func newDeclSite(decl *parsers.TypeDeclaration, file *fileScope) declSite {
	enclosing := []string{decl.ID()}
	for i := len(decl.Containing); i > 0; i-- {
		parts := make([]string, 0, i+1)
		if decl.Namespace != "" {
			parts = append(parts, decl.Namespace)
		}
		parts = append(parts, decl.Containing[:i]...)
		enclosing = append(enclosing, strings.Join(parts, "."))
	}
	return declSite{decl: decl, file: file, enclosing: enclosing}
}

// typeEntry is a declared type: every partial declaration in its owning unit.
type typeEntry struct {
	id    string
	kind  parsers.TypeKind
	unit  analyzer.Unit
	sites []declSite

	basesResolved bool
	baseClass     string
	interfaces    []string
}

// resolveType binds a textual type name, as written at site, to a declared
// type id. Lookup order: using aliases, nested types of the enclosing types,
// the enclosing namespaces from innermost outward, the global namespace,
// using directives and using static targets. Names that two using
// directives both bind are ambiguous and resolve to nothing.
func (p *Provider) resolveType(raw string, site declSite) (string, bool) {
	name := analyzer.CleanTypeName(raw)
	if name == "" {
		return "", false
	}

	head, rest, dotted := strings.Cut(name, ".")
	if target, ok := site.file.aliases[head]; ok {
		name = analyzer.CleanTypeName(target)
		if dotted {
			name += "." + rest
		}
		if p.declared(name) {
			return name, true
		}
		return "", false
	}

	for _, enclosing := range site.enclosing {
		if candidate := enclosing + "." + name; p.declared(candidate) {
			return candidate, true
		}
	}

	for ns := site.decl.Namespace; ns != ""; ns = parentNamespace(ns) {
		if candidate := ns + "." + name; p.declared(candidate) {
			return candidate, true
		}
	}

	if p.declared(name) {
		return name, true
	}

	for _, prefixes := range [][]string{site.file.usings, site.file.statics} {
		match := ""
		for _, prefix := range prefixes {
			candidate := prefix + "." + name
			if !p.declared(candidate) || candidate == match {
				continue
			}
			if match != "" {
				return "", false
			}
			match = candidate
		}
		if match != "" {
			return match, true
		}
	}

	return "", false
}

func parentNamespace(ns string) string {
	if i := strings.LastIndexByte(ns, '.'); i >= 0 {
		return ns[:i]
	}
	return ""
}

// bases resolves and caches the base class and interfaces of a type. Bases
// of interfaces and structs are interfaces, as is any base resolving to a
// declared interface. Otherwise the first resolved base is the base class.
func (p *Provider) bases(entry *typeEntry) (string, []string) {
	if entry.basesResolved {
		return entry.baseClass, entry.interfaces
	}
	entry.basesResolved = true

	seen := make(map[string]bool)
	for _, site := range entry.sites {
		for _, raw := range site.decl.BaseTypes {
			target, ok := p.resolveType(raw, site)
			if !ok || target == entry.id || seen[target] {
				continue
			}
			seen[target] = true
			if entry.kind == parsers.KindInterface || entry.kind == parsers.KindStruct || p.isInterface(target) {
				entry.interfaces = append(entry.interfaces, target)
				continue
			}
			if entry.baseClass == "" {
				entry.baseClass = target
			}
		}
	}
	return entry.baseClass, entry.interfaces
}

// findMember looks up a member by name on a type and then on its declared
// bases. It returns the member and the declaration that owns it.
func (p *Provider) findMember(typeID, name string) (parsers.Member, declSite, bool) {
	visited := make(map[string]bool)
	queue := []string{typeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		entry, ok := p.types[id]
		if !ok {
			continue
		}
		for _, site := range entry.sites {
			for _, m := range site.decl.Members {
				if m.Name == name {
					return m, site, true
				}
			}
		}

		base, interfaces := p.bases(entry)
		if base != "" {
			queue = append(queue, base)
		}
		queue = append(queue, interfaces...)
	}
	return parsers.Member{}, declSite{}, false
}

// receiverType returns the static type of a member-access receiver written
// at site: this, base, a variable or member, a type name, or a dotted chain
// of those.
func (p *Provider) receiverType(expr string, self string, site declSite) (string, bool) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "":
		return "", false
	case "this":
		return self, true
	case "base":
		base, _ := p.bases(p.types[self])
		return base, base != ""
	}

	i := strings.LastIndexByte(expr, '.')
	if i < 0 {
		if typ, ok := site.decl.Variables[expr]; ok {
			return p.resolveType(typ, site)
		}
		if m, owner, ok := p.findMember(self, expr); ok {
			return p.resolveType(m.Type, owner)
		}
		return p.resolveType(expr, site)
	}

	if id, ok := p.resolveType(expr, site); ok {
		return id, true
	}
	left, ok := p.receiverType(expr[:i], self, site)
	if !ok {
		return "", false
	}
	m, owner, ok := p.findMember(left, expr[i+1:])
	if !ok {
		return "", false
	}
	return p.resolveType(m.Type, owner)
}

// accessTargets returns the declared types a member access binds to. A
// nested type access binds the type itself; a member access binds the
// member's containing type and the types in its signature.
func (p *Provider) accessTargets(access parsers.MemberAccess, self string, site declSite) []string {
	if id, ok := p.resolveType(access.Receiver+"."+access.Name, site); ok {
		return []string{id}
	}

	receiver, ok := p.receiverType(access.Receiver, self, site)
	if !ok {
		return nil
	}
	m, owner, ok := p.findMember(receiver, access.Name)
	if !ok {
		return nil
	}

	targets := []string{owner.enclosing[0]}
	for _, raw := range append([]string{m.Type}, m.ParamTypes...) {
		if id, ok := p.resolveType(raw, owner); ok {
			targets = append(targets, id)
		}
	}
	return targets
}

func (p *Provider) declared(id string) bool {
	_, ok := p.types[id]
	return ok
}

func (p *Provider) isInterface(id string) bool {
	entry, ok := p.types[id]
	return ok && entry.kind == parsers.KindInterface
}
