package analyzer

import (
	"slices"
	"strings"
)

// CleanTypeName strips a global:: qualifier, generic arguments, a nullable
// marker and one array rank from a textual type reference.
func CleanTypeName(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "global::", "")
	if i := strings.IndexByte(cleaned, '<'); i >= 0 {
		cleaned = cleaned[:i]
	}
	if i := strings.IndexByte(cleaned, '?'); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.TrimSuffix(cleaned, "[]")
	return strings.TrimSpace(cleaned)
}

// SimpleName returns the part of a dotted id after the last dot.
func SimpleName(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Resolver maps textual type references to known type ids without
// semantic binding. Uncertain matches resolve to nothing.
type Resolver struct {
	known    map[string]bool
	bySimple map[string][]string
	ids      []string
}

// NewResolver creates a resolver over the given id universe.
func NewResolver(ids []string) *Resolver {
	r := &Resolver{
		known:    make(map[string]bool, len(ids)),
		bySimple: make(map[string][]string),
	}
	for _, id := range ids {
		if id == "" || r.known[id] {
			continue
		}
		r.known[id] = true
		r.ids = append(r.ids, id)
		simple := SimpleName(id)
		r.bySimple[simple] = append(r.bySimple[simple], id)
	}
	slices.Sort(r.ids)
	return r
}

// Known reports whether id is in the universe.
func (r *Resolver) Known(id string) bool {
	return r.known[id]
}

// Resolve resolves raw, referenced from namespace, to a known id. It tries
// in order: an exact match of the cleaned name, the name scoped by the
// referencing namespace, a unique simple-name match, and for dotted names a
// unique match on the dotted suffix.
func (r *Resolver) Resolve(namespace, raw string) (string, bool) {
	cleaned := CleanTypeName(raw)
	if cleaned == "" {
		return "", false
	}
	if r.known[cleaned] {
		return cleaned, true
	}

	simple := SimpleName(cleaned)
	if namespace != "" {
		if scoped := namespace + "." + simple; r.known[scoped] {
			return scoped, true
		}
	}

	if candidates := r.bySimple[simple]; len(candidates) == 1 {
		return candidates[0], true
	}

	if strings.Contains(cleaned, ".") {
		suffix := "." + cleaned
		match := ""
		for _, id := range r.bySimple[simple] {
			if !strings.HasSuffix(id, suffix) {
				continue
			}
			if match != "" {
				return "", false
			}
			match = id
		}
		if match != "" {
			return match, true
		}
	}

	return "", false
}
