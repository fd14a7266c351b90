// Package graph provides the dependency graph data model for DepSphere.
//
// It defines the type-level nodes and the directed edges between them
// (inherit, implement, reference), the immutable DependencyGraph snapshot,
// and the change events that drive realtime updates.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// EdgeKind represents the type of dependency between two declared types.
// The numeric order is the ordering used for sorted edge output.
type EdgeKind int

const (
	EdgeInherit EdgeKind = iota
	EdgeImplement
	EdgeReference
)

// EdgeKinds lists every edge kind in sort order.
var EdgeKinds = []EdgeKind{EdgeInherit, EdgeImplement, EdgeReference}

// String returns the lowercase name of the kind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeInherit:
		return "inherit"
	case EdgeImplement:
		return "implement"
	case EdgeReference:
		return "reference"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EdgeKind) MarshalText() ([]byte, error) {
	switch k {
	case EdgeInherit, EdgeImplement, EdgeReference:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown edge kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EdgeKind) UnmarshalText(text []byte) error {
	kind, err := ParseEdgeKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseEdgeKind parses a kind name, case-insensitively.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inherit":
		return EdgeInherit, nil
	case "implement":
		return EdgeImplement, nil
	case "reference":
		return EdgeReference, nil
	default:
		return 0, fmt.Errorf("unknown edge kind %q", s)
	}
}

// TypeMetrics holds the raw structural counts of a declared type and its
// derived importance score.
type TypeMetrics struct {
	MethodCount    int `json:"methodCount"`
	StatementCount int `json:"statementCount"`
	BranchCount    int `json:"branchCount"`
	CallSiteCount  int `json:"callSiteCount"`
	FanOut         int `json:"fanOut"`
	InDegree       int `json:"inDegree"`

	// WeightScore is a convex combination of the six normalized counts.
	WeightScore float64 `json:"weightScore"`
}

// SourceLocation is a 1-based span in a source file.
type SourceLocation struct {
	FilePath    string `json:"filePath"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// DependencyNode is a declared type in the graph.
type DependencyNode struct {
	// ID is the fully qualified type name, e.g. "App.Services.OrderService".
	ID string `json:"id"`

	Metrics TypeMetrics `json:"metrics"`

	// Location is nil when the type has no textual declaration.
	Location *SourceLocation `json:"location,omitempty"`
}

// Equal reports whether two nodes have identical field values.
func (n DependencyNode) Equal(other DependencyNode) bool {
	if n.ID != other.ID || n.Metrics != other.Metrics {
		return false
	}
	if n.Location == nil || other.Location == nil {
		return n.Location == nil && other.Location == nil
	}
	return *n.Location == *other.Location
}

// Clone returns a copy that shares no memory with n.
func (n DependencyNode) Clone() DependencyNode {
	if n.Location != nil {
		loc := *n.Location
		n.Location = &loc
	}
	return n
}

// DependencyEdge is a directed dependency between two nodes.
// Edges are values and are used directly as set keys.
type DependencyEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// CompareEdges orders edges by from, to, then kind.
func CompareEdges(a, b DependencyEdge) int {
	if c := strings.Compare(a.From, b.From); c != 0 {
		return c
	}
	if c := strings.Compare(a.To, b.To); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind, b.Kind)
}

// DependencyGraph is an immutable snapshot of nodes ordered by id and
// edges ordered by (from, to, kind).
type DependencyGraph struct {
	Nodes []DependencyNode `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`
}

// NewDependencyGraph builds a snapshot from arbitrary input. Nodes sharing
// an id are merged last-write-wins, duplicate edges collapse, and self edges
// are dropped.
func NewDependencyGraph(nodes []DependencyNode, edges []DependencyEdge) *DependencyGraph {
	byID := make(map[string]DependencyNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node.Clone()
	}

	outNodes := make([]DependencyNode, 0, len(byID))
	for _, node := range byID {
		outNodes = append(outNodes, node)
	}
	SortNodes(outNodes)

	seen := make(map[DependencyEdge]struct{}, len(edges))
	outEdges := make([]DependencyEdge, 0, len(edges))
	for _, edge := range edges {
		if edge.From == edge.To {
			continue
		}
		if _, ok := seen[edge]; ok {
			continue
		}
		seen[edge] = struct{}{}
		outEdges = append(outEdges, edge)
	}
	SortEdges(outEdges)

	return &DependencyGraph{Nodes: outNodes, Edges: outEdges}
}

// Empty returns a graph with no nodes and no edges.
func Empty() *DependencyGraph {
	return &DependencyGraph{Nodes: []DependencyNode{}, Edges: []DependencyEdge{}}
}

// Node returns the node with the given id.
func (g *DependencyGraph) Node(id string) (DependencyNode, bool) {
	i, found := slices.BinarySearchFunc(g.Nodes, id, func(n DependencyNode, id string) int {
		return strings.Compare(n.ID, id)
	})
	if !found {
		return DependencyNode{}, false
	}
	return g.Nodes[i], true
}

// NodeIDs returns the ids of all nodes in order.
func (g *DependencyGraph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, node := range g.Nodes {
		ids[i] = node.ID
	}
	return ids
}

// EdgeSet returns the edges as a set.
func (g *DependencyGraph) EdgeSet() map[DependencyEdge]struct{} {
	set := make(map[DependencyEdge]struct{}, len(g.Edges))
	for _, edge := range g.Edges {
		set[edge] = struct{}{}
	}
	return set
}

// SortNodes sorts nodes by id.
func SortNodes(nodes []DependencyNode) {
	slices.SortFunc(nodes, func(a, b DependencyNode) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// SortEdges sorts edges by (from, to, kind).
func SortEdges(edges []DependencyEdge) {
	slices.SortFunc(edges, CompareEdges)
}

// ChangeType identifies what happened to a workspace file.
type ChangeType int

const (
	DocumentAdded ChangeType = iota
	DocumentChanged
	DocumentRemoved
	DocumentRenamed
	ClassMoved
)

// String returns the event type name.
func (t ChangeType) String() string {
	switch t {
	case DocumentAdded:
		return "DocumentAdded"
	case DocumentChanged:
		return "DocumentChanged"
	case DocumentRemoved:
		return "DocumentRemoved"
	case DocumentRenamed:
		return "DocumentRenamed"
	case ClassMoved:
		return "ClassMoved"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// GraphChangeEvent notifies the engine that a workspace file changed.
type GraphChangeEvent struct {
	Type ChangeType
	Path string

	// OccurredAt is zero when the source did not record a time.
	OccurredAt time.Time
}
