// Package topology is the Graph Topology Projector: it produces a bounded
// node/link view of the current generation suitable for interactive
// force-directed rendering, never a placeholder graph.
package topology

import (
	"sort"

	"github.com/localgraph/kg-backend/internal/model"
	"github.com/localgraph/kg-backend/internal/store"
)

// topN is the maximum number of entities projected into the graph
// (spec.md §4.6 step 2).
const topN = 30

const (
	minVal = 8
	maxVal = 40
)

// Node is one rendered graph node. Group is a stable integer assigned per
// distinct entity Type, not the type string itself (spec.md §4.6 step 4).
type Node struct {
	ID    string `json:"id"`
	Group int    `json:"group"`
	Val   int    `json:"val"`
}

// Link is one rendered graph edge, named by entity title to match Node.ID.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Stats summarizes the projection relative to the full generation.
type Stats struct {
	TotalEntities int  `json:"total_entities"`
	DisplayedNodes int `json:"displayed_nodes"`
	IsEmpty       bool `json:"is_empty"`
}

// Graph is the full bounded projection returned to the UI.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
	Stats Stats  `json:"stats"`
}

// Projector is the Graph Topology Projector. The zero value is not usable;
// construct with New.
type Projector struct {
	store *store.Store
}

// New constructs a Projector over s.
func New(s *store.Store) *Projector {
	return &Projector{store: s}
}

// Project runs the full algorithm in spec.md §4.6.
func (p *Projector) Project() Graph {
	entities := p.store.LoadEntities(nil)
	relationships := p.store.LoadRelationships()

	if len(entities) == 0 {
		return Graph{
			Nodes: []Node{},
			Links: []Link{},
			Stats: Stats{TotalEntities: 0, DisplayedNodes: 0, IsEmpty: true},
		}
	}

	selected := selectTopEntities(entities, topN)
	selectedTitles := make(map[string]bool, len(selected))
	for _, e := range selected {
		selectedTitles[e.Title] = true
	}

	groups := make(map[string]int)
	nodes := make([]Node, len(selected))
	for i, e := range selected {
		group, ok := groups[e.Type]
		if !ok {
			group = len(groups)
			groups[e.Type] = group
		}
		nodes[i] = Node{ID: e.Title, Group: group, Val: clamp(e.Degree, minVal, maxVal)}
	}

	links := make([]Link, 0, len(relationships))
	for _, r := range relationships {
		if selectedTitles[r.Source] && selectedTitles[r.Target] {
			links = append(links, Link{Source: r.Source, Target: r.Target})
		}
	}

	return Graph{
		Nodes: nodes,
		Links: links,
		Stats: Stats{
			TotalEntities:  len(entities),
			DisplayedNodes: len(nodes),
			IsEmpty:        false,
		},
	}
}

// selectTopEntities picks the n entities with the largest degree, tie-broken
// by ID ascending (spec.md §4.6 step 2).
func selectTopEntities(entities []model.Entity, n int) []model.Entity {
	sorted := make([]model.Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Degree == sorted[j].Degree {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Degree > sorted[j].Degree
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// clamp floors v at lo and caps it at hi.
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
