// Package cache is the Derived-Metrics Cache: it memoizes the full-table
// scans behind the analytics endpoints, tagged by the Artifact Store's
// generation so a reload invalidates exactly the entries that need it.
package cache

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/localgraph/kg-backend/internal/model"
	"github.com/localgraph/kg-backend/internal/store"
)

// Cache wraps a *store.Store with memoized aggregations. The zero value is
// not usable; construct with New.
type Cache struct {
	store *store.Store

	mu      sync.Mutex
	entries map[string]*entry

	inflightMu sync.Mutex
	inflight   map[string]*group
}

type entry struct {
	generation model.Generation
	value      any
	err        error
}

// group is a bounded in-flight computation: concurrent misses for the same
// key wait on the same group instead of each recomputing (spec.md §5
// "Shared-resource policy").
type group struct {
	done chan struct{}
	val  any
	err  error
}

// New constructs a Cache over store.
func New(s *store.Store) *Cache {
	return &Cache{
		store:    s,
		entries:  make(map[string]*entry),
		inflight: make(map[string]*group),
	}
}

// Invalidate drops every memoized entry. Called by the Index Job Supervisor
// immediately after a successful indexing run, before the Artifact Store
// reload is published to readers.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// getOrCompute returns the memoized value for key if it is tagged with the
// store's current generation, else computes it once - even under concurrent
// callers - and memoizes the result.
func getOrCompute[T any](c *Cache, key string, compute func() (T, error)) (T, error) {
	gen := c.store.CurrentGeneration()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.generation == gen {
		c.mu.Unlock()
		if e.err != nil {
			var zero T
			return zero, e.err
		}
		return e.value.(T), nil
	}
	c.mu.Unlock()

	val, err := c.singleflight(key, func() (any, error) { return compute() })

	c.mu.Lock()
	c.entries[key] = &entry{generation: gen, value: val, err: err}
	c.mu.Unlock()

	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// singleflight ensures only one goroutine actually runs fn for a given key at
// a time; other callers block on its result instead of duplicating the work.
func (c *Cache) singleflight(key string, fn func() (any, error)) (any, error) {
	c.inflightMu.Lock()
	if g, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		<-g.done
		return g.val, g.err
	}
	g := &group{done: make(chan struct{})}
	c.inflight[key] = g
	c.inflightMu.Unlock()

	g.val, g.err = fn()
	close(g.done)

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()

	return g.val, g.err
}

// WeightStats summarizes a set of relationship weights.
type WeightStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Statistics is the corpus-wide analytics snapshot (spec.md §4.2).
type Statistics struct {
	Entities struct {
		Total int            `json:"total"`
		Types map[string]int `json:"types"`
	} `json:"entities"`
	Relationships struct {
		Total      int         `json:"total"`
		WeightStats WeightStats `json:"weight_stats"`
	} `json:"relationships"`
	Communities struct {
		Total int `json:"total"`
	} `json:"communities"`
	TextUnits struct {
		Total int `json:"total"`
	} `json:"text_units"`
	GraphDensity float64 `json:"graph_density"`
}

// Statistics returns the cached corpus-wide statistics, recomputing them
// against the current generation on a cache miss.
func (c *Cache) Statistics() (Statistics, error) {
	return getOrCompute(c, "statistics", func() (Statistics, error) {
		entities := c.store.LoadEntities(nil)
		relationships := c.store.LoadRelationships()
		communities := c.store.LoadCommunities(nil)
		textUnits := c.store.LoadTextUnits()

		var stats Statistics
		stats.Entities.Total = len(entities)
		stats.Entities.Types = make(map[string]int)
		for _, e := range entities {
			stats.Entities.Types[e.Type]++
		}

		stats.Relationships.Total = len(relationships)
		stats.Relationships.WeightStats = weightStats(relationships)

		stats.Communities.Total = len(communities)
		stats.TextUnits.Total = len(textUnits)
		stats.GraphDensity = graphDensity(len(entities), len(relationships))

		return stats, nil
	})
}

// graphDensity implements spec.md §4.2: 2*|E|/(|V|*(|V|-1)) for |V|>=2, else 0.
func graphDensity(entityCount, relationshipCount int) float64 {
	if entityCount < 2 {
		return 0
	}
	return 2 * float64(relationshipCount) / (float64(entityCount) * float64(entityCount-1))
}

func weightStats(relationships []model.Relationship) WeightStats {
	if len(relationships) == 0 {
		return WeightStats{}
	}
	weights := make([]float64, len(relationships))
	for i, r := range relationships {
		weights[i] = r.Weight
	}
	sort.Float64s(weights)

	var sum float64
	min, max := weights[0], weights[0]
	for _, w := range weights {
		sum += w
		if w < min {
			min = w
		}
		if w > max {
			max = w
		}
	}

	// Lower median for even-sized sets, per spec.md §4.2.
	median := weights[(len(weights)-1)/2]

	return WeightStats{
		Min:    min,
		Max:    max,
		Mean:   sum / float64(len(weights)),
		Median: median,
	}
}

// EntityTypeCount is one row of the entity-type histogram.
type EntityTypeCount struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// EntityTypeHistogram returns entity-type counts descending by count.
func (c *Cache) EntityTypeHistogram() ([]EntityTypeCount, error) {
	return getOrCompute(c, "entity_type_histogram", func() ([]EntityTypeCount, error) {
		entities := c.store.LoadEntities(nil)
		counts := make(map[string]int)
		for _, e := range entities {
			counts[e.Type]++
		}

		total := len(entities)
		out := make([]EntityTypeCount, 0, len(counts))
		for t, n := range counts {
			pct := 0.0
			if total > 0 {
				pct = float64(n) / float64(total) * 100
			}
			out = append(out, EntityTypeCount{Type: t, Count: n, Percentage: pct})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Count == out[j].Count {
				return out[i].Type < out[j].Type
			}
			return out[i].Count > out[j].Count
		})
		return out, nil
	})
}

// TopRelationships returns the k relationships with the largest weight,
// descending by weight then ascending by source title (spec.md §4.2). k<=0
// defaults to 10.
func (c *Cache) TopRelationships(k int) ([]model.RankedRelationship, error) {
	if k <= 0 {
		k = 10
	}
	key := fmt.Sprintf("top_relationships:%d", k)
	return getOrCompute(c, key, func() ([]model.RankedRelationship, error) {
		relationships := c.store.LoadRelationships()
		sorted := make([]model.Relationship, len(relationships))
		copy(sorted, relationships)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Weight == sorted[j].Weight {
				return sorted[i].Source < sorted[j].Source
			}
			return sorted[i].Weight > sorted[j].Weight
		})
		if len(sorted) > k {
			sorted = sorted[:k]
		}
		out := make([]model.RankedRelationship, len(sorted))
		for i, r := range sorted {
			out[i] = model.RankedRelationship{Relationship: r, Rank: i + 1}
		}
		return out, nil
	})
}

// InfluenceFactor names one neighbor that contributes to an entity's
// structural importance.
type InfluenceFactor struct {
	RelatedEntity string `json:"related_entity"`
	Description   string `json:"description"`
}

// EntityAnalysis is the structural, template-generated analysis of one
// entity (spec.md §4.2). No language-model call is involved.
type EntityAnalysis struct {
	CentralityScore      int               `json:"centrality_score"`
	NormalizedCentrality float64           `json:"normalized_centrality"`
	EntityType           string            `json:"entity_type"`
	SemanticDescription  string            `json:"semantic_description"`
	InfluenceFactors     []InfluenceFactor `json:"influence_factors"`
	Analysis             string            `json:"analysis"`
}

// EntityAnalysis returns the cached structural analysis for entityID,
// recomputing on a miss. An error from the Artifact Store (NotFound,
// NotReady) is returned and memoized for the same generation like a value.
func (c *Cache) EntityAnalysis(entityID string) (EntityAnalysis, error) {
	key := "entity_analysis:" + entityID
	return getOrCompute(c, key, func() (EntityAnalysis, error) {
		entity, err := c.store.GetEntityByID(entityID)
		if err != nil {
			return EntityAnalysis{}, err
		}
		related, err := c.store.GetRelatedEntities(entityID)
		if err != nil {
			return EntityAnalysis{}, err
		}

		maxDegree := 0
		for _, e := range c.store.LoadEntities(nil) {
			if e.Degree > maxDegree {
				maxDegree = e.Degree
			}
		}
		normalized := 0.0
		if maxDegree > 0 {
			normalized = float64(entity.Degree) / float64(maxDegree)
		}

		factors := make([]InfluenceFactor, 0, len(related))
		for _, r := range related {
			factors = append(factors, InfluenceFactor{
				RelatedEntity: r.Entity.Title,
				Description:   r.Relationship.Description,
			})
		}

		return EntityAnalysis{
			CentralityScore:      entity.Degree,
			NormalizedCentrality: normalized,
			EntityType:           entity.Type,
			SemanticDescription:  entity.Description,
			InfluenceFactors:     factors,
			Analysis: fmt.Sprintf(
				"%s is a %s with %d direct connection(s), ranking %.0f%% of the most connected entity in this corpus.",
				entity.Title, entity.Type, entity.Degree, math.Round(normalized*100)),
		}, nil
	})
}
