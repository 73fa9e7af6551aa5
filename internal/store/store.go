// Package store is the Artifact Store: a read-only, typed accessor for the
// columnar graph files the external indexer publishes into the output
// directory. It hides the on-disk layout behind typed loads, joins, and a
// monotonic generation counter that readers use to detect staleness.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/agnivade/levenshtein"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
)

// requiredFiles is the set of columnar files that must all be present for a
// generation to be considered complete. Partial presence is reported as "no
// artifacts available", never as a half-formed generation (spec.md §4.1).
var requiredFiles = []string{
	"entities.csv",
	"relationships.csv",
	"communities.csv",
	"community_reports.csv",
	"text_units.csv",
	"nodes.csv",
}

// snapshot is one immutable, fully-loaded generation. Swapping the Store's
// pointer to a new snapshot is the entire "atomic generation swap": a reader
// that loaded the pointer before the swap keeps seeing the old snapshot to
// completion, and one that loads it after sees only the new snapshot - never
// a mix (spec.md §3 invariant 3, §8 "atomic generation swap").
type snapshot struct {
	generation      model.Generation
	entities        []model.Entity
	relationships   []model.Relationship
	communities     []model.Community
	textUnits       []model.TextUnit
	entityByID      map[string]model.Entity
	entitiesByTitle map[string][]model.Entity
}

// Store is the Artifact Store. The zero value is not usable; construct with
// New.
type Store struct {
	dataDir string

	current atomic.Pointer[snapshot] // nil until the first successful load

	mu             sync.Mutex // serializes Reload calls only
	lastGeneration model.Generation
	lastMTime      int64
}

// New constructs a Store bound to dataDir and performs an initial load. A
// missing or partial artifact set at startup is not an error: CurrentGeneration
// reports model.NoGeneration and reads return empty results until the first
// successful indexing run.
func New(dataDir string) (*Store, error) {
	s := &Store{dataDir: dataDir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// CurrentGeneration returns the generation currently served by reads, or
// model.NoGeneration if no complete artifact set has ever been observed.
func (s *Store) CurrentGeneration() model.Generation {
	snap := s.current.Load()
	if snap == nil {
		return model.NoGeneration
	}
	return snap.generation
}

// Reload re-discovers the artifact generation on disk and, if a complete and
// newer set of files is found, atomically publishes it. Called by the Index
// Job Supervisor after a successful indexing run, and once at startup.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	present, newestMTime, err := discoverGeneration(s.dataDir)
	if err != nil {
		return apierr.Upstreamf(err, "failed to stat artifact directory")
	}
	if !present {
		slog.Info("no artifacts available", "data_dir", s.dataDir)
		s.current.Store(nil)
		return nil
	}

	if newestMTime == s.lastMTime && s.current.Load() != nil {
		return nil // nothing changed since the last successful load
	}

	snap, err := load(s.dataDir)
	if err != nil {
		return apierr.Upstreamf(err, "failed to load artifact generation")
	}

	s.lastGeneration++
	s.lastMTime = newestMTime
	snap.generation = s.lastGeneration
	s.current.Store(snap)

	slog.Info("artifact generation loaded",
		"generation", snap.generation,
		"entities", len(snap.entities),
		"relationships", len(snap.relationships),
		"communities", len(snap.communities),
		"text_units", len(snap.textUnits))
	return nil
}

// discoverGeneration reports whether every required file is present and, if
// so, the newest modification time among them (used to detect changes).
func discoverGeneration(dataDir string) (present bool, newestMTime int64, err error) {
	count := 0
	for _, name := range requiredFiles {
		info, statErr := os.Stat(filepath.Join(dataDir, name))
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			return false, 0, statErr
		}
		count++
		if mt := info.ModTime().UnixNano(); mt > newestMTime {
			newestMTime = mt
		}
	}
	return count == len(requiredFiles), newestMTime, nil
}

// LoadEntities returns all entities in the current generation, optionally
// filtered by degree >= minDegree. A nil minDegree returns every entity.
func (s *Store) LoadEntities(minDegree *int) []model.Entity {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	if minDegree == nil {
		out := make([]model.Entity, len(snap.entities))
		copy(out, snap.entities)
		return out
	}
	out := make([]model.Entity, 0, len(snap.entities))
	for _, e := range snap.entities {
		if e.Degree >= *minDegree {
			out = append(out, e)
		}
	}
	return out
}

// LoadRelationships returns all relationships in the current generation.
func (s *Store) LoadRelationships() []model.Relationship {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]model.Relationship, len(snap.relationships))
	copy(out, snap.relationships)
	return out
}

// LoadCommunities returns communities sorted by rank descending, optionally
// filtered to level <= maxLevel.
func (s *Store) LoadCommunities(maxLevel *int) []model.Community {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]model.Community, 0, len(snap.communities))
	for _, c := range snap.communities {
		if maxLevel == nil || c.Level <= *maxLevel {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out
}

// LoadTextUnits returns all text units in the current generation.
func (s *Store) LoadTextUnits() []model.TextUnit {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]model.TextUnit, len(snap.textUnits))
	copy(out, snap.textUnits)
	return out
}

// GetEntityByID returns the entity with the given ID, or a NotFound error
// carrying a "did you mean" suggestion: the entity ID in the current
// generation closest to id by Levenshtein distance.
func (s *Store) GetEntityByID(id string) (model.Entity, error) {
	snap := s.current.Load()
	if snap == nil {
		return model.Entity{}, apierr.NotReadyf("no artifact generation available")
	}
	e, ok := snap.entityByID[id]
	if !ok {
		return model.Entity{}, apierr.NotFoundf("entity %q not found%s", id, suggestSuffix(id, snap))
	}
	return e, nil
}

func suggestSuffix(id string, snap *snapshot) string {
	if len(snap.entities) == 0 {
		return ""
	}
	best := ""
	bestDist := -1
	for _, e := range snap.entities {
		d := levenshtein.ComputeDistance(id, e.ID)
		if bestDist == -1 || d < bestDist {
			bestDist, best = d, e.ID
		}
	}
	if bestDist >= 0 {
		return fmt.Sprintf(" (did you mean %q?)", best)
	}
	return ""
}

// RelatedEntity pairs a 1-hop neighbor with the relationship connecting it to
// the queried entity.
type RelatedEntity struct {
	Entity       model.Entity
	Relationship model.Relationship
}

// GetRelatedEntities returns the 1-hop neighborhood of entityID: every
// relationship touching the entity's title, joined back to the neighbor
// entity by title. When a title resolves to multiple entities, the one with
// the largest degree wins, tie-broken by the lexicographically smallest ID
// (spec.md §4.1 "Joins").
func (s *Store) GetRelatedEntities(entityID string) ([]RelatedEntity, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apierr.NotReadyf("no artifact generation available")
	}
	center, ok := snap.entityByID[entityID]
	if !ok {
		return nil, apierr.NotFoundf("entity %q not found%s", entityID, suggestSuffix(entityID, snap))
	}

	var out []RelatedEntity
	for _, r := range snap.relationships {
		var neighborTitle string
		switch {
		case r.Source == center.Title:
			neighborTitle = r.Target
		case r.Target == center.Title:
			neighborTitle = r.Source
		default:
			continue
		}
		neighbor, ok := resolveByTitle(snap, neighborTitle)
		if !ok {
			continue
		}
		out = append(out, RelatedEntity{Entity: neighbor, Relationship: r})
	}
	return out, nil
}

// resolveByTitle picks the best entity for a title per the tie-break rule in
// GetRelatedEntities' doc comment.
func resolveByTitle(snap *snapshot, title string) (model.Entity, bool) {
	candidates, ok := snap.entitiesByTitle[title]
	if !ok || len(candidates) == 0 {
		return model.Entity{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Degree > best.Degree || (c.Degree == best.Degree && c.ID < best.ID) {
			best = c
		}
	}
	return best, true
}
