package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/localgraph/kg-backend/internal/model"
)

// load reads every required file in dataDir and builds a fully-joined
// snapshot. Missing numeric fields are treated as 0 and missing strings as
// empty (spec.md §4.1 "Numeric semantics"); no CSV cell is ever left as the
// literal string "nan" in the loaded model.
func load(dataDir string) (*snapshot, error) {
	entities, err := loadEntities(filepath.Join(dataDir, "entities.csv"))
	if err != nil {
		return nil, fmt.Errorf("entities.csv: %w", err)
	}
	nodeDegrees, nodeHRIDs, err := loadNodes(filepath.Join(dataDir, "nodes.csv"))
	if err != nil {
		return nil, fmt.Errorf("nodes.csv: %w", err)
	}
	for i, e := range entities {
		if d, ok := nodeDegrees[e.ID]; ok {
			entities[i].Degree = d
		}
		if hrid, ok := nodeHRIDs[e.ID]; ok && e.HumanReadableID == "" {
			entities[i].HumanReadableID = hrid
		}
	}

	relationships, err := loadRelationships(filepath.Join(dataDir, "relationships.csv"), entities)
	if err != nil {
		return nil, fmt.Errorf("relationships.csv: %w", err)
	}

	communities, err := loadCommunities(
		filepath.Join(dataDir, "communities.csv"),
		filepath.Join(dataDir, "community_reports.csv"),
	)
	if err != nil {
		return nil, fmt.Errorf("communities: %w", err)
	}

	textUnits, err := loadTextUnits(filepath.Join(dataDir, "text_units.csv"))
	if err != nil {
		return nil, fmt.Errorf("text_units.csv: %w", err)
	}

	snap := &snapshot{
		entities:        entities,
		relationships:   relationships,
		communities:     communities,
		textUnits:       textUnits,
		entityByID:      make(map[string]model.Entity, len(entities)),
		entitiesByTitle: make(map[string][]model.Entity, len(entities)),
	}
	for _, e := range entities {
		snap.entityByID[e.ID] = e
		snap.entitiesByTitle[e.Title] = append(snap.entitiesByTitle[e.Title], e)
	}
	return snap, nil
}

// readCSV opens path and returns its header and data rows. A missing file
// yields an error; callers only invoke this after discoverGeneration has
// already confirmed presence of every required file.
func readCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// colIndex builds a column-name to index map for a CSV header.
func colIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	if strings.EqualFold(strings.TrimSpace(row[i]), "nan") {
		return ""
	}
	return row[i]
}

func cellFloat(row []string, idx map[string]int, col string) float64 {
	raw := strings.TrimSpace(cell(row, idx, col))
	if raw == "" || strings.EqualFold(raw, "nan") {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func cellInt(row []string, idx map[string]int, col string) int {
	raw := strings.TrimSpace(cell(row, idx, col))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// splitList parses a semicolon-separated list cell, the on-disk convention
// this indexer uses for flat string-list columns (e.g. a text unit's entity
// IDs). Empty cells yield an empty, non-nil slice.
func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadEntities(path string) ([]model.Entity, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx := colIndex(header)
	out := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Entity{
			ID:              cell(row, idx, "id"),
			HumanReadableID: cell(row, idx, "human_readable_id"),
			Title:           cell(row, idx, "title"),
			Type:            cell(row, idx, "type"),
			Description:     cell(row, idx, "description"),
		})
	}
	return out, nil
}

// loadNodes reads the per-generation node attribute table, returning degree
// and human-readable-id keyed by entity id. This table is the authoritative
// source of degree, mirroring the indexer's own layout where centrality is
// computed once over the node projection rather than duplicated per entity.
func loadNodes(path string) (degree map[string]int, humanReadableID map[string]string, err error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	idx := colIndex(header)
	degree = make(map[string]int, len(rows))
	humanReadableID = make(map[string]string, len(rows))
	for _, row := range rows {
		id := cell(row, idx, "id")
		if id == "" {
			continue
		}
		degree[id] = cellInt(row, idx, "degree")
		if hrid := cell(row, idx, "human_readable_id"); hrid != "" {
			humanReadableID[id] = hrid
		}
	}
	return degree, humanReadableID, nil
}

func loadRelationships(path string, entities []model.Entity) ([]model.Relationship, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	degreeByTitle := make(map[string]int, len(entities))
	for _, e := range entities {
		if e.Degree > degreeByTitle[e.Title] {
			degreeByTitle[e.Title] = e.Degree
		}
	}

	idx := colIndex(header)
	out := make([]model.Relationship, 0, len(rows))
	for _, row := range rows {
		source := cell(row, idx, "source")
		target := cell(row, idx, "target")
		out = append(out, model.Relationship{
			ID:              cell(row, idx, "id"),
			Source:          source,
			Target:          target,
			Description:     cell(row, idx, "description"),
			Weight:          cellFloat(row, idx, "weight"),
			SourceDegree:    degreeByTitle[source],
			TargetDegree:    degreeByTitle[target],
			HumanReadableID: cell(row, idx, "human_readable_id"),
		})
	}
	return out, nil
}

func loadCommunities(communitiesPath, reportsPath string) ([]model.Community, error) {
	header, rows, err := readCSV(communitiesPath)
	if err != nil {
		return nil, err
	}
	idx := colIndex(header)

	reports, err := loadCommunityReports(reportsPath)
	if err != nil {
		return nil, err
	}

	out := make([]model.Community, 0, len(rows))
	for _, row := range rows {
		id := cell(row, idx, "id")
		c := model.Community{
			ID:    id,
			Title: cell(row, idx, "title"),
			Level: cellInt(row, idx, "level"),
			Rank:  cellFloat(row, idx, "rank"),
		}
		if report, ok := reports[id]; ok {
			c.Rank = report.rank
			c.Rating = report.rating
			c.Summary = report.summary
			c.FullContent = report.fullContent
			c.RankExplanation = report.rankExplanation
			c.Findings = report.findings
		}
		out = append(out, c)
	}
	return out, nil
}

type communityReport struct {
	rank            float64
	rating          float64
	summary         string
	fullContent     string
	rankExplanation string
	findings        []model.Finding
}

func loadCommunityReports(path string) (map[string]communityReport, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx := colIndex(header)
	out := make(map[string]communityReport, len(rows))
	for _, row := range rows {
		id := cell(row, idx, "id")
		if id == "" {
			continue
		}
		findings, err := normalizeFindings(cell(row, idx, "findings"))
		if err != nil {
			return nil, fmt.Errorf("community %s: %w", id, err)
		}
		out[id] = communityReport{
			rank:            cellFloat(row, idx, "rank"),
			rating:          cellFloat(row, idx, "rating"),
			summary:         cell(row, idx, "summary"),
			fullContent:     cell(row, idx, "full_content"),
			rankExplanation: cell(row, idx, "rank_explanation"),
			findings:        findings,
		}
	}
	return out, nil
}

// normalizeFindings parses the findings cell, a JSON array whose elements
// are either bare strings or {"summary","explanation"} objects (spec.md §9
// Open Question), and normalizes both shapes to []model.Finding.
func normalizeFindings(raw string) ([]model.Finding, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []model.Finding{}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, fmt.Errorf("invalid findings JSON: %w", err)
	}

	out := make([]model.Finding, 0, len(elements))
	for _, elem := range elements {
		var asString string
		if err := json.Unmarshal(elem, &asString); err == nil {
			out = append(out, model.Finding{Summary: asString})
			continue
		}
		var asObject model.Finding
		if err := json.Unmarshal(elem, &asObject); err != nil {
			return nil, fmt.Errorf("finding is neither a string nor an object: %w", err)
		}
		out = append(out, asObject)
	}
	return out, nil
}

func loadTextUnits(path string) ([]model.TextUnit, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx := colIndex(header)
	out := make([]model.TextUnit, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.TextUnit{
			ID:        cell(row, idx, "id"),
			Text:      cell(row, idx, "text"),
			NTokens:   cellInt(row, idx, "n_tokens"),
			EntityIDs: splitList(cell(row, idx, "entity_ids")),
		})
	}
	return out, nil
}
