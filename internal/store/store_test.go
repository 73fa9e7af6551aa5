package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func seedMinimalGeneration(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "entities.csv", "id,title,type,description\n"+
		"e1,Alice,PERSON,a person\n"+
		"e2,Bob,PERSON,another person\n"+
		"e3,Acme,ORGANIZATION,a company\n")
	writeFile(t, dir, "nodes.csv", "id,human_readable_id,degree\n"+
		"e1,1,2\n"+
		"e2,2,1\n"+
		"e3,3,1\n")
	writeFile(t, dir, "relationships.csv", "id,source,target,description,weight,human_readable_id\n"+
		"r1,Alice,Bob,knows,1.5,1\n"+
		"r2,Alice,Acme,works at,2.5,2\n")
	writeFile(t, dir, "communities.csv", "id,title,level\n"+
		"c1,Community 1,0\n")
	writeFile(t, dir, "community_reports.csv", "id,rank,rating,summary,full_content,rank_explanation,findings\n"+
		`c1,5.0,3.2,a summary,full text,because,"[""plain string finding"", {""summary"":""s"",""explanation"":""e""}]"`+"\n")
	writeFile(t, dir, "text_units.csv", "id,text,n_tokens,entity_ids\n"+
		"t1,some text,10,e1;e2\n")
}

func TestNoArtifactsIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.CurrentGeneration(); got != model.NoGeneration {
		t.Fatalf("CurrentGeneration() = %v, want NoGeneration", got)
	}
	if entities := s.LoadEntities(nil); len(entities) != 0 {
		t.Fatalf("LoadEntities() = %v, want empty", entities)
	}
}

func TestPartialArtifactsIsNotAGeneration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "entities.csv", "id,title,type,description\ne1,Alice,PERSON,x\n")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.CurrentGeneration(); got != model.NoGeneration {
		t.Fatalf("CurrentGeneration() = %v, want NoGeneration with only one file present", got)
	}
}

func TestLoadEntitiesAndFindings(t *testing.T) {
	dir := t.TempDir()
	seedMinimalGeneration(t, dir)
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.CurrentGeneration(); got == model.NoGeneration {
		t.Fatalf("CurrentGeneration() = NoGeneration, want a real generation")
	}

	entities := s.LoadEntities(nil)
	if len(entities) != 3 {
		t.Fatalf("LoadEntities() len = %d, want 3", len(entities))
	}

	minDeg := 2
	filtered := s.LoadEntities(&minDeg)
	if len(filtered) != 1 || filtered[0].ID != "e1" {
		t.Fatalf("LoadEntities(minDegree=2) = %+v, want only e1", filtered)
	}

	communities := s.LoadCommunities(nil)
	if len(communities) != 1 {
		t.Fatalf("LoadCommunities() len = %d, want 1", len(communities))
	}
	findings := communities[0].Findings
	if len(findings) != 2 {
		t.Fatalf("findings len = %d, want 2", len(findings))
	}
	if findings[0].Summary != "plain string finding" || findings[0].Explanation != "" {
		t.Fatalf("findings[0] = %+v", findings[0])
	}
	if findings[1].Summary != "s" || findings[1].Explanation != "e" {
		t.Fatalf("findings[1] = %+v", findings[1])
	}
}

func TestGetEntityByIDNotFound(t *testing.T) {
	dir := t.TempDir()
	seedMinimalGeneration(t, dir)
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := s.GetEntityByID("e1"); err != nil {
		t.Fatalf("GetEntityByID(e1) error = %v", err)
	}

	_, err = s.GetEntityByID("e1x")
	if err == nil {
		t.Fatal("GetEntityByID(e1x) error = nil, want NotFound")
	}
	if apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("KindOf(err) = %v, want NotFound", apierr.KindOf(err))
	}
}

func TestGetRelatedEntities(t *testing.T) {
	dir := t.TempDir()
	seedMinimalGeneration(t, dir)
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	related, err := s.GetRelatedEntities("e1")
	if err != nil {
		t.Fatalf("GetRelatedEntities() error = %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("GetRelatedEntities() len = %d, want 2", len(related))
	}
}

func TestResolveByTitleTieBreak(t *testing.T) {
	snap := &snapshot{
		entitiesByTitle: map[string][]model.Entity{
			"Dup": {
				{ID: "z1", Title: "Dup", Degree: 3},
				{ID: "a1", Title: "Dup", Degree: 3},
				{ID: "b1", Title: "Dup", Degree: 5},
			},
		},
	}
	e, ok := resolveByTitle(snap, "Dup")
	if !ok {
		t.Fatal("resolveByTitle() ok = false")
	}
	if e.ID != "b1" {
		t.Fatalf("resolveByTitle() = %+v, want highest degree b1", e)
	}

	snap2 := &snapshot{
		entitiesByTitle: map[string][]model.Entity{
			"Dup": {
				{ID: "z1", Title: "Dup", Degree: 3},
				{ID: "a1", Title: "Dup", Degree: 3},
			},
		},
	}
	e2, ok := resolveByTitle(snap2, "Dup")
	if !ok || e2.ID != "a1" {
		t.Fatalf("resolveByTitle() tie-break = %+v, want smallest id a1", e2)
	}
}

func TestReloadIsIdempotentWithoutChanges(t *testing.T) {
	dir := t.TempDir()
	seedMinimalGeneration(t, dir)
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first := s.CurrentGeneration()
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if s.CurrentGeneration() != first {
		t.Fatalf("Reload() without file changes bumped generation from %v to %v", first, s.CurrentGeneration())
	}
}
