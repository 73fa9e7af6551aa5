package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/store"
)

type fakeChat struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeChat) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestGateway(t *testing.T, chat Chat) (*Gateway, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "entities.csv", "id,title,type,description\n"+
		"e1,Alice,PERSON,a person who leads the project\n"+
		"e2,Bob,PERSON,another person\n")
	writeFile(t, dir, "nodes.csv", "id,human_readable_id,degree\ne1,1,2\ne2,2,1\n")
	writeFile(t, dir, "relationships.csv", "id,source,target,description,weight,human_readable_id\n"+
		"r1,Alice,Bob,mentors,1.5,1\n")
	writeFile(t, dir, "communities.csv", "id,title,level\nc1,Project Overview,0\n")
	writeFile(t, dir, "community_reports.csv", "id,rank,rating,summary,full_content,rank_explanation,findings\n"+
		`c1,5.0,3.2,the project is about knowledge graphs,full text,because,"[]"`+"\n")
	writeFile(t, dir, "text_units.csv", "id,text,n_tokens,entity_ids\n"+
		"t1,Alice founded the project in 2020.,8,e1\n")

	s, err := store.New(dir)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return &Gateway{store: s, chat: chat, timeout: 5 * time.Second}, s
}

func TestGlobalSearchEmptyQueryRejected(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{response: "ok"})
	_, err := g.GlobalSearch(context.Background(), "   ", 2, "")
	if apierr.KindOf(err) != apierr.Validation {
		t.Fatalf("KindOf(err) = %v, want Validation", apierr.KindOf(err))
	}
}

func TestGlobalSearchNotReadyWithoutGeneration(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{response: "ok"})
	// Point the gateway at a store with no artifacts at all.
	emptyDir := t.TempDir()
	s, err := store.New(emptyDir)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	g.store = s

	_, err = g.GlobalSearch(context.Background(), "what is this about", 2, "")
	if apierr.KindOf(err) != apierr.NotReady {
		t.Fatalf("KindOf(err) = %v, want NotReady", apierr.KindOf(err))
	}
}

func TestGlobalSearchReturnsChatResponse(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{response: "this corpus is about a project"})

	result, err := g.GlobalSearch(context.Background(), "what is this about?", 2, "")
	if err != nil {
		t.Fatalf("GlobalSearch() error = %v", err)
	}
	if result.Response != "this corpus is about a project" {
		t.Fatalf("Response = %q", result.Response)
	}
}

func TestLocalSearchFindsEntityAndNeighbors(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{response: "Alice leads the project"})

	result, err := g.LocalSearch(context.Background(), "Alice", 2, "")
	if err != nil {
		t.Fatalf("LocalSearch() error = %v", err)
	}
	if result.Response != "Alice leads the project" {
		t.Fatalf("Response = %q", result.Response)
	}
	ctxMap, ok := result.Context.(map[string]any)
	if !ok {
		t.Fatalf("Context = %T, want map[string]any", result.Context)
	}
	if ctxMap["entity"] != "Alice" {
		t.Fatalf("Context[entity] = %v, want Alice", ctxMap["entity"])
	}
	if ctxMap["related"] != 1 {
		t.Fatalf("Context[related] = %v, want 1 (Bob)", ctxMap["related"])
	}
}

func TestCompleteTranslatesDeadlineExceeded(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{delay: 50 * time.Millisecond})
	g.timeout = 10 * time.Millisecond

	_, err := g.complete(context.Background(), "prompt")
	if apierr.KindOf(err) != apierr.Timeout {
		t.Fatalf("KindOf(err) = %v, want Timeout", apierr.KindOf(err))
	}
}

func TestCompleteWrapsUpstreamError(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{err: errors.New("connection refused")})

	_, err := g.complete(context.Background(), "prompt")
	if apierr.KindOf(err) != apierr.Upstream {
		t.Fatalf("KindOf(err) = %v, want Upstream", apierr.KindOf(err))
	}
}

func TestSuggestionsIncludesTopEntities(t *testing.T) {
	g, _ := newTestGateway(t, &fakeChat{response: "ok"})

	suggestions := g.Suggestions()
	if len(suggestions) < 3 {
		t.Fatalf("len(suggestions) = %d, want at least 3", len(suggestions))
	}
	if len(suggestions) != 5 || suggestions[3] != "Tell me about Alice." || suggestions[4] != "Tell me about Bob." {
		t.Fatalf("suggestions = %q, want the two top-degree entities Alice then Bob appended", suggestions)
	}
}
