// Package search is the Search Gateway: it adapts the corpus held by the
// Artifact Store into a cancellable, bounded HTTP-facing search API. Global
// search reasons over community reports; local search reasons over one
// entity's neighborhood and text units. Both draft their final answer with a
// chat-completion call against a locally hosted, OpenAI-compatible inference
// server, keeping the same external contract an actual graph-retrieval
// library would expose without depending on one.
package search

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/toon-format/toon-go"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
	"github.com/localgraph/kg-backend/internal/store"
)

const defaultResponseType = "Multiple Paragraphs"

// Chat is the minimal chat-completion surface Search Gateway depends on,
// satisfied by *openai.LLM. Tests substitute a fake.
type Chat interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// Config configures the Search Gateway's chat-completion client.
type Config struct {
	Model          string
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Gateway is the Search Gateway. The zero value is not usable; construct
// with New.
type Gateway struct {
	store   *store.Store
	chat    Chat
	timeout time.Duration
}

// New constructs a Gateway. A non-empty cfg.APIKey is not required by every
// OpenAI-compatible local server, so New tolerates an empty one.
func New(s *store.Store, cfg Config) (*Gateway, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	} else if os.Getenv("OPENAI_API_KEY") == "" {
		// openai.New refuses to build a client without a token; servers that
		// need no key ignore this placeholder.
		opts = append(opts, openai.WithToken("unused"))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, apierr.Internalf(err, "failed to create search chat client")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &Gateway{store: s, chat: client, timeout: timeout}, nil
}

// Result is the response shape shared by GlobalSearch and LocalSearch.
type Result struct {
	Response string `json:"response"`
	Context  any    `json:"context,omitempty"`
}

func validateQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", apierr.Validationf("query must not be empty")
	}
	return trimmed, nil
}

func (g *Gateway) requireGeneration() error {
	if g.store.CurrentGeneration() == model.NoGeneration {
		return apierr.NotReadyf("no artifact generation available yet")
	}
	return nil
}

// GlobalSearch answers a query by reasoning over community reports at or
// below communityLevel, the graph's thematic summary.
func (g *Gateway) GlobalSearch(ctx context.Context, query string, communityLevel int, responseType string) (Result, error) {
	query, err := validateQuery(query)
	if err != nil {
		return Result{}, err
	}
	if err := g.requireGeneration(); err != nil {
		return Result{}, err
	}
	if responseType == "" {
		responseType = defaultResponseType
	}

	communities := g.store.LoadCommunities(&communityLevel)
	if len(communities) > 10 {
		communities = communities[:10]
	}

	type communityContext struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	reports := make([]communityContext, len(communities))
	for i, c := range communities {
		reports[i] = communityContext{Title: c.Title, Summary: c.Summary}
	}

	prompt := fmt.Sprintf(
		"You are analyzing a knowledge graph. Using only the community summaries below, answer the question in the style: %s.\n\nQuestion: %s\n\nCommunity summaries (TOON):\n%s",
		responseType, query, marshalTOON(reports))

	response, err := g.complete(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	return Result{Response: response, Context: map[string]any{"communities": communitySummaries(communities)}}, nil
}

// LocalSearch answers a query by reasoning over the best-matching entity's
// 1-hop neighborhood and text units.
func (g *Gateway) LocalSearch(ctx context.Context, query string, communityLevel int, responseType string) (Result, error) {
	query, err := validateQuery(query)
	if err != nil {
		return Result{}, err
	}
	if err := g.requireGeneration(); err != nil {
		return Result{}, err
	}
	if responseType == "" {
		responseType = defaultResponseType
	}

	entity, ok := g.bestMatchingEntity(query)
	if !ok {
		return Result{}, apierr.NotFoundf("no entity in the current generation matches %q", query)
	}

	related, err := g.store.GetRelatedEntities(entity.ID)
	if err != nil {
		return Result{}, err
	}

	textUnits := g.store.LoadTextUnits()
	var relevantText []model.TextUnit
	for _, tu := range textUnits {
		for _, id := range tu.EntityIDs {
			if id == entity.ID {
				relevantText = append(relevantText, tu)
				break
			}
		}
	}

	type neighbor struct {
		Title        string `json:"title"`
		Relationship string `json:"relationship"`
	}
	type localContext struct {
		Entity      string     `json:"entity"`
		Type        string     `json:"type"`
		Description string     `json:"description"`
		Related     []neighbor `json:"related"`
		SourceText  []string   `json:"source_text"`
	}

	neighbors := make([]neighbor, len(related))
	for i, r := range related {
		neighbors[i] = neighbor{Title: r.Entity.Title, Relationship: r.Relationship.Description}
	}
	sourceText := make([]string, len(relevantText))
	for i, tu := range relevantText {
		sourceText[i] = tu.Text
	}

	localCtx := localContext{
		Entity:      entity.Title,
		Type:        entity.Type,
		Description: entity.Description,
		Related:     neighbors,
		SourceText:  sourceText,
	}

	prompt := fmt.Sprintf(
		"You are analyzing a knowledge graph. Using only the context below, answer the question in the style: %s.\n\nQuestion: %s\n\nContext (TOON):\n%s",
		responseType, query, marshalTOON(localCtx))

	response, err := g.complete(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Response: response,
		Context: map[string]any{
			"entity":     entity.Title,
			"related":    len(related),
			"text_units": len(relevantText),
		},
	}, nil
}

// complete runs one chat-completion call bounded by the Gateway's configured
// timeout, translating a context deadline into a distinct timeout error-kind
// (spec.md §4.5 "Semantics").
func (g *Gateway) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	response, err := g.chat.Call(callCtx, prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", apierr.Timeoutf("search request exceeded its %s deadline", g.timeout)
		}
		return "", apierr.Upstreamf(err, "search chat completion failed")
	}
	return response, nil
}

// bestMatchingEntity picks the entity whose lowercased title is closest to
// the lowercased query by Levenshtein distance, over all entities; a title
// that appears as a substring of the query has its length subtracted from
// its distance. It reports false only when the generation has no entities.
func (g *Gateway) bestMatchingEntity(query string) (model.Entity, bool) {
	entities := g.store.LoadEntities(nil)
	if len(entities) == 0 {
		return model.Entity{}, false
	}

	lowerQuery := strings.ToLower(query)
	best := entities[0]
	bestDist := -1
	for _, e := range entities {
		d := levenshtein.ComputeDistance(lowerQuery, strings.ToLower(e.Title))
		if strings.Contains(lowerQuery, strings.ToLower(e.Title)) {
			d -= len(e.Title) // favor exact substring matches strongly
		}
		if bestDist == -1 || d < bestDist {
			bestDist, best = d, e
		}
	}
	return best, true
}

// marshalTOON renders a retrieval context as TOON, a more token-efficient
// encoding than JSON for the tabular shapes the Search Gateway builds.
// Marshal failures degrade to a human-readable error rather than aborting
// the search, matching the teacher's own TOON helper.
func marshalTOON(data any) string {
	out, err := toon.MarshalString(data, toon.WithLengthMarkers(true))
	if err != nil {
		return fmt.Sprintf("error: failed to marshal context to TOON: %v", err)
	}
	return out
}

func communitySummaries(communities []model.Community) []string {
	out := make([]string, len(communities))
	for i, c := range communities {
		out[i] = c.Title
	}
	return out
}

// Suggestions returns prompts the UI can offer as search starting points:
// three static prompts followed by one "Tell me about ..." prompt for each of
// the (at most) two highest-degree entities (spec.md §4.5 "lightly derived
// prompts").
func (g *Gateway) Suggestions() []string {
	suggestions := []string{
		"What are the main themes in this corpus?",
		"Summarize the most connected entities.",
		"What relationships exist between the top organizations?",
	}

	entities := g.store.LoadEntities(nil)
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Degree > entities[j].Degree })
	for i, e := range entities {
		if i >= 2 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("Tell me about %s.", e.Title))
	}
	return suggestions
}
