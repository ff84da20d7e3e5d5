package steps

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

func routeState(query string) *QueryState {
	return &QueryState{
		GroupID:      "g1",
		Text:         query,
		Embedding:    []float32{1, 0},
		TokenBudget:  32000,
		ResponseType: domain.ResponseSummary,
		Debug:        true,
	}
}

func TestVectorRouteCapsTokenBudget(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"c1": {ChunkID: "c1", DocID: "d1", Text: longTextA, Embedding: []float32{1, 0}},
	}
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "c1", Score: 1}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)
	deps.Cfg.VectorTokenBudget = 10

	res, err := RunVectorRoute(context.Background(), deps, routeState("What is the notice period?"))
	if err != nil {
		t.Fatalf("RunVectorRoute: %v", err)
	}
	if res.Context.TotalTokens > deps.Cfg.VectorTokenBudget {
		t.Fatalf("vector route must honor its own budget: %d > %d",
			res.Context.TotalTokens, deps.Cfg.VectorTokenBudget)
	}
}

func TestLocalRouteFallsBackToHybridWithoutSeeds(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"c1": {ChunkID: "c1", DocID: "d1", Text: longTextB, Embedding: []float32{1, 0}},
	}
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "c1", Score: 1}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)

	res, err := RunLocalRoute(context.Background(), deps, routeState("what does the vendor owe here"))
	if err != nil {
		t.Fatalf("RunLocalRoute: %v", err)
	}
	if len(res.Context.Candidates) != 1 || res.Context.Candidates[0].ChunkID != "c1" {
		t.Fatalf("seedless local route should fall back to hybrid evidence, got %+v", res.Context.Candidates)
	}
}

func TestLocalRouteTracesFromSeeds(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"c1": {ChunkID: "c1", DocID: "d1", SectionID: "s1", Text: longTextA, Embedding: []float32{1, 0}},
	}
	store := &fakeStore{
		entitiesByName: func(_ string, names []string) ([]domain.Entity, error) {
			return []domain.Entity{{EntityID: "e1", Name: "Acme Corp", Embedding: []float32{1, 0}}}, nil
		},
		ppr: func(_ string, seeds map[string]float64) ([]domain.ScoredEntity, error) {
			if seeds["e1"] != 1.0 {
				t.Fatalf("name-matched seed should weigh 1.0, got %v", seeds)
			}
			return []domain.ScoredEntity{{EntityID: "e1", Score: 1.0}, {EntityID: "e2", Score: 0.3}}, nil
		},
		fetchEntities: func(_ string, ids []string) ([]domain.Entity, error) {
			return []domain.Entity{
				{EntityID: "e1", Name: "Acme Corp"},
				{EntityID: "e2", Name: "Beta Logistics"},
			}, nil
		},
		mentions: func(_ string, _ []string, _ int) ([]domain.MentionHit, error) {
			return []domain.MentionHit{{EntityName: "Acme Corp", ChunkID: "c1"}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)

	res, err := RunLocalRoute(context.Background(), deps, routeState("Who is Acme Corp?"))
	if err != nil {
		t.Fatalf("RunLocalRoute: %v", err)
	}
	if len(res.Context.Candidates) != 1 {
		t.Fatalf("expected the mentioned chunk, got %+v", res.Context.Candidates)
	}
	if len(res.Evidence) != 2 || res.Evidence[0].EntityID != "e1" {
		t.Fatalf("evidence should carry the traced entities, got %+v", res.Evidence)
	}
}

func TestIdentifySeedsMergesBothLegs(t *testing.T) {
	store := &fakeStore{
		entitiesByName: func(_ string, names []string) ([]domain.Entity, error) {
			return []domain.Entity{{EntityID: "e1", Name: "Acme Corp", Embedding: []float32{1, 0}}}, nil
		},
		vectorEntities: func(_ string, _ int) ([]domain.Entity, error) {
			return []domain.Entity{
				{EntityID: "e1", Name: "Acme Corp", Embedding: []float32{1, 0}},
				{EntityID: "e2", Name: "Beta Logistics", Embedding: []float32{0.6, 0.8}},
			}, nil
		},
	}
	deps := testDeps(store)

	seeds := identifySeeds(context.Background(), deps, "g1", "Who is Acme Corp?", []float32{1, 0})
	if seeds["e1"] != 1.0 {
		t.Fatalf("name match must outrank the vector score, got %v", seeds["e1"])
	}
	if math.Abs(seeds["e2"]-0.6) > 1e-6 {
		t.Fatalf("vector-only seed should carry its cosine, got %v", seeds["e2"])
	}
}

func TestGlobalRouteCoverageGapFill(t *testing.T) {
	summary := "Contracts and invoices covering logistics services."
	chunks := map[string]domain.TextChunk{
		"c1": {ChunkID: "c1", DocID: "d1", Text: longTextA, Embedding: []float32{1, 0}},
	}
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "c1", Score: 1}}, nil
		},
		fetchChunks: chunkStore(chunks),
		communities: func(_ string) ([]domain.Community, error) {
			return []domain.Community{{
				CommunityID:       "com-1",
				Title:             "Logistics",
				Summary:           summary,
				SummaryEmbedding:  []float32{1, 0},
				MemberEntityIDs:   []string{"e1", "e2"},
				EmbeddingTextHash: textutil.HashText(summary),
			}}, nil
		},
		fetchEntities: func(_ string, _ []string) ([]domain.Entity, error) {
			return nil, nil
		},
		leadChunks: func(_ string) ([]domain.TextChunk, error) {
			return []domain.TextChunk{
				{ChunkID: "c1", DocID: "d1", Text: longTextA, Lead: true},
				{ChunkID: "lead-d2", DocID: "d2", Text: longTextC, Lead: true, Embedding: []float32{1, 0}},
			}, nil
		},
	}
	deps := testDeps(store)

	res, err := RunGlobalRoute(context.Background(), deps, routeState("Summarize each document in this group"))
	if err != nil {
		t.Fatalf("RunGlobalRoute: %v", err)
	}
	if res.Context.CommunityPreamble == "" {
		t.Fatalf("matched communities must appear as the preamble")
	}
	docs := map[string]bool{}
	for _, c := range res.Context.Candidates {
		docs[c.DocID] = true
	}
	if !docs["d2"] {
		t.Fatalf("missing document's lead chunk was not gap-filled: %+v", res.Context.Candidates)
	}
}

func TestDriftRouteMergesSubQuestionPools(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"inv-1": {ChunkID: "inv-1", DocID: "d-inv", Text: longTextB, Embedding: []float32{1, 0}},
		"con-1": {ChunkID: "con-1", DocID: "d-con", Text: longTextA, Embedding: []float32{1, 0}},
	}
	store := &fakeStore{
		bm25Chunks: func(_ string, queryText string, _ int) ([]domain.ScoredChunk, error) {
			if strings.Contains(queryText, "invoice") {
				return []domain.ScoredChunk{{ChunkID: "inv-1", Score: 1}}, nil
			}
			return []domain.ScoredChunk{{ChunkID: "con-1", Score: 1}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)
	deps.LLM = &fakeLLM{jsonFn: func(_, _, schemaName string) (map[string]any, error) {
		if schemaName != "sub_questions" {
			return nil, nil
		}
		return map[string]any{"sub_questions": []any{"Which contract does it reference?"}}, nil
	}}

	res, err := RunDriftRoute(context.Background(), deps, routeState("Trace the connection from the invoice onward"))
	if err != nil {
		t.Fatalf("RunDriftRoute: %v", err)
	}
	docs := map[string]bool{}
	for _, c := range res.Context.Candidates {
		docs[c.DocID] = true
	}
	if !docs["d-inv"] || !docs["d-con"] {
		t.Fatalf("pool should span both sub-questions' documents, got %+v", res.Context.Candidates)
	}
	subQs, _ := res.Trace["sub_questions"].([]string)
	if len(subQs) != 2 || subQs[0] != "Trace the connection from the invoice onward" {
		t.Fatalf("original question must lead the sub-question list, got %v", subQs)
	}
}
