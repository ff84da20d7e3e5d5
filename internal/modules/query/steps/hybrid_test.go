package steps

import (
	"context"
	"fmt"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

func chunkStore(byID map[string]domain.TextChunk) func(string, []string) ([]domain.TextChunk, error) {
	return func(_ string, ids []string) ([]domain.TextChunk, error) {
		out := make([]domain.TextChunk, len(ids))
		for i, id := range ids {
			if ch, ok := byID[id]; ok {
				ch.Found = true
				out[i] = ch
			} else {
				out[i] = domain.TextChunk{ChunkID: id}
			}
		}
		return out, nil
	}
}

func TestRunHybridRRFFusion(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"a": {ChunkID: "a", DocID: "d1", Text: longTextA},
		"b": {ChunkID: "b", DocID: "d2", Text: longTextB},
		"c": {ChunkID: "c", DocID: "d3", Text: longTextC},
	}
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "a", Score: 0.9}, {ChunkID: "b", Score: 0.8}}, nil
		},
		bm25Chunks: func(_ string, _ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "b", Score: 3.0}, {ChunkID: "c", Score: 1.0}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)

	cands, err := RunHybrid(context.Background(), deps, "g1", "termination terms", []float32{1, 0})
	if err != nil {
		t.Fatalf("RunHybrid: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(cands))
	}
	// b appears in both lists: 1/62 + 1/61 beats a's 1/61 and c's 1/62.
	if cands[0].ChunkID != "b" || cands[1].ChunkID != "a" || cands[2].ChunkID != "c" {
		t.Fatalf("unexpected fused order: %s, %s, %s", cands[0].ChunkID, cands[1].ChunkID, cands[2].ChunkID)
	}
	// Source is the list that ranked the chunk higher.
	if cands[0].Sources[0] != domain.SourceBM25 {
		t.Fatalf("b ranked first in bm25, source should be bm25, got %v", cands[0].Sources)
	}
	if cands[1].Sources[0] != domain.SourceVector {
		t.Fatalf("a is vector-only, got %v", cands[1].Sources)
	}
	if cands[0].BaseScore <= cands[1].BaseScore {
		t.Fatalf("rrf score of b (%f) should exceed a (%f)", cands[0].BaseScore, cands[1].BaseScore)
	}
}

func TestRunHybridDocumentDiversity(t *testing.T) {
	byID := map[string]domain.TextChunk{}
	var scored []domain.ScoredChunk
	// Five chunks from one document outrank two from others.
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d1-c%d", i)
		byID[id] = domain.TextChunk{ChunkID: id, DocID: "d1", Text: fmt.Sprintf("%s Clause %d.", longTextA, i)}
		scored = append(scored, domain.ScoredChunk{ChunkID: id, Score: 0.9 - float64(i)*0.01})
	}
	byID["d2-c0"] = domain.TextChunk{ChunkID: "d2-c0", DocID: "d2", Text: longTextB}
	byID["d3-c0"] = domain.TextChunk{ChunkID: "d3-c0", DocID: "d3", Text: longTextC}
	scored = append(scored,
		domain.ScoredChunk{ChunkID: "d2-c0", Score: 0.5},
		domain.ScoredChunk{ChunkID: "d3-c0", Score: 0.4},
	)

	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) { return scored, nil },
		fetchChunks:  chunkStore(byID),
	}
	deps := testDeps(store)
	deps.Cfg.KOut = 4

	cands, err := RunHybrid(context.Background(), deps, "g1", "clauses", []float32{1})
	if err != nil {
		t.Fatalf("RunHybrid: %v", err)
	}
	perDoc := map[string]int{}
	for _, c := range cands {
		perDoc[c.DocID]++
	}
	if perDoc["d1"] > deps.Cfg.MaxPerDoc {
		t.Fatalf("per-doc cap violated: %d chunks from d1", perDoc["d1"])
	}
	if len(perDoc) < deps.Cfg.MinDocs {
		t.Fatalf("expected at least %d distinct documents, got %d", deps.Cfg.MinDocs, len(perDoc))
	}
}

func TestRunHybridFailsSoftOnOneLeg(t *testing.T) {
	chunks := map[string]domain.TextChunk{"a": {ChunkID: "a", DocID: "d1", Text: longTextA}}
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return nil, fmt.Errorf("index offline")
		},
		bm25Chunks: func(_ string, _ string, _ int) ([]domain.ScoredChunk, error) {
			return []domain.ScoredChunk{{ChunkID: "a", Score: 1}}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	cands, err := RunHybrid(context.Background(), testDeps(store), "g1", "q", []float32{1})
	if err != nil {
		t.Fatalf("one failed leg must not fail the retriever: %v", err)
	}
	if len(cands) != 1 || cands[0].ChunkID != "a" {
		t.Fatalf("expected the surviving leg's candidate, got %+v", cands)
	}
}

func TestRunHybridErrorsWhenBothLegsFail(t *testing.T) {
	store := &fakeStore{
		vectorChunks: func(_ string, _ int) ([]domain.ScoredChunk, error) {
			return nil, fmt.Errorf("index offline")
		},
		bm25Chunks: func(_ string, _ string, _ int) ([]domain.ScoredChunk, error) {
			return nil, fmt.Errorf("db offline")
		},
	}
	if _, err := RunHybrid(context.Background(), testDeps(store), "g1", "q", []float32{1}); err == nil {
		t.Fatalf("expected an error when both legs fail")
	}
}
