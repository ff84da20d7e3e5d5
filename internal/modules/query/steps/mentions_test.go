package steps

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

func TestExpandMentionsScoresByBestEntity(t *testing.T) {
	chunks := map[string]domain.TextChunk{
		"c1": {ChunkID: "c1", DocID: "d1", SectionID: "s1", Text: longTextA},
		"c2": {ChunkID: "c2", DocID: "d1", SectionID: "s2", Text: longTextB},
	}
	store := &fakeStore{
		fetchEntities: func(_ string, ids []string) ([]domain.Entity, error) {
			return []domain.Entity{
				{EntityID: "e1", Name: "Acme Corp"},
				{EntityID: "e2", Name: "Beta Logistics"},
			}, nil
		},
		mentions: func(_ string, names []string, _ int) ([]domain.MentionHit, error) {
			return []domain.MentionHit{
				{EntityName: "Acme Corp", ChunkID: "c1"},
				{EntityName: "Beta Logistics", ChunkID: "c1"},
				{EntityName: "Beta Logistics", ChunkID: "c2"},
			}, nil
		},
		fetchChunks: chunkStore(chunks),
	}
	deps := testDeps(store)

	ranked := []domain.ScoredEntity{
		{EntityID: "e1", Score: 0.9},
		{EntityID: "e2", Score: 0.4},
	}
	cands, err := ExpandMentions(context.Background(), deps, "g1", ranked)
	if err != nil {
		t.Fatalf("ExpandMentions: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	// c1 is mentioned by both entities and takes the best score.
	if cands[0].ChunkID != "c1" || cands[0].BaseScore != 0.9 {
		t.Fatalf("c1 should inherit e1's score, got %q %f", cands[0].ChunkID, cands[0].BaseScore)
	}
	if !reflect.DeepEqual(cands[0].EntityAnchors, []string{"e1", "e2"}) {
		t.Fatalf("anchors should collect both entities sorted, got %v", cands[0].EntityAnchors)
	}
	if cands[0].Sources[0] != domain.SourceMentions {
		t.Fatalf("source should be mentions, got %v", cands[0].Sources)
	}
}

func TestExpandMentionsSectionAndDocCaps(t *testing.T) {
	byID := map[string]domain.TextChunk{}
	var hits []domain.MentionHit
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		byID[id] = domain.TextChunk{
			ChunkID: id, DocID: "d1", SectionID: "s1",
			Text: fmt.Sprintf("%s Item %d.", longTextC, i),
		}
		hits = append(hits, domain.MentionHit{EntityName: "Acme Corp", ChunkID: id})
	}
	store := &fakeStore{
		fetchEntities: func(_ string, _ []string) ([]domain.Entity, error) {
			return []domain.Entity{{EntityID: "e1", Name: "Acme Corp"}}, nil
		},
		mentions: func(_ string, _ []string, _ int) ([]domain.MentionHit, error) {
			return hits, nil
		},
		fetchChunks: chunkStore(byID),
	}
	deps := testDeps(store)

	cands, err := ExpandMentions(context.Background(), deps, "g1", []domain.ScoredEntity{{EntityID: "e1", Score: 1}})
	if err != nil {
		t.Fatalf("ExpandMentions: %v", err)
	}
	if len(cands) != deps.Cfg.MentionsMaxPerSection {
		t.Fatalf("section cap not applied: got %d candidates, want %d", len(cands), deps.Cfg.MentionsMaxPerSection)
	}
}

func TestExpandMentionsSkipsArtifactEntities(t *testing.T) {
	store := &fakeStore{
		fetchEntities: func(_ string, _ []string) ([]domain.Entity, error) {
			return []domain.Entity{
				{EntityID: "e1", Name: "c3f9a2b8d1e0-77aa"},
				{EntityID: "e2", Name: "%"},
			}, nil
		},
		mentions: func(_ string, names []string, _ int) ([]domain.MentionHit, error) {
			return nil, fmt.Errorf("mentions should not be queried for artifact names %v", names)
		},
	}
	deps := testDeps(store)
	cands, err := ExpandMentions(context.Background(), deps, "g1", []domain.ScoredEntity{
		{EntityID: "e1", Score: 1}, {EntityID: "e2", Score: 0.5},
	})
	if err != nil {
		t.Fatalf("ExpandMentions: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("artifact-only input should produce no candidates, got %d", len(cands))
	}
}
