package steps

import (
	"context"
	"fmt"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

// fakeStore lets each test stub only the operations its pipeline touches.
type fakeStore struct {
	fetchChunks     func(groupID string, chunkIDs []string) ([]domain.TextChunk, error)
	vectorChunks    func(groupID string, k int) ([]domain.ScoredChunk, error)
	bm25Chunks      func(groupID string, queryText string, k int) ([]domain.ScoredChunk, error)
	mentions        func(groupID string, names []string, limit int) ([]domain.MentionHit, error)
	expandRels      func(groupID string, ids []string, maxEdges int) ([]domain.Relationship, error)
	ppr             func(groupID string, seeds map[string]float64) ([]domain.ScoredEntity, error)
	beam            func(groupID string, seedIDs []string) ([]domain.EntityPath, error)
	communities     func(groupID string) ([]domain.Community, error)
	entityDescs     func(groupID string, ids []string) ([]domain.EntityDescription, error)
	fetchEntities   func(groupID string, ids []string) ([]domain.Entity, error)
	entitiesByName  func(groupID string, names []string) ([]domain.Entity, error)
	vectorEntities  func(groupID string, k int) ([]domain.Entity, error)
	leadChunks      func(groupID string) ([]domain.TextChunk, error)
	vectorSentences func(groupID string, k int) ([]domain.ScoredSentence, error)
}

func (f *fakeStore) FetchChunks(_ context.Context, groupID string, chunkIDs []string) ([]domain.TextChunk, error) {
	if f.fetchChunks == nil {
		return nil, nil
	}
	return f.fetchChunks(groupID, chunkIDs)
}

func (f *fakeStore) VectorSearchSentences(_ context.Context, groupID string, _ []float32, k int, _ float64) ([]domain.ScoredSentence, error) {
	if f.vectorSentences == nil {
		return nil, nil
	}
	return f.vectorSentences(groupID, k)
}

func (f *fakeStore) VectorSearchChunks(_ context.Context, groupID string, _ []float32, k int, _ float64) ([]domain.ScoredChunk, error) {
	if f.vectorChunks == nil {
		return nil, nil
	}
	return f.vectorChunks(groupID, k)
}

func (f *fakeStore) BM25SearchChunks(_ context.Context, groupID string, queryText string, k int) ([]domain.ScoredChunk, error) {
	if f.bm25Chunks == nil {
		return nil, nil
	}
	return f.bm25Chunks(groupID, queryText, k)
}

func (f *fakeStore) MentionsToChunks(_ context.Context, groupID string, entityNames []string, limitPerEntity int) ([]domain.MentionHit, error) {
	if f.mentions == nil {
		return nil, nil
	}
	return f.mentions(groupID, entityNames, limitPerEntity)
}

func (f *fakeStore) ExpandRelationships(_ context.Context, groupID string, entityIDs []string, maxEdges int) ([]domain.Relationship, error) {
	if f.expandRels == nil {
		return nil, nil
	}
	return f.expandRels(groupID, entityIDs, maxEdges)
}

func (f *fakeStore) PPRTraverse(_ context.Context, groupID string, seeds map[string]float64, _ retrieval.PPRConfig) ([]domain.ScoredEntity, error) {
	if f.ppr == nil {
		return nil, nil
	}
	return f.ppr(groupID, seeds)
}

func (f *fakeStore) BeamExpand(_ context.Context, groupID string, seedEntityIDs []string, _ []float32, _, _ int) ([]domain.EntityPath, error) {
	if f.beam == nil {
		return nil, nil
	}
	return f.beam(groupID, seedEntityIDs)
}

func (f *fakeStore) FetchCommunities(_ context.Context, groupID string) ([]domain.Community, error) {
	if f.communities == nil {
		return nil, nil
	}
	return f.communities(groupID)
}

func (f *fakeStore) FetchEntityDescriptions(_ context.Context, groupID string, entityIDs []string) ([]domain.EntityDescription, error) {
	if f.entityDescs == nil {
		return nil, nil
	}
	return f.entityDescs(groupID, entityIDs)
}

func (f *fakeStore) FetchEntities(_ context.Context, groupID string, entityIDs []string) ([]domain.Entity, error) {
	if f.fetchEntities == nil {
		return nil, nil
	}
	return f.fetchEntities(groupID, entityIDs)
}

func (f *fakeStore) EntitiesByName(_ context.Context, groupID string, names []string) ([]domain.Entity, error) {
	if f.entitiesByName == nil {
		return nil, nil
	}
	return f.entitiesByName(groupID, names)
}

func (f *fakeStore) VectorSearchEntities(_ context.Context, groupID string, _ []float32, k int, _ float64) ([]domain.Entity, error) {
	if f.vectorEntities == nil {
		return nil, nil
	}
	return f.vectorEntities(groupID, k)
}

func (f *fakeStore) LeadChunks(_ context.Context, groupID string) ([]domain.TextChunk, error) {
	if f.leadChunks == nil {
		return nil, nil
	}
	return f.leadChunks(groupID)
}

type fakeEmbed struct {
	fn    func(inputs []string) ([][]float32, error)
	calls int
}

func (f *fakeEmbed) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.fn == nil {
		out := make([][]float32, len(inputs))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}
	return f.fn(inputs)
}

type fakeLLM struct {
	textFn func(system, user string) (string, error)
	jsonFn func(system, user, schemaName string) (map[string]any, error)
	calls  int
}

func (f *fakeLLM) GenerateText(_ context.Context, system, user string, _ int) (string, error) {
	f.calls++
	if f.textFn == nil {
		return "", fmt.Errorf("unexpected GenerateText call")
	}
	return f.textFn(system, user)
}

func (f *fakeLLM) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	f.calls++
	if f.jsonFn == nil {
		return nil, fmt.Errorf("unexpected GenerateJSON call")
	}
	return f.jsonFn(system, user, schemaName)
}

func testDeps(store retrieval.Store) Deps {
	log, _ := logger.New("development")
	return Deps{
		Store:       store,
		Embed:       &fakeEmbed{},
		LLM:         &fakeLLM{},
		Log:         log,
		Cfg:         DefaultConfig(),
		Communities: NewCommunityCache(),
	}
}
