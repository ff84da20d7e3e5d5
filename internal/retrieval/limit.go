package retrieval

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// limitedStore bounds the number of store operations in flight. The
// dispatcher wraps the store once per query so a single request's fan-out
// cannot monopolize the downstream connections.
type limitedStore struct {
	inner Store
	sem   *semaphore.Weighted
}

func WithLimit(inner Store, max int) Store {
	if max <= 0 {
		return inner
	}
	return &limitedStore{inner: inner, sem: semaphore.NewWeighted(int64(max))}
}

func (s *limitedStore) FetchChunks(ctx context.Context, groupID string, chunkIDs []string) ([]domain.TextChunk, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.FetchChunks(ctx, groupID, chunkIDs)
}

func (s *limitedStore) VectorSearchSentences(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredSentence, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.VectorSearchSentences(ctx, groupID, embedding, k, minScore)
}

func (s *limitedStore) VectorSearchChunks(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.VectorSearchChunks(ctx, groupID, embedding, k, minScore)
}

func (s *limitedStore) BM25SearchChunks(ctx context.Context, groupID string, queryText string, k int) ([]domain.ScoredChunk, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.BM25SearchChunks(ctx, groupID, queryText, k)
}

func (s *limitedStore) MentionsToChunks(ctx context.Context, groupID string, entityNames []string, limitPerEntity int) ([]domain.MentionHit, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.MentionsToChunks(ctx, groupID, entityNames, limitPerEntity)
}

func (s *limitedStore) ExpandRelationships(ctx context.Context, groupID string, entityIDs []string, maxEdges int) ([]domain.Relationship, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.ExpandRelationships(ctx, groupID, entityIDs, maxEdges)
}

func (s *limitedStore) PPRTraverse(ctx context.Context, groupID string, seeds map[string]float64, cfg PPRConfig) ([]domain.ScoredEntity, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.PPRTraverse(ctx, groupID, seeds, cfg)
}

func (s *limitedStore) BeamExpand(ctx context.Context, groupID string, seedEntityIDs []string, queryEmbedding []float32, hops, beamWidth int) ([]domain.EntityPath, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.BeamExpand(ctx, groupID, seedEntityIDs, queryEmbedding, hops, beamWidth)
}

func (s *limitedStore) FetchCommunities(ctx context.Context, groupID string) ([]domain.Community, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.FetchCommunities(ctx, groupID)
}

func (s *limitedStore) FetchEntityDescriptions(ctx context.Context, groupID string, entityIDs []string) ([]domain.EntityDescription, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.FetchEntityDescriptions(ctx, groupID, entityIDs)
}

func (s *limitedStore) FetchEntities(ctx context.Context, groupID string, entityIDs []string) ([]domain.Entity, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.FetchEntities(ctx, groupID, entityIDs)
}

func (s *limitedStore) EntitiesByName(ctx context.Context, groupID string, names []string) ([]domain.Entity, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.EntitiesByName(ctx, groupID, names)
}

func (s *limitedStore) VectorSearchEntities(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.Entity, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.VectorSearchEntities(ctx, groupID, embedding, k, minScore)
}

func (s *limitedStore) LeadChunks(ctx context.Context, groupID string) ([]domain.TextChunk, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.inner.LeadChunks(ctx, groupID)
}
