package retrieval

import (
	"context"
	"database/sql/driver"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/veridoc/veridoc-backend/internal/data/graph"
	"github.com/veridoc/veridoc-backend/internal/data/repos"
	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

// corpusStore composes the Neo4j reader and the Postgres chunk repo behind
// the Store interface, adding the retry policy: one retry per transient
// failure with a short jittered delay. Fatal failures surface immediately.
type corpusStore struct {
	graph  *graph.Reader
	chunks *repos.ChunkRepo
	log    *logger.Logger
}

func NewCorpusStore(g *graph.Reader, c *repos.ChunkRepo, log *logger.Logger) Store {
	return &corpusStore{
		graph:  g,
		chunks: c,
		log:    log.With("service", "CorpusStore"),
	}
}

const retryBaseDelay = 50 * time.Millisecond

// withRetry runs op, retrying once when the failure is transient. Permanent
// failures (bad query, auth) surface immediately as GraphUnavailable.
// Context cancellation passes through untouched so orchestrators can
// distinguish a cancelled operation from a failed one.
func withRetry[T any](ctx context.Context, s *corpusStore, opName string, op func(context.Context) (T, error)) (T, error) {
	out, err := op(ctx)
	if err == nil {
		return out, nil
	}
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if !isTransient(err) {
		return zero, apierr.Wrap(apierr.KindGraphUnavailable, opName, err)
	}

	s.log.Warn("transient store failure, retrying once", "op", opName, "error", err)
	delay := retryBaseDelay + time.Duration(rand.Int63n(int64(retryBaseDelay)))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	out, err = op(ctx)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	return zero, apierr.Wrap(apierr.KindGraphTransient, opName, err)
}

// isTransient reports whether a store failure is worth one retry: driver
// retryable errors and connection-level failures. Statement and auth errors
// are permanent for a read-only workload.
func isTransient(err error) bool {
	if neo4j.IsRetryable(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (s *corpusStore) FetchChunks(ctx context.Context, groupID string, chunkIDs []string) ([]domain.TextChunk, error) {
	return withRetry(ctx, s, "store.FetchChunks", func(ctx context.Context) ([]domain.TextChunk, error) {
		return s.chunks.FetchChunks(ctx, groupID, chunkIDs)
	})
}

func (s *corpusStore) VectorSearchSentences(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredSentence, error) {
	return withRetry(ctx, s, "store.VectorSearchSentences", func(ctx context.Context) ([]domain.ScoredSentence, error) {
		return s.graph.VectorSearchSentences(ctx, groupID, embedding, k, minScore)
	})
}

func (s *corpusStore) VectorSearchChunks(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	return withRetry(ctx, s, "store.VectorSearchChunks", func(ctx context.Context) ([]domain.ScoredChunk, error) {
		return s.graph.VectorSearchChunks(ctx, groupID, embedding, k, minScore)
	})
}

func (s *corpusStore) BM25SearchChunks(ctx context.Context, groupID string, queryText string, k int) ([]domain.ScoredChunk, error) {
	return withRetry(ctx, s, "store.BM25SearchChunks", func(ctx context.Context) ([]domain.ScoredChunk, error) {
		return s.chunks.LexicalSearch(ctx, groupID, queryText, k)
	})
}

func (s *corpusStore) MentionsToChunks(ctx context.Context, groupID string, entityNames []string, limitPerEntity int) ([]domain.MentionHit, error) {
	return withRetry(ctx, s, "store.MentionsToChunks", func(ctx context.Context) ([]domain.MentionHit, error) {
		return s.graph.MentionsToChunks(ctx, groupID, entityNames, limitPerEntity)
	})
}

func (s *corpusStore) ExpandRelationships(ctx context.Context, groupID string, entityIDs []string, maxEdges int) ([]domain.Relationship, error) {
	return withRetry(ctx, s, "store.ExpandRelationships", func(ctx context.Context) ([]domain.Relationship, error) {
		return s.graph.ExpandRelationships(ctx, groupID, entityIDs, maxEdges)
	})
}

func (s *corpusStore) PPRTraverse(ctx context.Context, groupID string, seeds map[string]float64, cfg PPRConfig) ([]domain.ScoredEntity, error) {
	return withRetry(ctx, s, "store.PPRTraverse", func(ctx context.Context) ([]domain.ScoredEntity, error) {
		return s.graph.PPRTraverse(ctx, groupID, seeds, cfg.Damping, cfg.SimWeight, cfg.HubWeight)
	})
}

func (s *corpusStore) BeamExpand(ctx context.Context, groupID string, seedEntityIDs []string, queryEmbedding []float32, hops, beamWidth int) ([]domain.EntityPath, error) {
	return withRetry(ctx, s, "store.BeamExpand", func(ctx context.Context) ([]domain.EntityPath, error) {
		return s.graph.BeamExpand(ctx, groupID, seedEntityIDs, queryEmbedding, hops, beamWidth)
	})
}

func (s *corpusStore) FetchCommunities(ctx context.Context, groupID string) ([]domain.Community, error) {
	return withRetry(ctx, s, "store.FetchCommunities", func(ctx context.Context) ([]domain.Community, error) {
		return s.graph.FetchCommunities(ctx, groupID)
	})
}

func (s *corpusStore) FetchEntityDescriptions(ctx context.Context, groupID string, entityIDs []string) ([]domain.EntityDescription, error) {
	return withRetry(ctx, s, "store.FetchEntityDescriptions", func(ctx context.Context) ([]domain.EntityDescription, error) {
		return s.graph.FetchEntityDescriptions(ctx, groupID, entityIDs)
	})
}

func (s *corpusStore) FetchEntities(ctx context.Context, groupID string, entityIDs []string) ([]domain.Entity, error) {
	return withRetry(ctx, s, "store.FetchEntities", func(ctx context.Context) ([]domain.Entity, error) {
		return s.graph.FetchEntities(ctx, groupID, entityIDs)
	})
}

func (s *corpusStore) EntitiesByName(ctx context.Context, groupID string, names []string) ([]domain.Entity, error) {
	return withRetry(ctx, s, "store.EntitiesByName", func(ctx context.Context) ([]domain.Entity, error) {
		return s.graph.EntitiesByName(ctx, groupID, names)
	})
}

func (s *corpusStore) VectorSearchEntities(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.Entity, error) {
	return withRetry(ctx, s, "store.VectorSearchEntities", func(ctx context.Context) ([]domain.Entity, error) {
		return s.graph.VectorSearchEntities(ctx, groupID, embedding, k, minScore)
	})
}

func (s *corpusStore) LeadChunks(ctx context.Context, groupID string) ([]domain.TextChunk, error) {
	return withRetry(ctx, s, "store.LeadChunks", func(ctx context.Context) ([]domain.TextChunk, error) {
		return s.chunks.LeadChunks(ctx, groupID)
	})
}
