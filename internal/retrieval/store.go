// Package retrieval defines the narrow store surface the retrievers consume
// and its production implementation: Neo4j for graph, vector, and community
// operations, Postgres for chunk text and lexical search.
package retrieval

import (
	"context"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

type PPRConfig struct {
	Damping   float64
	SimWeight float64
	HubWeight float64
}

// Store is the query-time operation surface over the corpus indices. No
// query logic, no scoring policy; every operation honors the caller's
// context deadline and cancellation. Cancellation surfaces as the context's
// own error, never as a store failure.
type Store interface {
	// FetchChunks returns chunks in request order; missing IDs produce
	// entries with Found=false, never an error.
	FetchChunks(ctx context.Context, groupID string, chunkIDs []string) ([]domain.TextChunk, error)

	// VectorSearchSentences: descending cosine, ties by ascending sent_id.
	VectorSearchSentences(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredSentence, error)

	// VectorSearchChunks: descending cosine, ties by ascending chunk_id.
	VectorSearchChunks(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredChunk, error)

	// BM25SearchChunks: descending lexical score, ties by ascending chunk_id.
	BM25SearchChunks(ctx context.Context, groupID string, queryText string, k int) ([]domain.ScoredChunk, error)

	// MentionsToChunks: at most limitPerEntity chunks per entity; duplicates
	// across entities preserved.
	MentionsToChunks(ctx context.Context, groupID string, entityNames []string, limitPerEntity int) ([]domain.MentionHit, error)

	// ExpandRelationships: descending weight, then (src, dst) ascending.
	ExpandRelationships(ctx context.Context, groupID string, entityIDs []string, maxEdges int) ([]domain.Relationship, error)

	// PPRTraverse executes the five-path walk; all non-zero entities,
	// descending score, ties by ascending entity_id.
	PPRTraverse(ctx context.Context, groupID string, seeds map[string]float64, cfg PPRConfig) ([]domain.ScoredEntity, error)

	// BeamExpand keeps top-beamWidth per hop by cosine against the query
	// embedding; ties by ascending entity_id.
	BeamExpand(ctx context.Context, groupID string, seedEntityIDs []string, queryEmbedding []float32, hops, beamWidth int) ([]domain.EntityPath, error)

	FetchCommunities(ctx context.Context, groupID string) ([]domain.Community, error)
	FetchEntityDescriptions(ctx context.Context, groupID string, entityIDs []string) ([]domain.EntityDescription, error)

	// Seed identification for the local and drift routes.
	FetchEntities(ctx context.Context, groupID string, entityIDs []string) ([]domain.Entity, error)
	EntitiesByName(ctx context.Context, groupID string, names []string) ([]domain.Entity, error)
	VectorSearchEntities(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.Entity, error)

	// LeadChunks supports the global route's coverage gap-fill.
	LeadChunks(ctx context.Context, groupID string) ([]domain.TextChunk, error)
}
