package graph

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// VectorSearchSentences queries the sentence vector index. Results are
// sorted by descending cosine score, ties broken by ascending sent_id.
func (r *Reader) VectorSearchSentences(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredSentence, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
CALL db.index.vector.queryNodes('sentence_embedding', $k, $embedding)
YIELD node, score
WHERE node.group_id = $group_id AND score >= $min_score
RETURN node.sent_id AS sent_id, node.chunk_id AS chunk_id, score
`, map[string]any{
		"k":         k,
		"embedding": embedding,
		"group_id":  groupID,
		"min_score": minScore,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredSentence, 0, len(records))
	for _, rec := range records {
		s := domain.ScoredSentence{
			SentID:  recordString(rec, "sent_id"),
			ChunkID: recordString(rec, "chunk_id"),
			Score:   recordFloat(rec, "score"),
		}
		if s.SentID == "" {
			continue
		}
		out = append(out, s)
	}
	orderSentences(out)
	return out, nil
}

// orderSentences pins the contract: descending score, ties by ascending
// sent_id. The vector index alone does not guarantee the tie order.
func orderSentences(out []domain.ScoredSentence) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SentID < out[j].SentID
	})
}

// VectorSearchChunks queries the chunk vector index with the same ordering
// rule as sentences (descending score, ascending chunk_id on ties).
func (r *Reader) VectorSearchChunks(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
CALL db.index.vector.queryNodes('chunk_embedding', $k, $embedding)
YIELD node, score
WHERE node.group_id = $group_id AND score >= $min_score
RETURN node.chunk_id AS chunk_id, score
`, map[string]any{
		"k":         k,
		"embedding": embedding,
		"group_id":  groupID,
		"min_score": minScore,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(records))
	for _, rec := range records {
		c := domain.ScoredChunk{
			ChunkID: recordString(rec, "chunk_id"),
			Score:   recordFloat(rec, "score"),
		}
		if c.ChunkID == "" {
			continue
		}
		out = append(out, c)
	}
	orderChunks(out)
	return out, nil
}

// orderChunks applies the same rule keyed by chunk_id.
func orderChunks(out []domain.ScoredChunk) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
}

// VectorSearchEntities returns the k entities nearest the query embedding,
// with full node attributes so callers can score and filter in-process.
func (r *Reader) VectorSearchEntities(ctx context.Context, groupID string, embedding []float32, k int, minScore float64) ([]domain.Entity, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
CALL db.index.vector.queryNodes('entity_embedding', $k, $embedding)
YIELD node, score
WHERE node.group_id = $group_id AND score >= $min_score
RETURN node.entity_id AS entity_id, node.name AS name, node.description AS description,
       node.embedding AS embedding, node.degree AS degree, node.community_id AS community_id,
       score
ORDER BY score DESC, entity_id ASC
`, map[string]any{
		"k":         k,
		"embedding": embedding,
		"group_id":  groupID,
		"min_score": minScore,
	})
	if err != nil {
		return nil, err
	}
	return collectEntities(records), nil
}
