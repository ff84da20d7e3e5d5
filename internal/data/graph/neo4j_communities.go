package graph

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// FetchCommunities returns the materialized community summaries for a group.
// The stale-embedding check against embedding_text_hash is the caller's
// responsibility.
func (r *Reader) FetchCommunities(ctx context.Context, groupID string) ([]domain.Community, error) {
	records, err := r.read(ctx, `
MATCH (c:Community {group_id: $group_id})
RETURN c.community_id AS community_id, c.title AS title, c.summary AS summary,
       c.summary_embedding AS summary_embedding, c.embedding_text_hash AS embedding_text_hash,
       [(e:Entity)-[:IN_COMMUNITY]->(c) | e.entity_id] AS member_entity_ids
ORDER BY c.community_id ASC
`, map[string]any{
		"group_id": groupID,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Community, 0, len(records))
	for _, rec := range records {
		c := domain.Community{
			CommunityID:       recordString(rec, "community_id"),
			Title:             recordString(rec, "title"),
			Summary:           recordString(rec, "summary"),
			SummaryEmbedding:  recordFloatSlice(rec, "summary_embedding"),
			MemberEntityIDs:   recordStringSlice(rec, "member_entity_ids"),
			EmbeddingTextHash: recordString(rec, "embedding_text_hash"),
		}
		if c.CommunityID == "" || len(c.MemberEntityIDs) < 2 {
			continue
		}
		sort.Strings(c.MemberEntityIDs)
		out = append(out, c)
	}
	return out, nil
}
