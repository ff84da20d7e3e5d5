package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// ExpandRelationships returns up to maxEdges RELATED edges touching the
// given entities, sorted by descending weight then (src, dst).
func (r *Reader) ExpandRelationships(ctx context.Context, groupID string, entityIDs []string, maxEdges int) ([]domain.Relationship, error) {
	if len(entityIDs) == 0 || maxEdges <= 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
MATCH (a:Entity)-[rel:RELATED]->(b:Entity)
WHERE a.group_id = $group_id
  AND (a.entity_id IN $entity_ids OR b.entity_id IN $entity_ids)
RETURN a.entity_id AS src, b.entity_id AS dst, rel.predicate AS predicate, rel.weight AS weight
ORDER BY weight DESC, src ASC, dst ASC
LIMIT $max_edges
`, map[string]any{
		"group_id":   groupID,
		"entity_ids": entityIDs,
		"max_edges":  maxEdges,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Relationship, 0, len(records))
	for _, rec := range records {
		rel := domain.Relationship{
			Src:       recordString(rec, "src"),
			Dst:       recordString(rec, "dst"),
			Predicate: recordString(rec, "predicate"),
			Weight:    recordFloat(rec, "weight"),
		}
		if rel.Src == "" || rel.Dst == "" || rel.Src == rel.Dst {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// MentionsToChunks follows MENTIONS edges from entities (by canonical name)
// to the chunks that mention them. Each entity yields at most
// limitPerEntity chunks; duplicates across entities are preserved, the
// distiller dedups.
func (r *Reader) MentionsToChunks(ctx context.Context, groupID string, entityNames []string, limitPerEntity int) ([]domain.MentionHit, error) {
	if len(entityNames) == 0 || limitPerEntity <= 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
UNWIND $entity_names AS ename
MATCH (c:Chunk)-[m:MENTIONS]->(e:Entity {group_id: $group_id, name: ename})
WITH ename, c, m.weight AS w
ORDER BY w DESC, c.chunk_id ASC
WITH ename, collect(c.chunk_id)[0..$limit] AS chunk_ids
UNWIND chunk_ids AS chunk_id
RETURN ename AS entity_name, chunk_id
`, map[string]any{
		"group_id":     groupID,
		"entity_names": entityNames,
		"limit":        limitPerEntity,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.MentionHit, 0, len(records))
	for _, rec := range records {
		hit := domain.MentionHit{
			EntityName: recordString(rec, "entity_name"),
			ChunkID:    recordString(rec, "chunk_id"),
		}
		if hit.ChunkID == "" {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}

func (r *Reader) FetchEntityDescriptions(ctx context.Context, groupID string, entityIDs []string) ([]domain.EntityDescription, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
MATCH (e:Entity)
WHERE e.group_id = $group_id AND e.entity_id IN $entity_ids
RETURN e.entity_id AS entity_id, e.description AS description
ORDER BY e.entity_id ASC
`, map[string]any{
		"group_id":   groupID,
		"entity_ids": entityIDs,
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.EntityDescription, 0, len(records))
	for _, rec := range records {
		d := domain.EntityDescription{
			EntityID:    recordString(rec, "entity_id"),
			Description: recordString(rec, "description"),
		}
		if d.EntityID == "" || d.Description == "" {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// FetchEntities loads full entity nodes (embedding included) by ID.
func (r *Reader) FetchEntities(ctx context.Context, groupID string, entityIDs []string) ([]domain.Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
MATCH (e:Entity)
WHERE e.group_id = $group_id AND e.entity_id IN $entity_ids
RETURN e.entity_id AS entity_id, e.name AS name, e.description AS description,
       e.embedding AS embedding, e.degree AS degree, e.community_id AS community_id
ORDER BY e.entity_id ASC
`, map[string]any{
		"group_id":   groupID,
		"entity_ids": entityIDs,
	})
	if err != nil {
		return nil, err
	}
	return collectEntities(records), nil
}

// EntitiesByName resolves entities whose canonical name matches any of the
// given names case-insensitively.
func (r *Reader) EntitiesByName(ctx context.Context, groupID string, names []string) ([]domain.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			lowered = append(lowered, n)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}
	records, err := r.read(ctx, `
UNWIND $names AS name
MATCH (e:Entity)
WHERE e.group_id = $group_id AND toLower(e.name) = toLower(name)
RETURN DISTINCT e.entity_id AS entity_id, e.name AS name, e.description AS description,
       e.embedding AS embedding, e.degree AS degree, e.community_id AS community_id
ORDER BY entity_id ASC
`, map[string]any{
		"group_id": groupID,
		"names":    lowered,
	})
	if err != nil {
		return nil, err
	}
	return collectEntities(records), nil
}

func collectEntities(records []*neo4j.Record) []domain.Entity {
	out := make([]domain.Entity, 0, len(records))
	for _, rec := range records {
		e := domain.Entity{
			EntityID:    recordString(rec, "entity_id"),
			Name:        recordString(rec, "name"),
			Description: recordString(rec, "description"),
			Embedding:   recordFloatSlice(rec, "embedding"),
			Degree:      recordInt(rec, "degree"),
			CommunityID: recordString(rec, "community_id"),
		}
		if e.EntityID == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
