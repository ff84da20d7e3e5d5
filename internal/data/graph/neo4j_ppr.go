package graph

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// PPRTraverse scores entities by relevance to the weighted seed set via five
// traversal paths. The final score of an entity is the sum of its per-path
// contributions; output is every entity with a non-zero score, descending,
// ties broken by ascending entity_id. Deterministic for fixed seeds and
// weights.
//
// Paths:
//  1. RELATED edges from seeds, damped by `damping`.
//  2. mentions -> chunk -> similar section -> chunk -> mentions.
//  3. SEMANTICALLY_SIMILAR_TO edges, weighted by simWeight.
//  4. section co-membership hub entities, weighted by hubWeight.
//  5. high-mention-count entities in seed sections, weighted by hubWeight.
func (r *Reader) PPRTraverse(ctx context.Context, groupID string, seeds map[string]float64, damping, simWeight, hubWeight float64) ([]domain.ScoredEntity, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	seedRows := make([]map[string]any, 0, len(seeds))
	for id, w := range seeds {
		if id == "" || w <= 0 {
			continue
		}
		seedRows = append(seedRows, map[string]any{"entity_id": id, "weight": w})
	}
	if len(seedRows) == 0 {
		return nil, nil
	}
	sort.Slice(seedRows, func(i, j int) bool {
		return seedRows[i]["entity_id"].(string) < seedRows[j]["entity_id"].(string)
	})

	combined := map[string]float64{}
	for id, w := range seeds {
		if id != "" && w > 0 {
			combined[id] += w
		}
	}

	paths := []struct {
		name   string
		cypher string
		params map[string]any
	}{
		{
			name: "graph_edges",
			cypher: `
UNWIND $seeds AS seed
MATCH (a:Entity {group_id: $group_id, entity_id: seed.entity_id})-[rel:RELATED]-(b:Entity)
WHERE b.entity_id <> seed.entity_id
RETURN b.entity_id AS entity_id, sum(seed.weight * coalesce(rel.weight, 0.5) * $damping) AS score
`,
			params: map[string]any{"damping": damping},
		},
		{
			name: "cross_section_similarity",
			cypher: `
UNWIND $seeds AS seed
MATCH (c1:Chunk)-[:MENTIONS]->(a:Entity {group_id: $group_id, entity_id: seed.entity_id})
MATCH (c1)-[:IN_SECTION]->(s1:Section)-[sim:SIMILAR_SECTION]-(s2:Section)<-[:IN_SECTION]-(c2:Chunk)
MATCH (c2)-[:MENTIONS]->(b:Entity)
WHERE b.entity_id <> seed.entity_id
RETURN b.entity_id AS entity_id, sum(seed.weight * coalesce(sim.score, 0.5) * $damping) AS score
`,
			params: map[string]any{"damping": damping},
		},
		{
			name: "semantic_similarity",
			cypher: `
UNWIND $seeds AS seed
MATCH (a:Entity {group_id: $group_id, entity_id: seed.entity_id})-[sim:SEMANTICALLY_SIMILAR_TO]-(b:Entity)
WHERE b.entity_id <> seed.entity_id
RETURN b.entity_id AS entity_id, sum(seed.weight * coalesce(sim.score, 0.5) * $sim_weight) AS score
`,
			params: map[string]any{"sim_weight": simWeight},
		},
		{
			name: "section_hubs",
			cypher: `
UNWIND $seeds AS seed
MATCH (c1:Chunk)-[:MENTIONS]->(a:Entity {group_id: $group_id, entity_id: seed.entity_id})
MATCH (c1)-[:IN_SECTION]->(s:Section)<-[:IN_SECTION]-(c2:Chunk)-[:MENTIONS]->(b:Entity)
WHERE b.entity_id <> seed.entity_id AND b.degree >= 3
RETURN b.entity_id AS entity_id, sum(seed.weight * $hub_weight) AS score
`,
			params: map[string]any{"hub_weight": hubWeight},
		},
		{
			name: "section_mention_counts",
			cypher: `
UNWIND $seeds AS seed
MATCH (c1:Chunk)-[:MENTIONS]->(a:Entity {group_id: $group_id, entity_id: seed.entity_id})
MATCH (c1)-[:IN_SECTION]->(s:Section)<-[:IN_SECTION]-(c2:Chunk)-[m:MENTIONS]->(b:Entity)
WHERE b.entity_id <> seed.entity_id
WITH seed, b, count(m) AS mention_count
WHERE mention_count >= 2
RETURN b.entity_id AS entity_id, sum(seed.weight * $hub_weight * log(1 + mention_count)) AS score
`,
			params: map[string]any{"hub_weight": hubWeight},
		},
	}

	for _, p := range paths {
		params := map[string]any{
			"group_id": groupID,
			"seeds":    seedRows,
		}
		for k, v := range p.params {
			params[k] = v
		}
		records, err := r.read(ctx, p.cypher, params)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			id := recordString(rec, "entity_id")
			score := recordFloat(rec, "score")
			if id == "" || score <= 0 {
				continue
			}
			combined[id] += score
		}
	}

	out := make([]domain.ScoredEntity, 0, len(combined))
	for id, score := range combined {
		if score <= 0 {
			continue
		}
		out = append(out, domain.ScoredEntity{EntityID: id, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}
