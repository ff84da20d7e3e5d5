package graph

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

// BeamExpand walks outward from the seed entities for up to `hops` hops,
// keeping the top `beamWidth` frontier entities per hop by cosine of their
// embedding against the query embedding (ties broken by ascending
// entity_id). Visited entities are never re-expanded. Each surviving entity
// carries the hop path that reached it, for citation provenance.
func (r *Reader) BeamExpand(ctx context.Context, groupID string, seedEntityIDs []string, queryEmbedding []float32, hops, beamWidth int) ([]domain.EntityPath, error) {
	if len(seedEntityIDs) == 0 || hops <= 0 || beamWidth <= 0 {
		return nil, nil
	}

	visited := map[string]bool{}
	pathTo := map[string][]string{}
	frontier := make([]string, 0, len(seedEntityIDs))
	for _, id := range seedEntityIDs {
		if id == "" || visited[id] {
			continue
		}
		visited[id] = true
		pathTo[id] = []string{id}
		frontier = append(frontier, id)
	}
	sort.Strings(frontier)

	results := make([]domain.EntityPath, 0, len(frontier))
	for _, id := range frontier {
		results = append(results, domain.EntityPath{EntityID: id, Path: pathTo[id]})
	}

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		neighbors, err := r.beamNeighbors(ctx, groupID, frontier)
		if err != nil {
			return nil, err
		}

		type scoredNeighbor struct {
			entity domain.Entity
			from   string
			score  float64
		}
		scored := make([]scoredNeighbor, 0, len(neighbors))
		for _, n := range neighbors {
			if visited[n.entity.EntityID] {
				continue
			}
			scored = append(scored, scoredNeighbor{
				entity: n.entity,
				from:   n.from,
				score:  textutil.Cosine(queryEmbedding, n.entity.Embedding),
			})
		}
		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score > scored[j].score
			}
			return scored[i].entity.EntityID < scored[j].entity.EntityID
		})

		next := make([]string, 0, beamWidth)
		for _, s := range scored {
			if len(next) >= beamWidth {
				break
			}
			id := s.entity.EntityID
			if visited[id] {
				continue
			}
			visited[id] = true
			pathTo[id] = append(append([]string{}, pathTo[s.from]...), id)
			next = append(next, id)
			results = append(results, domain.EntityPath{EntityID: id, Path: pathTo[id]})
		}
		frontier = next
	}

	return results, nil
}

type neighborHit struct {
	entity domain.Entity
	from   string
}

func (r *Reader) beamNeighbors(ctx context.Context, groupID string, frontier []string) ([]neighborHit, error) {
	records, err := r.read(ctx, `
UNWIND $frontier AS fid
MATCH (a:Entity {group_id: $group_id, entity_id: fid})-[:RELATED|SEMANTICALLY_SIMILAR_TO]-(b:Entity)
WHERE b.entity_id <> fid
RETURN DISTINCT fid AS from_id, b.entity_id AS entity_id, b.name AS name,
       b.description AS description, b.embedding AS embedding,
       b.degree AS degree, b.community_id AS community_id
ORDER BY from_id ASC, entity_id ASC
`, map[string]any{
		"group_id": groupID,
		"frontier": frontier,
	})
	if err != nil {
		return nil, err
	}

	out := make([]neighborHit, 0, len(records))
	seen := map[string]bool{}
	for _, rec := range records {
		e := domain.Entity{
			EntityID:    recordString(rec, "entity_id"),
			Name:        recordString(rec, "name"),
			Description: recordString(rec, "description"),
			Embedding:   recordFloatSlice(rec, "embedding"),
			Degree:      recordInt(rec, "degree"),
			CommunityID: recordString(rec, "community_id"),
		}
		if e.EntityID == "" || seen[e.EntityID] {
			continue
		}
		seen[e.EntityID] = true
		out = append(out, neighborHit{entity: e, from: recordString(rec, "from_id")})
	}
	return out, nil
}
