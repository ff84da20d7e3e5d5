package steps

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

// ExtractHubEntities picks up to HubsPerCommunity entities per matched
// community, preferring those whose embeddings sit closest to the query and
// breaking ties by descending degree. Extraction artifacts are filtered out
// and duplicates across communities collapse to their first appearance.
func ExtractHubEntities(ctx context.Context, deps Deps, groupID string, comms []ScoredCommunity, queryEmbedding []float32) ([]domain.Entity, error) {
	memberSet := make(map[string]bool)
	var memberIDs []string
	for _, c := range comms {
		for _, id := range c.MemberEntityIDs {
			if !memberSet[id] {
				memberSet[id] = true
				memberIDs = append(memberIDs, id)
			}
		}
	}
	if len(memberIDs) == 0 {
		return nil, nil
	}

	ents, err := deps.Store.FetchEntities(ctx, groupID, memberIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Entity, len(ents))
	for _, e := range ents {
		byID[e.EntityID] = e
	}

	type scoredEnt struct {
		ent   domain.Entity
		score float64
	}

	seen := make(map[string]bool)
	var hubs []domain.Entity
	for _, c := range comms {
		members := make([]scoredEnt, 0, len(c.MemberEntityIDs))
		for _, id := range c.MemberEntityIDs {
			e, ok := byID[id]
			if !ok || isArtifactName(e.Name) {
				continue
			}
			members = append(members, scoredEnt{ent: e, score: textutil.Cosine(queryEmbedding, e.Embedding)})
		}
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].score != members[j].score {
				return members[i].score > members[j].score
			}
			if members[i].ent.Degree != members[j].ent.Degree {
				return members[i].ent.Degree > members[j].ent.Degree
			}
			return members[i].ent.EntityID < members[j].ent.EntityID
		})
		taken := 0
		for _, m := range members {
			if taken >= deps.Cfg.HubsPerCommunity {
				break
			}
			taken++
			if seen[m.ent.EntityID] {
				continue
			}
			seen[m.ent.EntityID] = true
			hubs = append(hubs, m.ent)
		}
	}
	return hubs, nil
}
