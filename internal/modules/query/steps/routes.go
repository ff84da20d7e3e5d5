package steps

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

type RouteFunc func(ctx context.Context, deps Deps, q *QueryState) (RouteResult, error)

func RouteFor(r domain.Route) RouteFunc {
	switch r {
	case domain.RouteVector:
		return RunVectorRoute
	case domain.RouteLocal:
		return RunLocalRoute
	case domain.RouteGlobal:
		return RunGlobalRoute
	default:
		return RunDriftRoute
	}
}

// identifySeeds resolves seed entities for the graph routes: exact name
// matches from capitalized phrases in the query weigh 1.0, vector matches
// on entity embeddings weigh their cosine similarity. The legs run
// concurrently and both fail soft.
func identifySeeds(ctx context.Context, deps Deps, groupID, queryText string, queryEmbedding []float32) map[string]float64 {
	var nameEnts, vecEnts []domain.Entity

	g, gctx := errgroup.WithContext(ctx)
	if names := properNounPhrases(queryText); len(names) > 0 {
		g.Go(func() error {
			ents, err := deps.Store.EntitiesByName(gctx, groupID, names)
			if err != nil {
				deps.Log.Warn("seed name match failed", "error", err)
				return nil
			}
			nameEnts = ents
			return nil
		})
	}
	g.Go(func() error {
		ents, err := deps.Store.VectorSearchEntities(gctx, groupID, queryEmbedding,
			deps.Cfg.SeedEntityK, deps.Cfg.SeedEntityMinScore)
		if err != nil {
			deps.Log.Warn("seed vector match failed", "error", err)
			return nil
		}
		vecEnts = ents
		return nil
	})
	_ = g.Wait()

	seeds := make(map[string]float64)
	for _, e := range nameEnts {
		if !isArtifactName(e.Name) {
			seeds[e.EntityID] = 1.0
		}
	}
	for _, e := range vecEnts {
		if isArtifactName(e.Name) {
			continue
		}
		if s := textutil.Cosine(queryEmbedding, e.Embedding); s > seeds[e.EntityID] {
			seeds[e.EntityID] = s
		}
	}
	return seeds
}

// fetchSideChannels loads relationship edges and entity descriptions around
// the top ranked entities, concurrently. Both are optional context; either
// failure degrades to an empty channel.
func fetchSideChannels(ctx context.Context, deps Deps, groupID string, ranked []domain.ScoredEntity) ([]domain.Relationship, []domain.EntityDescription) {
	if len(ranked) == 0 {
		return nil, nil
	}
	top := ranked
	if len(top) > deps.Cfg.EvidenceTopK {
		top = top[:deps.Cfg.EvidenceTopK]
	}
	ids := make([]string, 0, len(top))
	for _, e := range top {
		ids = append(ids, e.EntityID)
	}

	var rels []domain.Relationship
	var descs []domain.EntityDescription
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rels, err = deps.Store.ExpandRelationships(gctx, groupID, ids, deps.Cfg.MaxRelationships)
		if err != nil {
			deps.Log.Warn("relationship expansion failed", "error", err)
			rels = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		descs, err = deps.Store.FetchEntityDescriptions(gctx, groupID, ids)
		if err != nil {
			deps.Log.Warn("entity description fetch failed", "error", err)
			descs = nil
		}
		return nil
	})
	_ = g.Wait()
	return rels, descs
}
