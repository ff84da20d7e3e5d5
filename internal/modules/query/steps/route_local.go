package steps

import (
	"context"

	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

// RunLocalRoute anchors retrieval on entities named or implied by the
// query: seed identification, five-path trace, mentions expansion. When no
// seed entity resolves, it degrades to hybrid retrieval so a corpus without
// a matching entity can still answer.
func RunLocalRoute(ctx context.Context, deps Deps, q *QueryState) (RouteResult, error) {
	seeds := identifySeeds(ctx, deps, q.GroupID, q.Text, q.Embedding)
	if ctx.Err() != nil {
		return RouteResult{}, ctx.Err()
	}

	if len(seeds) == 0 {
		deps.Log.Info("no seed entities resolved, falling back to hybrid retrieval", "group_id", q.GroupID)
		cands, err := RunHybrid(ctx, deps, q.GroupID, q.Text, q.Embedding)
		if err != nil {
			return RouteResult{}, err
		}
		dctx := Distill(deps, DistillInput{
			Candidates:     cands,
			QueryEmbedding: q.Embedding,
			TokenBudget:    q.TokenBudget,
		})
		res := RouteResult{Context: dctx}
		if q.Debug {
			res.Trace = map[string]any{"seeds": 0, "fallback": "hybrid"}
		}
		return res, nil
	}

	ranked, err := deps.Store.PPRTraverse(ctx, q.GroupID, seeds, retrieval.PPRConfig{
		Damping:   deps.Cfg.Damping,
		SimWeight: deps.Cfg.SimWeight,
		HubWeight: deps.Cfg.HubWeight,
	})
	if err != nil {
		return RouteResult{}, err
	}

	cands, err := ExpandMentions(ctx, deps, q.GroupID, ranked)
	if err != nil {
		return RouteResult{}, err
	}

	rels, descs := fetchSideChannels(ctx, deps, q.GroupID, ranked)

	dctx := Distill(deps, DistillInput{
		Candidates:         cands,
		QueryEmbedding:     q.Embedding,
		Relationships:      rels,
		EntityDescriptions: descs,
		TokenBudget:        q.TokenBudget,
	})

	res := RouteResult{
		Context:  dctx,
		Evidence: topEvidence(ranked, deps.Cfg.EvidenceTopK),
	}
	if q.Debug {
		res.Trace = map[string]any{
			"seeds":                len(seeds),
			"traced_entities":      len(ranked),
			"mention_candidates":   len(cands),
			"distilled_candidates": len(dctx.Candidates),
		}
	}
	return res, nil
}
