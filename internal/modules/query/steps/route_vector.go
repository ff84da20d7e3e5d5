package steps

import (
	"context"
)

// RunVectorRoute is the low-latency factual route: hybrid retrieval only,
// distilled under the tighter vector budget.
func RunVectorRoute(ctx context.Context, deps Deps, q *QueryState) (RouteResult, error) {
	cands, err := RunHybrid(ctx, deps, q.GroupID, q.Text, q.Embedding)
	if err != nil {
		return RouteResult{}, err
	}

	dctx := Distill(deps, DistillInput{
		Candidates:     cands,
		QueryEmbedding: q.Embedding,
		TokenBudget:    min(q.TokenBudget, deps.Cfg.VectorTokenBudget),
	})

	res := RouteResult{Context: dctx}
	if q.Debug {
		res.Trace = map[string]any{
			"hybrid_candidates":    len(cands),
			"distilled_candidates": len(dctx.Candidates),
		}
	}
	return res, nil
}
