package steps

import (
	"context"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

var gapFillRe = regexp.MustCompile(`(?i)\b(summari[sz]e\s+(each|every|all)\s+\w+|each\s+document|every\s+document|all\s+documents)\b`)

// RunGlobalRoute handles thematic cross-document questions. Community
// matching and hybrid retrieval run in parallel; matched community
// summaries become the prompt preamble, hybrid chunks the primary evidence,
// and a hub-seeded trace adds a capped enrichment slice so graph context
// cannot drown out query-relevant text.
func RunGlobalRoute(ctx context.Context, deps Deps, q *QueryState) (RouteResult, error) {
	var comms []ScoredCommunity
	var hybrid []domain.Candidate
	var commErr, hybridErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comms, commErr = MatchCommunities(gctx, deps, q.GroupID, q.Embedding)
		return nil
	})
	g.Go(func() error {
		hybrid, hybridErr = RunHybrid(gctx, deps, q.GroupID, q.Text, q.Embedding)
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return RouteResult{}, ctx.Err()
	}
	if commErr != nil {
		deps.Log.Warn("community matching failed, continuing without preamble", "error", commErr)
	}
	if hybridErr != nil {
		deps.Log.Warn("hybrid retrieval failed, continuing on graph evidence", "error", hybridErr)
	}
	if commErr != nil && hybridErr != nil {
		return RouteResult{}, apierr.Wrap(apierr.KindGraphUnavailable, "steps.RunGlobalRoute", hybridErr)
	}

	var ranked []domain.ScoredEntity
	var rels []domain.Relationship
	if len(comms) > 0 {
		hubs, err := ExtractHubEntities(ctx, deps, q.GroupID, comms, q.Embedding)
		if err != nil {
			deps.Log.Warn("hub extraction failed, skipping enrichment", "error", err)
		} else if len(hubs) > 0 {
			seeds := make(map[string]float64, len(hubs))
			for _, h := range hubs {
				s := textutil.Cosine(q.Embedding, h.Embedding)
				if s < 0.1 {
					s = 0.1
				}
				seeds[h.EntityID] = s
			}
			ranked, err = deps.Store.PPRTraverse(ctx, q.GroupID, seeds, retrieval.PPRConfig{
				Damping:   deps.Cfg.Damping,
				SimWeight: deps.Cfg.SimWeight,
				HubWeight: deps.Cfg.HubWeight,
			})
			if err != nil {
				deps.Log.Warn("hub trace failed, skipping enrichment", "error", err)
				ranked = nil
			}
		}
	}

	pool := hybrid
	if len(ranked) > 0 {
		enrichment, err := ExpandMentions(ctx, deps, q.GroupID, ranked)
		if err != nil {
			deps.Log.Warn("enrichment expansion failed", "error", err)
		} else {
			if len(enrichment) > deps.Cfg.EnrichmentCap {
				enrichment = enrichment[:deps.Cfg.EnrichmentCap]
			}
			pool = append(pool, enrichment...)
		}
		hubRels, _ := fetchSideChannels(ctx, deps, q.GroupID, ranked)
		rels = hubRels
	}

	if gapFillRe.MatchString(q.Text) {
		pool = appendCoverageGapFill(ctx, deps, q.GroupID, pool)
	}

	if len(pool) == 0 && len(comms) == 0 {
		if hybridErr != nil {
			return RouteResult{}, apierr.Wrap(apierr.KindGraphUnavailable, "steps.RunGlobalRoute", hybridErr)
		}
		return RouteResult{Context: domain.DistilledContext{}}, nil
	}

	dctx := Distill(deps, DistillInput{
		Candidates:     pool,
		QueryEmbedding: q.Embedding,
		Communities:    comms,
		Relationships:  rels,
		TokenBudget:    q.TokenBudget,
	})

	res := RouteResult{
		Context:  dctx,
		Evidence: topEvidence(ranked, deps.Cfg.EvidenceTopK),
	}
	if q.Debug {
		res.Trace = map[string]any{
			"matched_communities":  len(comms),
			"hybrid_candidates":    len(hybrid),
			"traced_entities":      len(ranked),
			"pool_size":            len(pool),
			"distilled_candidates": len(dctx.Candidates),
		}
	}
	return res, nil
}

// appendCoverageGapFill inserts the lead chunk of every document missing
// from the pool, so a "summarize each document" answer cannot silently skip
// a document the retrievers never surfaced.
func appendCoverageGapFill(ctx context.Context, deps Deps, groupID string, pool []domain.Candidate) []domain.Candidate {
	leads, err := deps.Store.LeadChunks(ctx, groupID)
	if err != nil {
		deps.Log.Warn("coverage gap-fill failed", "error", err)
		return pool
	}
	present := make(map[string]bool, len(pool))
	for _, c := range pool {
		present[c.DocID] = true
	}
	for _, ch := range leads {
		if present[ch.DocID] || ch.Text == "" {
			continue
		}
		present[ch.DocID] = true
		pool = append(pool, domain.Candidate{
			ChunkID:   ch.ChunkID,
			DocID:     ch.DocID,
			SectionID: ch.SectionID,
			Text:      ch.Text,
			Sources:   []domain.CandidateSource{domain.SourceCommunity},
			BaseScore: 0,
			Embedding: ch.Embedding,
		})
	}
	return pool
}
