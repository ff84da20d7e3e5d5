package steps

import (
	"context"
	"sort"
	"sync"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/textutil"
)

// CommunityCache holds the per-group community lists, loaded once per
// process. The ingestion subsystem calls Invalidate after republishing a
// group's communities.
type CommunityCache struct {
	mu      sync.RWMutex
	byGroup map[string][]domain.Community
}

func NewCommunityCache() *CommunityCache {
	return &CommunityCache{byGroup: make(map[string][]domain.Community)}
}

func (cc *CommunityCache) Invalidate(groupID string) {
	cc.mu.Lock()
	delete(cc.byGroup, groupID)
	cc.mu.Unlock()
}

// Load returns the cached communities for a group, fetching and verifying
// them on first use. Communities whose embedding_text_hash disagrees with
// the current summary are re-embedded before they are cached; a community
// that cannot be re-embedded is excluded rather than scored stale.
func (cc *CommunityCache) Load(ctx context.Context, deps Deps, groupID string) ([]domain.Community, error) {
	cc.mu.RLock()
	cached, ok := cc.byGroup[groupID]
	cc.mu.RUnlock()
	if ok {
		return cached, nil
	}

	comms, err := deps.Store.FetchCommunities(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var stale []int
	for i, c := range comms {
		if textutil.HashText(c.Summary) != c.EmbeddingTextHash || len(c.SummaryEmbedding) == 0 {
			stale = append(stale, i)
		}
	}
	if len(stale) > 0 {
		deps.Log.Warn("stale community embeddings detected, re-embedding",
			"group_id", groupID, "count", len(stale))
		texts := make([]string, 0, len(stale))
		for _, i := range stale {
			texts = append(texts, comms[i].Summary)
		}
		vecs, err := deps.Embed.Embed(ctx, texts)
		if err != nil || len(vecs) != len(stale) {
			deps.Log.Warn("community re-embed failed, excluding stale communities",
				"group_id", groupID, "error", err)
			kept := make([]domain.Community, 0, len(comms))
			staleSet := make(map[int]bool, len(stale))
			for _, i := range stale {
				staleSet[i] = true
			}
			for i, c := range comms {
				if !staleSet[i] {
					kept = append(kept, c)
				}
			}
			comms = kept
		} else {
			for n, i := range stale {
				comms[i].SummaryEmbedding = vecs[n]
				comms[i].EmbeddingTextHash = textutil.HashText(comms[i].Summary)
			}
		}
	}

	cc.mu.Lock()
	cc.byGroup[groupID] = comms
	cc.mu.Unlock()
	return comms, nil
}

type ScoredCommunity struct {
	domain.Community
	Score float64
}

// MatchCommunities cosine-matches the query embedding against every
// community summary and keeps the top CommunityTopK above the score floor.
func MatchCommunities(ctx context.Context, deps Deps, groupID string, queryEmbedding []float32) ([]ScoredCommunity, error) {
	comms, err := deps.Communities.Load(ctx, deps, groupID)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredCommunity, 0, len(comms))
	for _, c := range comms {
		s := textutil.Cosine(queryEmbedding, c.SummaryEmbedding)
		if s < deps.Cfg.CommunityMinScore {
			continue
		}
		scored = append(scored, ScoredCommunity{Community: c, Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CommunityID < scored[j].CommunityID
	})
	if len(scored) > deps.Cfg.CommunityTopK {
		scored = scored[:deps.Cfg.CommunityTopK]
	}
	return scored, nil
}
