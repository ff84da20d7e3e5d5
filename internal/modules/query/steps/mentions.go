package steps

import (
	"context"
	"sort"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

// ExpandMentions turns ranked entities into chunk candidates by following
// MENTIONS edges. Each chunk inherits the score of its best-scoring source
// entity, so traversal relevance flows through to the distiller. Section
// and document caps keep one well-connected entity from flooding the pool.
func ExpandMentions(ctx context.Context, deps Deps, groupID string, ranked []domain.ScoredEntity) ([]domain.Candidate, error) {
	cfg := deps.Cfg
	if len(ranked) == 0 {
		return nil, nil
	}
	if len(ranked) > cfg.EvidenceTopK {
		ranked = ranked[:cfg.EvidenceTopK]
	}

	ids := make([]string, 0, len(ranked))
	scoreByID := make(map[string]float64, len(ranked))
	for _, e := range ranked {
		ids = append(ids, e.EntityID)
		scoreByID[e.EntityID] = e.Score
	}
	ents, err := deps.Store.FetchEntities(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ents))
	scoreByName := make(map[string]float64, len(ents))
	idByName := make(map[string]string, len(ents))
	for _, e := range ents {
		if isArtifactName(e.Name) {
			continue
		}
		s := scoreByID[e.EntityID]
		if prev, ok := scoreByName[e.Name]; !ok {
			names = append(names, e.Name)
			scoreByName[e.Name] = s
			idByName[e.Name] = e.EntityID
		} else if s > prev {
			scoreByName[e.Name] = s
			idByName[e.Name] = e.EntityID
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	hits, err := deps.Store.MentionsToChunks(ctx, groupID, names, cfg.MaxChunksPerEntity)
	if err != nil {
		return nil, err
	}

	type agg struct {
		score   float64
		anchors map[string]bool
	}
	byChunk := make(map[string]*agg)
	var chunkOrder []string
	for _, h := range hits {
		a, ok := byChunk[h.ChunkID]
		if !ok {
			a = &agg{anchors: make(map[string]bool)}
			byChunk[h.ChunkID] = a
			chunkOrder = append(chunkOrder, h.ChunkID)
		}
		if s := scoreByName[h.EntityName]; s > a.score {
			a.score = s
		}
		a.anchors[idByName[h.EntityName]] = true
	}

	chunks, err := deps.Store.FetchChunks(ctx, groupID, chunkOrder)
	if err != nil {
		return nil, err
	}

	cands := make([]domain.Candidate, 0, len(chunks))
	for i, ch := range chunks {
		if !ch.Found || ch.Text == "" {
			continue
		}
		a := byChunk[chunkOrder[i]]
		anchors := make([]string, 0, len(a.anchors))
		for id := range a.anchors {
			anchors = append(anchors, id)
		}
		sort.Strings(anchors)
		cands = append(cands, domain.Candidate{
			ChunkID:       ch.ChunkID,
			DocID:         ch.DocID,
			SectionID:     ch.SectionID,
			Text:          ch.Text,
			Sources:       []domain.CandidateSource{domain.SourceMentions},
			BaseScore:     a.score,
			EntityAnchors: anchors,
			Embedding:     ch.Embedding,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].BaseScore != cands[j].BaseScore {
			return cands[i].BaseScore > cands[j].BaseScore
		}
		return cands[i].ChunkID < cands[j].ChunkID
	})

	perSection := make(map[string]int)
	perDoc := make(map[string]int)
	out := cands[:0]
	for _, c := range cands {
		if perSection[c.SectionID] >= cfg.MentionsMaxPerSection {
			continue
		}
		if perDoc[c.DocID] >= cfg.MentionsMaxPerDoc {
			continue
		}
		perSection[c.SectionID]++
		perDoc[c.DocID]++
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out, nil
}
