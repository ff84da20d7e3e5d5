package steps

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
)

type fusedChunk struct {
	chunkID string
	rrf     float64
	source  domain.CandidateSource
	docID   string
	chunk   domain.TextChunk
}

// RunHybrid fuses lexical and vector chunk retrieval with reciprocal rank
// fusion and applies document diversity. It is the sole retriever of the
// vector route and the evidence base of the global route.
//
// Each leg fails soft: the fused list is built from whichever legs
// succeeded, and an error is returned only when both legs failed.
func RunHybrid(ctx context.Context, deps Deps, groupID, queryText string, queryEmbedding []float32) ([]domain.Candidate, error) {
	cfg := deps.Cfg

	var vec, lex []domain.ScoredChunk
	var vecErr, lexErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, vecErr = deps.Store.VectorSearchChunks(gctx, groupID, queryEmbedding, cfg.KVector, 0)
		return nil
	})
	g.Go(func() error {
		lex, lexErr = deps.Store.BM25SearchChunks(gctx, groupID, queryText, cfg.KBM25)
		return nil
	})
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if vecErr != nil {
		deps.Log.Warn("hybrid vector leg failed", "error", vecErr)
	}
	if lexErr != nil {
		deps.Log.Warn("hybrid lexical leg failed", "error", lexErr)
	}
	if vecErr != nil && lexErr != nil {
		return nil, apierr.Wrap(apierr.KindGraphUnavailable, "steps.RunHybrid", vecErr)
	}

	vecRank := make(map[string]int, len(vec))
	for i, c := range vec {
		vecRank[c.ChunkID] = i + 1
	}
	lexRank := make(map[string]int, len(lex))
	for i, c := range lex {
		lexRank[c.ChunkID] = i + 1
	}

	seen := make(map[string]bool, len(vec)+len(lex))
	fused := make([]fusedChunk, 0, len(vec)+len(lex))
	for _, c := range vec {
		seen[c.ChunkID] = true
		fused = append(fused, fuse(c.ChunkID, vecRank, lexRank, cfg.RRFC))
	}
	for _, c := range lex {
		if seen[c.ChunkID] {
			continue
		}
		fused = append(fused, fuse(c.ChunkID, vecRank, lexRank, cfg.RRFC))
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].rrf != fused[j].rrf {
			return fused[i].rrf > fused[j].rrf
		}
		return fused[i].chunkID < fused[j].chunkID
	})

	ids := make([]string, 0, len(fused))
	for _, f := range fused {
		ids = append(ids, f.chunkID)
	}
	chunks, err := deps.Store.FetchChunks(ctx, groupID, ids)
	if err != nil {
		return nil, err
	}

	resolved := fused[:0]
	for i, f := range fused {
		ch := chunks[i]
		if !ch.Found || ch.Text == "" {
			continue
		}
		f.docID = ch.DocID
		f.chunk = ch
		resolved = append(resolved, f)
	}

	picked := diversify(resolved, cfg.MaxPerDoc, cfg.MinDocs, cfg.KOut)

	out := make([]domain.Candidate, 0, len(picked))
	for i, f := range picked {
		out = append(out, domain.Candidate{
			ChunkID:   f.chunk.ChunkID,
			DocID:     f.chunk.DocID,
			SectionID: f.chunk.SectionID,
			Text:      f.chunk.Text,
			Sources:   []domain.CandidateSource{f.source},
			BaseScore: f.rrf,
			Rank:      i + 1,
			Embedding: f.chunk.Embedding,
		})
	}
	return out, nil
}

func fuse(chunkID string, vecRank, lexRank map[string]int, rrfC int) fusedChunk {
	f := fusedChunk{chunkID: chunkID}
	rv, inVec := vecRank[chunkID]
	rb, inLex := lexRank[chunkID]
	if inVec {
		f.rrf += 1 / float64(rrfC+rv)
	}
	if inLex {
		f.rrf += 1 / float64(rrfC+rb)
	}
	// Source is whichever list ranked the chunk higher; vector wins ties.
	switch {
	case inVec && (!inLex || rv <= rb):
		f.source = domain.SourceVector
	default:
		f.source = domain.SourceBM25
	}
	return f
}

// diversify enforces the per-document cap while guaranteeing at least
// minDocs distinct documents when the fused set contains that many. If the
// cap leaves the output short of kOut, it is relaxed and the skipped chunks
// fill the remainder in fused order.
func diversify(fused []fusedChunk, maxPerDoc, minDocs, kOut int) []fusedChunk {
	if kOut <= 0 || len(fused) == 0 {
		return nil
	}

	perDoc := make(map[string]int)
	accepted := make([]fusedChunk, 0, kOut)
	var skipped []fusedChunk
	for _, f := range fused {
		if len(accepted) < kOut && perDoc[f.docID] < maxPerDoc {
			accepted = append(accepted, f)
			perDoc[f.docID]++
			continue
		}
		skipped = append(skipped, f)
	}

	// Swap in chunks from unseen documents until the minimum-docs floor is
	// met, evicting the lowest-ranked chunk of the most-represented doc.
	for _, f := range skipped {
		if len(perDoc) >= minDocs {
			break
		}
		if perDoc[f.docID] > 0 {
			continue
		}
		evict := -1
		for i := len(accepted) - 1; i >= 0; i-- {
			if perDoc[accepted[i].docID] > 1 {
				evict = i
				break
			}
		}
		if evict < 0 {
			break
		}
		perDoc[accepted[evict].docID]--
		accepted = append(accepted[:evict], accepted[evict+1:]...)
		accepted = append(accepted, f)
		perDoc[f.docID]++
	}

	if len(accepted) < kOut {
		for _, f := range skipped {
			if len(accepted) >= kOut {
				break
			}
			if containsChunk(accepted, f.chunkID) {
				continue
			}
			accepted = append(accepted, f)
		}
	}
	return accepted
}

func containsChunk(list []fusedChunk, chunkID string) bool {
	for _, f := range list {
		if f.chunkID == chunkID {
			return true
		}
	}
	return false
}
