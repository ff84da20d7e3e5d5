package steps

import (
	"regexp"
	"strconv"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// BindCitations resolves every [N] marker in the answer to the candidate at
// index N in the prompt context. Out-of-range markers are dropped with a
// warning; the claim text stays untouched.
func BindCitations(answerText string, dctx domain.DistilledContext, log *logger.Logger) []domain.Citation {
	matches := citationMarkerRe.FindAllStringSubmatch(answerText, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []domain.Citation
	for _, m := range matches {
		marker := m[0]
		if seen[marker] {
			continue
		}
		seen[marker] = true
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(dctx.Candidates) {
			log.Warn("unresolved citation marker dropped", "marker", marker, "context_size", len(dctx.Candidates))
			continue
		}
		c := dctx.Candidates[n-1]
		out = append(out, domain.Citation{
			Marker:  marker,
			ChunkID: c.ChunkID,
			SentID:  c.SentID,
			DocID:   c.DocID,
		})
	}
	return out
}
