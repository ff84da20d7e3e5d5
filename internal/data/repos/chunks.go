package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

// TextChunkRow mirrors the ingestion subsystem's chunk table. The query
// engine reads it; it never writes.
type TextChunkRow struct {
	ChunkID    string `gorm:"column:chunk_id;primaryKey"`
	GroupID    string `gorm:"column:group_id;index"`
	DocID      string `gorm:"column:doc_id;index"`
	DocTitle   string `gorm:"column:doc_title"`
	SectionID  string `gorm:"column:section_id"`
	Text       string `gorm:"column:text"`
	Page       int    `gorm:"column:page"`
	TokenCount int    `gorm:"column:token_count"`
	Embedding  string `gorm:"column:embedding"` // JSON float array, as written at index time
	Lead       bool   `gorm:"column:lead"`
}

func (TextChunkRow) TableName() string { return "text_chunk" }

type ChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) *ChunkRepo {
	return &ChunkRepo{db: db, log: log.With("repo", "ChunkRepo")}
}

// FetchChunks returns one entry per requested ID, in request order. Missing
// IDs yield zero-valued entries with Found=false, never an error.
func (r *ChunkRepo) FetchChunks(ctx context.Context, groupID string, chunkIDs []string) ([]domain.TextChunk, error) {
	out := make([]domain.TextChunk, len(chunkIDs))
	for i, id := range chunkIDs {
		out[i] = domain.TextChunk{ChunkID: id}
	}
	if len(chunkIDs) == 0 {
		return out, nil
	}

	var rows []TextChunkRow
	err := r.db.WithContext(ctx).
		Model(&TextChunkRow{}).
		Where("group_id = ?", groupID).
		Where("chunk_id IN ?", chunkIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}

	byID := make(map[string]TextChunkRow, len(rows))
	for _, row := range rows {
		byID[row.ChunkID] = row
	}
	for i, id := range chunkIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		out[i] = rowToChunk(row)
		out[i].Found = true
	}
	return out, nil
}

// LexicalSearch ranks chunks with Postgres full-text search, descending
// lexical score then ascending chunk_id.
func (r *ChunkRepo) LexicalSearch(ctx context.Context, groupID string, query string, k int) ([]domain.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	type row struct {
		ChunkID string  `gorm:"column:chunk_id"`
		Rank    float64 `gorm:"column:rank"`
	}
	var rows []row
	err := r.db.WithContext(ctx).Raw(fmt.Sprintf(`
SELECT chunk_id,
       ts_rank(to_tsvector('english', text), plainto_tsquery('english', ?)) AS rank
FROM text_chunk
WHERE group_id = ?
  AND to_tsvector('english', text) @@ plainto_tsquery('english', ?)
ORDER BY rank DESC, chunk_id ASC
LIMIT %d;
`, k), query, groupID, query).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(rows))
	for _, rw := range rows {
		if rw.ChunkID == "" {
			continue
		}
		out = append(out, domain.ScoredChunk{ChunkID: rw.ChunkID, Score: rw.Rank})
	}
	return out, nil
}

// LeadChunks returns the first chunk of each document in the group, ordered
// by doc_id for determinism.
func (r *ChunkRepo) LeadChunks(ctx context.Context, groupID string) ([]domain.TextChunk, error) {
	var rows []TextChunkRow
	err := r.db.WithContext(ctx).
		Model(&TextChunkRow{}).
		Where("group_id = ?", groupID).
		Where("lead = ?", true).
		Order("doc_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lead chunks: %w", err)
	}
	out := make([]domain.TextChunk, 0, len(rows))
	for _, row := range rows {
		ch := rowToChunk(row)
		ch.Found = true
		out = append(out, ch)
	}
	return out, nil
}

func rowToChunk(row TextChunkRow) domain.TextChunk {
	return domain.TextChunk{
		ChunkID:    row.ChunkID,
		DocID:      row.DocID,
		DocTitle:   row.DocTitle,
		SectionID:  row.SectionID,
		Text:       row.Text,
		Page:       row.Page,
		TokenCount: row.TokenCount,
		Embedding:  parseEmbeddingJSON(row.Embedding),
		Lead:       row.Lead,
	}
}

func parseEmbeddingJSON(raw string) []float32 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}
