package steps

import (
	"context"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

type EmbedClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type LLMClient interface {
	GenerateText(ctx context.Context, system string, user string, maxOutputTokens int) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

// Deps is the shared dependency bundle threaded through every step.
type Deps struct {
	Store       retrieval.Store
	Embed       EmbedClient
	LLM         LLMClient
	Log         *logger.Logger
	Cfg         Config
	Communities *CommunityCache
}

// QueryState is the per-query working value owned by the dispatcher.
type QueryState struct {
	GroupID      string
	Text         string
	Embedding    []float32
	TokenBudget  int
	ResponseType domain.ResponseType
	Debug        bool
}

// RouteResult is what an orchestrator hands to the synthesizer.
type RouteResult struct {
	Context  domain.DistilledContext
	Evidence []domain.EvidenceNode
	Trace    map[string]any
}
