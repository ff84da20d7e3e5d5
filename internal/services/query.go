package services

import (
	"context"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/modules/query"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

// QueryService is the handler-facing surface of the engine.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) domain.QueryResponse
	// InvalidateCommunities drops a group's cached community list after the
	// ingestion side republishes it.
	InvalidateCommunities(groupID string)
}

type queryService struct {
	log    *logger.Logger
	engine *query.Service
}

func NewQueryService(log *logger.Logger, engine *query.Service) QueryService {
	return &queryService{
		log:    log.With("service", "QueryFacade"),
		engine: engine,
	}
}

func (s *queryService) Query(ctx context.Context, req domain.QueryRequest) domain.QueryResponse {
	return s.engine.Query(ctx, req)
}

func (s *queryService) InvalidateCommunities(groupID string) {
	s.log.Info("invalidating community cache", "group_id", groupID)
	s.engine.Communities().Invalidate(groupID)
}
