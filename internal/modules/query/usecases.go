// Package query is the engine's dispatch layer: request validation, query
// embedding, route classification, deadline enforcement, and assembly of
// the response envelope. The retrieval mechanics live in steps.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veridoc/veridoc-backend/internal/clients/redis"
	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/modules/query/steps"
	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/platform/openai"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
)

type Service struct {
	log   *logger.Logger
	ai    openai.Client
	cache redis.EmbedCache
	deps  steps.Deps
}

// NewService wires the dispatcher. cache may be nil; the engine then embeds
// every query directly.
func NewService(log *logger.Logger, store retrieval.Store, ai openai.Client, cache redis.EmbedCache, cfg steps.Config) *Service {
	svcLog := log.With("service", "QueryService")
	return &Service{
		log:   svcLog,
		ai:    ai,
		cache: cache,
		deps: steps.Deps{
			Store:       store,
			Embed:       ai,
			LLM:         ai,
			Log:         svcLog,
			Cfg:         cfg,
			Communities: steps.NewCommunityCache(),
		},
	}
}

// Communities exposes the cache's invalidation entry point to the ingestion
// side.
func (s *Service) Communities() *steps.CommunityCache { return s.deps.Communities }

// Query runs one request end to end under a single query-scoped deadline.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) domain.QueryResponse {
	start := time.Now()
	timings := map[string]int64{}

	if err := validate(&req, s.deps.Cfg); err != nil {
		msg := err.Error()
		if inner := errors.Unwrap(err); inner != nil {
			msg = inner.Error()
		}
		return domain.QueryResponse{
			Timings: map[string]int64{"total_ms": 0},
			Error:   "validation: " + msg,
		}
	}

	tracer := otel.Tracer("veridoc/query")
	ctx, span := tracer.Start(ctx, "query.Dispatch",
		trace.WithAttributes(attribute.String("group_id", req.GroupID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.DeadlineMS)*time.Millisecond)
	defer cancel()

	// Per-query bound on store operations in flight, shared by every
	// retriever the chosen route fans out to.
	deps := s.deps
	deps.Store = retrieval.WithLimit(s.deps.Store, s.deps.Cfg.MaxConcurrent)

	stage := time.Now()
	emb, err := s.embedQuery(ctx, req.QueryText)
	timings["embed_ms"] = time.Since(stage).Milliseconds()
	if err != nil {
		return s.failure(err, "", timings, start)
	}

	stage = time.Now()
	var route domain.Route
	var reason string
	if req.RouteOverride != "" {
		route, reason = domain.Route(req.RouteOverride), "override"
	} else {
		route, reason = steps.ClassifyRoute(ctx, deps, req.QueryText)
	}
	timings["classify_ms"] = time.Since(stage).Milliseconds()
	span.SetAttributes(attribute.String("route", string(route)))

	q := &steps.QueryState{
		GroupID:      req.GroupID,
		Text:         req.QueryText,
		Embedding:    emb,
		TokenBudget:  req.TokenBudget,
		ResponseType: req.ResponseType,
		Debug:        req.Debug,
	}

	stage = time.Now()
	res, err := steps.RouteFor(route)(ctx, deps, q)
	timings["retrieve_ms"] = time.Since(stage).Milliseconds()
	if err != nil {
		return s.failure(err, route, timings, start)
	}

	stage = time.Now()
	synth, err := steps.Synthesize(ctx, deps, q, res.Context)
	timings["synthesize_ms"] = time.Since(stage).Milliseconds()
	if err != nil {
		return s.failure(err, route, timings, start)
	}

	timings["total_ms"] = time.Since(start).Milliseconds()
	resp := domain.QueryResponse{
		AnswerText:    synth.AnswerText,
		Citations:     synth.Citations,
		RouteTaken:    route,
		Refused:       synth.Refused,
		EvidenceNodes: res.Evidence,
		Timings:       timings,
	}
	if req.Debug {
		trace := res.Trace
		if trace == nil {
			trace = map[string]any{}
		}
		trace["route_reason"] = reason
		trace["context_tokens"] = res.Context.TotalTokens
		resp.Trace = trace
	}
	return resp
}

// embedQuery returns the query embedding, consulting the cache first so a
// repeated query never hits the embedding endpoint twice.
func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	cacheModel := fmt.Sprintf("query/dim%d", s.ai.EmbedDim())
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, cacheModel, text); ok && len(vec) == s.ai.EmbedDim() {
			return vec, nil
		}
	}
	vecs, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apierr.New(apierr.KindEmbeddingUnavailable, "query.embedQuery", "embedding batch shape mismatch")
	}
	if s.cache != nil {
		s.cache.Put(ctx, cacheModel, text, vecs[0])
	}
	return vecs[0], nil
}

func validate(req *domain.QueryRequest, cfg steps.Config) error {
	if strings.TrimSpace(req.QueryText) == "" {
		return apierr.New(apierr.KindValidation, "query.validate", "query_text must not be empty")
	}
	if strings.TrimSpace(req.GroupID) == "" {
		return apierr.New(apierr.KindValidation, "query.validate", "group_id must not be empty")
	}
	if req.RouteOverride != "" && !domain.ValidRoute(req.RouteOverride) {
		return apierr.New(apierr.KindValidation, "query.validate",
			fmt.Sprintf("unknown route_override %q", req.RouteOverride))
	}
	if req.DeadlineMS < 0 {
		return apierr.New(apierr.KindValidation, "query.validate", "deadline_ms must be positive")
	}
	if req.TokenBudget < 0 {
		return apierr.New(apierr.KindValidation, "query.validate", "token_budget must be positive")
	}
	if req.DeadlineMS == 0 {
		req.DeadlineMS = cfg.DeadlineMS
	}
	if req.TokenBudget == 0 {
		req.TokenBudget = cfg.TokenBudget
	}
	switch req.ResponseType {
	case "":
		req.ResponseType = domain.ResponseSummary
	case domain.ResponseSummary, domain.ResponseDetailed:
	default:
		return apierr.New(apierr.KindValidation, "query.validate",
			fmt.Sprintf("unknown response_type %q", req.ResponseType))
	}
	return nil
}

// failure maps an error onto the response envelope. Deadline expiry becomes
// the timeout envelope with whatever timings were captured; everything else
// surfaces its taxonomy kind.
func (s *Service) failure(err error, route domain.Route, timings map[string]int64, start time.Time) domain.QueryResponse {
	timings["total_ms"] = time.Since(start).Milliseconds()
	resp := domain.QueryResponse{
		RouteTaken: route,
		Timings:    timings,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || apierr.IsKind(err, apierr.KindTimeout):
		resp.Error = "timeout"
	case errors.Is(err, context.Canceled):
		resp.Error = "canceled"
	default:
		s.log.Error("query failed", "route", route, "error", err)
		if kind := apierr.KindOf(err); kind != "" {
			resp.Error = string(kind)
		} else {
			resp.Error = err.Error()
		}
	}
	return resp
}
