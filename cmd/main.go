package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/veridoc/veridoc-backend/internal/clients/redis"
	"github.com/veridoc/veridoc-backend/internal/data/graph"
	"github.com/veridoc/veridoc-backend/internal/data/repos"
	"github.com/veridoc/veridoc-backend/internal/db"
	"github.com/veridoc/veridoc-backend/internal/handlers"
	"github.com/veridoc/veridoc-backend/internal/modules/query"
	"github.com/veridoc/veridoc-backend/internal/modules/query/steps"
	"github.com/veridoc/veridoc-backend/internal/observability"
	"github.com/veridoc/veridoc-backend/internal/pkg/envutil"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/platform/neo4jdb"
	"github.com/veridoc/veridoc-backend/internal/platform/openai"
	"github.com/veridoc/veridoc-backend/internal/retrieval"
	"github.com/veridoc/veridoc-backend/internal/server"
	"github.com/veridoc/veridoc-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "veridoc-backend",
		Environment: envutil.Str("DEPLOY_ENV", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(ctx)
	}()

	// Config
	cfg := steps.LoadConfig(log)

	// Postgres (chunk text + lexical search)
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	chunkRepo := repos.NewChunkRepo(postgresService.DB(), log)

	// Neo4j (graph, vector, community operations)
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	defer neoClient.Close(context.Background())
	graphReader := graph.NewReader(neoClient, log)

	// Store
	store := retrieval.NewCorpusStore(graphReader, chunkRepo, log)

	// Upstream clients
	aiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	embedCache, err := redis.NewEmbedCache(log)
	if err != nil {
		log.Warn("Embed cache init failed, continuing without it", "error", err)
		embedCache = nil
	}
	if embedCache != nil {
		defer embedCache.Close()
	}

	// Services
	engine := query.NewService(log, store, aiClient, embedCache, cfg)
	querySvc := services.NewQueryService(log, engine)

	// Handlers
	queryHandler := handlers.NewQueryHandler(log, querySvc)

	// Router
	router := server.NewRouter(server.RouterConfig{
		ServiceName:  "veridoc-backend",
		QueryHandler: queryHandler,
	})

	port := envutil.Str("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
