// Command knowledgetree runs the knowledge-management backend: the
// background ingestion pipeline, the job queue consumer, and the hybrid
// retrieval/chat HTTP-less process wiring shared by callers in-process.
// Structured around config.LoadConfig + explicit collaborator
// construction, following cmd/orchestrator/main.go's run()-returns-error
// shape rather than inline error handling in main().
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"knowledgetree/internal/agentbrowser"
	"knowledgetree/internal/chat"
	"knowledgetree/internal/chunker"
	"knowledgetree/internal/config"
	"knowledgetree/internal/embedder"
	"knowledgetree/internal/ingest"
	"knowledgetree/internal/jobqueue"
	"knowledgetree/internal/llm"
	"knowledgetree/internal/llm/providers"
	"knowledgetree/internal/observability"
	"knowledgetree/internal/pdf"
	"knowledgetree/internal/pipeline"
	"knowledgetree/internal/retrieve/bm25"
	"knowledgetree/internal/retrieve/crag"
	"knowledgetree/internal/retrieve/dense"
	"knowledgetree/internal/retrieve/expand"
	"knowledgetree/internal/retrieve/fusion"
	"knowledgetree/internal/retrieve/rerank"
	"knowledgetree/internal/scrape"
	"knowledgetree/internal/storage"
	"knowledgetree/internal/youtube"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("knowledgetree")
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger("", "info")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	otelShutdown, err := observability.InitOTel(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("otel shutdown")
			}
		}()
	}

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	store, err := storage.NewPostgres(ctx, pool, cfg.Embeddings.Dimensions)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	provider, err := providers.Build(*cfg, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	emb := embedder.NewClient(cfg.Embeddings, cfg.Embeddings.Dimensions)

	retrieval, err := buildRetrievalCoordinator(ctx, cfg, store, emb, provider)
	if err != nil {
		return fmt.Errorf("init retrieval coordinator: %w", err)
	}

	coordinator := buildIngestCoordinator(cfg, store, emb, provider)

	history := store // *storage.Postgres implements chat.History directly
	assembler := chat.New(retrieval, provider, history)
	_ = assembler // wired for in-process callers (webui/API layer); invoked via Run per chat request

	agentRunner := chat.NewAgentModeRunner(
		agentbrowser.New(provider, scrape.NewFastEngine(true), agentbrowser.Config{}),
		provider,
		cfg.Completions.CompletionsModel,
	)
	_ = agentRunner

	if cfg.Kafka.Enabled {
		progressBus, err := jobqueue.NewProgressBus(cfg.Redis)
		if err != nil {
			return fmt.Errorf("init progress bus: %w", err)
		}
		consumer := jobqueue.NewConsumer(cfg.Kafka, coordinator, progressBus)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.JobsTopic).Msg("starting ingestion job consumer")
		if err := consumer.Run(ctx); err != nil {
			return fmt.Errorf("job consumer terminated: %w", err)
		}
		return nil
	}

	log.Warn().Msg("kafka disabled: ingestion jobs must be run inline via ingest.Coordinator.Run; no consumer started")
	<-ctx.Done()
	return nil
}

// buildRetrievalCoordinator wires the hybrid pipeline:
// dense+sparse fan-out, RRF fusion, cross-encoder reranking (with the
// optimizer skip decision), CRAG, and recency boost, per spec.md §6.
func buildRetrievalCoordinator(ctx context.Context, cfg *config.Config, store *storage.Postgres, emb embedder.Embedder, provider llm.Provider) (*pipeline.Coordinator, error) {
	denseRetriever := dense.New(store)
	sparseIndex := bm25.New(cfg.BM25.K1, cfg.BM25.B)

	// Warm the sparse index from whatever is already persisted. This is the
	// only rebuild: chunks ingested later are not in the index until the
	// process restarts.
	rows, err := store.AllChunkTexts(ctx, 0)
	if err != nil {
		log.Warn().Err(err).Msg("bm25 warm rebuild skipped: could not load chunk texts")
	} else {
		docs := make([]bm25.Doc, len(rows))
		for i, r := range rows {
			docs[i] = bm25.Doc{ID: r.ChunkID, Text: r.Text}
		}
		sparseIndex.Rebuild(docs)
	}

	expander := expand.NewLLM(provider, cfg.Completions.CompletionsModel)
	cragEvaluator := crag.New(crag.Thresholds{
		HighMin:   cfg.CRAG.HighConfidenceMin,
		MediumMin: cfg.CRAG.MediumConfidenceMin,
		LowMin:    cfg.CRAG.LowConfidenceMin,
	})

	return pipeline.New(denseRetriever, sparseIndex, emb,
		pipeline.WithLogger(observability.NewZeroLogger()),
		pipeline.WithMetrics(observability.NewOtelMetrics()),
		pipeline.WithReranker(rerank.New(cfg.Reranker)),
		pipeline.WithExpander(expander),
		pipeline.WithCRAG(cragEvaluator),
		pipeline.WithTimestampLookup(store.DocumentTimestamp),
		pipeline.WithFusionOptions(fusion.Options{
			DenseWeight:  cfg.Retrieval.DenseWeight,
			SparseWeight: cfg.Retrieval.SparseWeight,
			RRFK:         cfg.Retrieval.RRFK,
		}),
		pipeline.WithOptimizerThresholds(rerank.OptimizerThresholds{
			Top1Min:  cfg.Retrieval.OptimizerTop1Min,
			GapMin:   cfg.Retrieval.OptimizerGapMin,
			StdDevMax: cfg.Retrieval.OptimizerStdDevMax,
		}),
	), nil
}

// buildIngestCoordinator wires every extraction backend (PDF waterfall,
// the three scrape engines plus selector, the agentic browser, and the
// YouTube transcript extractor) into one ingest.Coordinator.
func buildIngestCoordinator(cfg *config.Config, store *storage.Postgres, emb embedder.Embedder, provider llm.Provider) *ingest.Coordinator {
	selector := scrape.NewSelector(provider, cfg.Completions.CompletionsModel)
	engines := map[string]scrape.Engine{
		"fast":     scrape.NewFastEngine(true),
		"headless": scrape.NewHeadlessEngine(cfg.Scrape),
		"managed":  scrape.NewManagedEngine(cfg.Scrape),
	}
	browser := agentbrowser.New(provider, engines["fast"], agentbrowser.Config{})

	return ingest.New(ingest.Dependencies{
		Store:         store,
		Embedder:      emb,
		TextExtractor: pdf.NewTextExtractor(),
		Selector:      selector,
		Engines:       engines,
		YouTube:       youtube.New(""),
		Browser:       browser,
		Ingestion:     cfg.Ingestion,
		Chunk:         chunker.Options{},
	})
}

func init() {
	if os.Getenv("KNOWLEDGETREE_DEBUG") != "" {
		log.Logger = log.With().Caller().Logger()
	}
}
