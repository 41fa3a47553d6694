// Package main implements the fleet compliance API server. It hosts the
// reconciliation engine, consumes raw extractions from NATS, and serves the
// REST surface used by dashboards and the expiry sweeper.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/clearhaul/fleetcomply/engine/extract"
	"github.com/clearhaul/fleetcomply/engine/graph"
	"github.com/clearhaul/fleetcomply/engine/ingest"
	"github.com/clearhaul/fleetcomply/engine/reconcile"
	"github.com/clearhaul/fleetcomply/engine/semantic"
	"github.com/clearhaul/fleetcomply/pkg/metrics"
	"github.com/clearhaul/fleetcomply/pkg/mid"
	"github.com/clearhaul/fleetcomply/pkg/ollama"
	"github.com/clearhaul/fleetcomply/pkg/resilience"
)

// Config holds all environment-based configuration. External stores are
// optional: an empty URL disables the integration and the engine runs
// in-memory only.
type Config struct {
	Port        string
	NATSURL     string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	QdrantURL   string
	Collection  string
	OllamaURL   string
	OllamaModel string
	EmbedDims   int
	CORSOrigin  string
	UploadRate  float64
	UploadBurst int
}

func loadConfig() Config {
	return Config{
		Port:        envOr("PORT", "8080"),
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:    envOr("NEO4J_URL", ""),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		QdrantURL:   envOr("QDRANT_URL", ""),
		Collection:  envOr("QDRANT_COLLECTION", "fleetcomply_documents"),
		OllamaURL:   envOr("OLLAMA_URL", ""),
		OllamaModel: envOr("OLLAMA_MODEL", "nomic-embed-text"),
		EmbedDims:   envIntOr("EMBED_DIMS", 768),
		CORSOrigin:  envOr("CORS_ORIGIN", "*"),
		UploadRate:  envFloatOr("UPLOAD_RATE", 10),
		UploadBurst: envIntOr("UPLOAD_BURST", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.New()
	engine := reconcile.New(logger)

	deps := ingest.Deps{
		Validator: extract.NewValidator(),
		Engine:    engine,
		Metrics:   registry,
		Logger:    logger,
	}

	// --- Neo4j snapshot projection (optional) ---
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		deps.Snapshots = graph.New(driver)
		logger.Info("snapshot projection enabled", "url", cfg.Neo4jURL)
	}

	// --- Qdrant near-duplicate index (optional, needs Ollama) ---
	if cfg.QdrantURL != "" && cfg.OllamaURL != "" {
		index, err := semantic.New(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer index.Close()
		if err := index.EnsureCollection(ctx, cfg.EmbedDims); err != nil {
			return fmt.Errorf("qdrant collection: %w", err)
		}
		deps.Index = index
		deps.Embedder = ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		logger.Info("near-duplicate detection enabled", "qdrant", cfg.QdrantURL, "model", cfg.OllamaModel)
	}

	processor := ingest.NewProcessor(deps)

	// --- NATS consumer ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := ingest.StartConsumer(nc, processor)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()
	logger.Info("consuming documents", "subject", ingest.Subject)

	// --- HTTP server ---
	api := newAPI(engine, processor, registry, logger)
	uploadLimiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.UploadRate, Burst: cfg.UploadBurst})

	handler := mid.Chain(api.routes(uploadLimiter),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("fleetcomply-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
