package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atlasnotes/conceptmap-backend/internal/app"
	"github.com/atlasnotes/conceptmap-backend/internal/cache"
	"github.com/atlasnotes/conceptmap-backend/internal/classify"
	"github.com/atlasnotes/conceptmap-backend/internal/clients/docparse"
	"github.com/atlasnotes/conceptmap-backend/internal/clients/openai"
	"github.com/atlasnotes/conceptmap-backend/internal/costs"
	"github.com/atlasnotes/conceptmap-backend/internal/docstore"
	"github.com/atlasnotes/conceptmap-backend/internal/extract"
	"github.com/atlasnotes/conceptmap-backend/internal/graph"
	"github.com/atlasnotes/conceptmap-backend/internal/hierarchy"
	"github.com/atlasnotes/conceptmap-backend/internal/observability"
	"github.com/atlasnotes/conceptmap-backend/internal/parse"
	"github.com/atlasnotes/conceptmap-backend/internal/pipeline"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
	"github.com/atlasnotes/conceptmap-backend/internal/progress"
	"github.com/atlasnotes/conceptmap-backend/internal/store"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		log.Error("usage: conceptmap <document.pdf> [more.pdf ...]")
		os.Exit(2)
	}

	// Config
	cfg, err := app.LoadConfigFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Tracing (no-op unless OTEL_ENABLED)
	if shutdownTracing := observability.Init(context.Background(), log, observability.Config{
		ServiceName: "conceptmap",
		Environment: strings.TrimSpace(os.Getenv("APP_ENV")),
		Version:     cfg.PipelineVersion,
	}); shutdownTracing != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn("Tracing shutdown failed", "error", err)
			}
		}()
	}

	// Costs
	ledger := costs.NewLedger(prometheus.DefaultRegisterer)

	// Clients
	log.Info("Setting up external clients...")
	aiInner, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	ai := &openai.Instrumented{Inner: aiInner, Costs: ledger}

	structured, err := docparse.NewStructuredService(log)
	if err != nil {
		log.Warn("Structured parse service unavailable", "error", err)
	}
	ocr, err := docparse.NewOCRService(log)
	if err != nil {
		log.Warn("OCR service unavailable", "error", err)
	}

	// Pipeline stages
	classifier := classify.New(log, cfg.DigitalPageRatio, cfg.ScannedPageRatio, cfg.MinPageTextRunes)
	parser := parse.New(log, structured, ocr, ledger, parse.Options{
		StructuredMinConfidence: cfg.StructuredMinConfidence,
		OCRMinConfidence:        cfg.OCRMinConfidence,
		PlainTextConfidence:     cfg.PlainTextConfidence,
		StageTimeout:            cfg.ParseTimeout,
		MaxRetries:              cfg.ExternalMaxRetries,
		Backoff:                 cfg.ExternalBackoff,
	})
	extractor := hierarchy.New(log, cfg.SyntheticPageSpan)
	ensemble := extract.NewEnsemble(log, ai, cfg.MaxCandidatePhrases, extract.Options{
		MaxConcepts:             cfg.MaxConceptsPerNode,
		MinMethods:              cfg.MinMethodsFound,
		DefinitionMinConfidence: cfg.DefinitionMinConfidence,
	})

	// Result cache: Redis when configured, in-process otherwise.
	var resultCache cache.ResultCache
	redisCache, err := cache.NewRedis(log, cfg.CacheTTL)
	if err != nil {
		log.Warn("Redis cache unavailable, using in-process cache", "error", err)
	}
	if redisCache != nil {
		resultCache = redisCache
		defer redisCache.Close()
	} else {
		resultCache = cache.NewMemory()
	}

	// Progress sink: Redis pub/sub when configured, log lines otherwise.
	var notifier progress.Notifier
	bus, err := progress.NewRedisBus(log)
	if err != nil {
		log.Warn("Redis progress bus unavailable", "error", err)
	}
	if bus != nil {
		notifier = bus
		defer bus.Close()
	} else {
		notifier = progress.Func(func(u progress.Update) {
			log.Info("progress", "document_id", u.DocumentID, "stage", string(u.Stage), "percent", u.Percent, "message", u.Message)
		})
	}

	// Relational store (optional)
	var resultStore *store.Store
	if path := strings.TrimSpace(os.Getenv("SQLITE_PATH")); path != "" {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			log.Warn("SQLite open failed", "path", path, "error", err)
		} else if resultStore, err = store.New(db, log); err != nil {
			log.Warn("Result store init failed", "error", err)
			resultStore = nil
		}
	}

	// Graph mirror (optional)
	graphWriter, err := graph.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j graph mirror unavailable", "error", err)
	}

	orch, err := pipeline.New(log, cfg, pipeline.Deps{
		Classifier: classifier,
		Parser:     parser,
		Extractor:  extractor,
		Ensemble:   ensemble,
		AI:         ai,
		Cache:      resultCache,
		Notify:     notifier,
		Costs:      ledger,
		Store:      resultStore,
		Graph:      graphWriter,
	})
	if err != nil {
		log.Error("Could not init pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs := docstore.NewFilesystem(strings.TrimSpace(os.Getenv("DOCUMENT_ROOT")))
	outDir := strings.TrimSpace(os.Getenv("OUTPUT_DIR"))
	failed := false
	for _, path := range os.Args[1:] {
		data, err := docs.Load(ctx, path)
		if err != nil {
			log.Error("Could not read document", "path", path, "error", err)
			failed = true
			continue
		}
		documentID := uuid.New().String()
		log.Info("Processing document", "path", path, "document_id", documentID)

		res, err := orch.Process(ctx, documentID, data)
		if err != nil {
			log.Error("Processing failed", "path", path, "error", err)
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}

		log.Info("Document processed",
			"path", path,
			"method", res.Metrics.MethodUsed,
			"nodes", res.Metrics.NodeCount,
			"concepts", res.Metrics.ConceptCount,
			"relationships", res.Metrics.RelationshipCount,
			"cache_hit", res.Metrics.CacheHit,
			"duration", res.Metrics.Duration.String(),
		)

		if outDir != "" {
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			outPath := filepath.Join(outDir, base+".json")
			raw, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				log.Error("Could not marshal result", "path", path, "error", err)
				failed = true
				continue
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				log.Error("Could not write result", "path", outPath, "error", err)
				failed = true
				continue
			}
			log.Info("Result written", "path", outPath)
		}
	}

	if failed {
		os.Exit(1)
	}
}
