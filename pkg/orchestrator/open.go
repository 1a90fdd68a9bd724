package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/analyzer"
	"github.com/papercomputeco/strata/pkg/catalog"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/strata/pkg/embeddings/utils"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/eventstream/kafka"
	"github.com/papercomputeco/strata/pkg/eventstream/nop"
	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/ledger"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/perf"
	"github.com/papercomputeco/strata/pkg/query"
	"github.com/papercomputeco/strata/pkg/retry"
	"github.com/papercomputeco/strata/pkg/schema"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/storage/postgres"
	"github.com/papercomputeco/strata/pkg/storage/sqlite"
	"github.com/papercomputeco/strata/pkg/strategy"
	"github.com/papercomputeco/strata/pkg/strategy/model"
	vectorutils "github.com/papercomputeco/strata/pkg/vector/utils"
	"github.com/papercomputeco/strata/pkg/writer"
)

// Open builds an Orchestrator from configuration. Relative SQLite paths
// and the model path resolve inside the .strata directory selected by
// configDir. System tables are created before Open returns.
func Open(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{}
	ok := false
	defer func() {
		if !ok {
			_ = o.Close(context.WithoutCancel(ctx))
		}
	}()

	dirs := dotdir.NewManager()
	resolve := func(name string) (string, error) {
		if name == ":memory:" {
			return name, nil
		}
		return dirs.File(configDir, name)
	}

	db, err := openRelational(ctx, cfg.Relational, resolve)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, func(context.Context) error { return db.Close() })

	vecPath, err := resolve(cfg.VectorStore.SQLitePath)
	if err != nil {
		return nil, err
	}
	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       cfg.VectorStore.Target,
		Collection:   cfg.VectorStore.Collection,
		SQLitePath:   vecPath,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger.Component(log, "vector"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	o.closers = append(o.closers, func(context.Context) error { return vectors.Close() })

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxChars:     cfg.Ingest.EmbedMaxChars,
		Logger:       logger.Component(log, "embeddings"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	events, err := openEvents(cfg.Events, log)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, func(context.Context) error { return events.Close() })

	mgr := schema.NewManager(db, logger.Component(log, "schema"))
	cat := catalog.New(db, logger.Component(log, "catalog"))
	sqlLedger := ledger.NewSQL(db)
	perfStore := perf.NewStore(db)
	recommender := perf.NewRecommender(perf.RecommenderConfig{
		Store:   perfStore,
		Schema:  mgr,
		Catalog: cat,
		Rules: perf.Rules{
			SlowQueryMs:        cfg.Performance.SlowQueryMs,
			ConsecutiveWindows: cfg.Performance.ConsecutiveWindows,
			Window:             cfg.Performance.Window(),
			HybridShare:        cfg.Performance.HybridShare,
			DynamicTableLimit:  cfg.Performance.DynamicTableLimit,
			RetrainConfidence:  cfg.Performance.RetrainConfidence,
			PartitionRows:      cfg.Performance.PartitionRows,
		},
		Logger: logger.Component(log, "recommender"),
	})
	if err := mgr.EnsureSystemTables(ctx, cat, sqlLedger, perfStore, recommender); err != nil {
		return nil, fmt.Errorf("creating system tables: %w", err)
	}

	led := ledger.NewFallback(sqlLedger, ledger.NewMemory(), logger.Component(log, "ledger"))

	extractor, err := features.New(features.Config{
		Window:          cfg.Ingest.AnalysisWindow,
		AcademicDomains: cfg.Strategy.AcademicDomains,
		Logger:          logger.Component(log, "features"),
	})
	if err != nil {
		return nil, err
	}

	classifier := strategy.NewClassifier(strategy.Config{
		Thresholds: strategy.Thresholds{
			SmallBytes:           cfg.Strategy.SmallBytes,
			LargeBytes:           cfg.Strategy.LargeBytes,
			AcademicBytes:        cfg.Strategy.AcademicBytes,
			AcademicDomains:      cfg.Strategy.AcademicDomains,
			HybridQueryPotential: cfg.Strategy.HybridQueryPotential,
			HybridComplexity:     cfg.Strategy.HybridComplexity,
			DenseInformation:     cfg.Strategy.DenseInformation,
		},
		MinSamples: cfg.Strategy.MinTrainingSamples,
		Logger:     logger.Component(log, "classifier"),
	})
	if err := loadModel(ctx, o, classifier, cfg.Strategy, resolve, log); err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:  cfg.Ingest.MaxRetries,
		InitialDelay: cfg.Ingest.RetryDelay(),
		MaxDelay:     cfg.Ingest.MaxRetryDelay(),
	}

	w := writer.New(writer.Config{
		Schema:  mgr,
		Vectors: vectors,
		Catalog: cat,
		Ledger:  led,
		Events:  events,
		Retry:   policy,
		Logger:  logger.Component(log, "writer"),
	})

	engine := query.NewEngine(query.Config{
		Schema:   mgr,
		Vectors:  vectors,
		Embedder: embedder,
		Catalog:  cat,
		Weights: query.Weights{
			Vector: cfg.Query.VectorWeight,
			Text:   cfg.Query.TextWeight,
		},
		SubQueryTimeout: cfg.Query.SubQueryTimeout(),
		DefaultLimit:    cfg.Query.DefaultLimit,
		Logger:          logger.Component(log, "query"),
	})

	tracker := perf.NewTracker(perf.TrackerConfig{
		Store:         perfStore,
		BufferSize:    cfg.Performance.BufferSize,
		FlushInterval: cfg.Performance.FlushInterval(),
		Logger:        logger.Component(log, "perf"),
	})

	closers := o.closers
	*o = *New(Config{
		Extractor:       extractor,
		Classifier:      classifier,
		Analyzer:        analyzer.NewKeyword(cfg.Ingest.AnalysisWindow),
		Embedder:        embedder,
		Writer:          w,
		Engine:          engine,
		Schema:          mgr,
		Catalog:         cat,
		Ledger:          led,
		Perf:            perfStore,
		Tracker:         tracker,
		Recommender:     recommender,
		AnalyzerTimeout: cfg.Ingest.AnalyzerTimeout(),
		MaxConcurrency:  cfg.Ingest.MaxConcurrency,
		EmbedRetry:      policy,
		Retention:       cfg.Performance.Retention(),
		Logger:          log,
	})
	o.closers = closers

	ok = true
	log.Debug("orchestrator ready",
		"relational", cfg.Relational.Provider,
		"vector_store", cfg.VectorStore.Provider,
		"embedding", cfg.Embedding.Provider,
		"dimensions", cfg.Embedding.Dimensions,
		"events", cfg.Events.Provider,
	)
	return o, nil
}

func openRelational(ctx context.Context, c config.RelationalConfig, resolve func(string) (string, error)) (storage.Driver, error) {
	switch c.Provider {
	case "sqlite":
		path, err := resolve(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewDriver(path)
	case "postgres":
		return postgres.NewDriver(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("unsupported relational provider: %s", c.Provider)
	}
}

func openEvents(c config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch c.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: c.Brokers,
			Topic:   c.Topic,
			Logger:  logger.Component(log, "events"),
		})
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.Provider)
	}
}

// loadModel installs the trained model when one is configured. A missing
// or invalid model leaves the heuristic rules in charge.
func loadModel(ctx context.Context, o *Orchestrator, cl *strategy.Classifier, c config.StrategyConfig, resolve func(string) (string, error), log *slog.Logger) error {
	if c.ModelPath == "" {
		return nil
	}
	path, err := resolve(c.ModelPath)
	if err != nil {
		return err
	}

	if m, err := model.Load(path); err != nil {
		log.Warn("strategy model not loaded, using heuristic rules",
			"path", path,
			"error", fmt.Errorf("%w: %w", strategy.ErrClassificationUnavailable, err),
		)
	} else {
		cl.SetModel(m)
		log.Info("loaded strategy model", "path", path, "samples", m.SampleCount)
	}

	if !c.WatchModel {
		return nil
	}
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := model.Watch(wctx, path, func(m *model.CentroidModel) { cl.SetModel(m) }, logger.Component(log, "model"))
		if err != nil {
			log.Warn("strategy model watcher stopped", "error", err)
		}
	}()
	o.closers = append(o.closers, func(context.Context) error {
		cancel()
		<-done
		return nil
	})
	return nil
}
