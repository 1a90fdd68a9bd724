package config

const (
	defaultRelationalProvider = "sqlite"
	defaultRelationalSQLite   = "strata.sqlite"

	defaultVectorProvider   = "sqlitevec"
	defaultVectorTarget     = "localhost:6334"
	defaultVectorCollection = "strata_content"
	defaultVectorSQLite     = "vectors.sqlite"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "strata.items"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relational: RelationalConfig{
			Provider:   defaultRelationalProvider,
			SQLitePath: defaultRelationalSQLite,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultVectorCollection,
			SQLitePath: defaultVectorSQLite,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Strategy: StrategyConfig{
			SmallBytes:           50_000,
			LargeBytes:           50_000_000,
			AcademicBytes:        1_000_000,
			AcademicDomains:      []string{"science", "philosophy", "literature"},
			HybridQueryPotential: 0.8,
			HybridComplexity:     0.7,
			DenseInformation:     0.8,
			MinTrainingSamples:   50,
		},
		Ingest: IngestConfig{
			MaxConcurrency:    4,
			MaxRetries:        3,
			RetryDelayMs:      200,
			MaxRetryDelayMs:   5_000,
			EmbedMaxChars:     8_000,
			AnalysisWindow:    10_000,
			AnalyzerTimeoutMs: 2_000,
		},
		Query: QueryConfig{
			VectorWeight:      0.6,
			TextWeight:        0.4,
			SubQueryTimeoutMs: 5_000,
			DefaultLimit:      10,
		},
		Performance: PerformanceConfig{
			BufferSize:         1024,
			FlushIntervalMs:    1_000,
			SlowQueryMs:        200,
			ConsecutiveWindows: 3,
			WindowMinutes:      60,
			HybridShare:        0.5,
			DynamicTableLimit:  20,
			RetrainConfidence:  0.7,
			PartitionRows:      1_000_000,
			RetentionHours:     168,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Brokers:  []string{"localhost:9092"},
			Topic:    defaultEventsTopic,
		},
		Log: LogConfig{
			Pretty: true,
		},
	}
}
