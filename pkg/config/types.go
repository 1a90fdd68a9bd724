package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent strata configuration stored as config.toml
// in the .strata/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version" mapstructure:"version"`
	Relational  RelationalConfig  `toml:"relational" mapstructure:"relational"`
	VectorStore VectorStoreConfig `toml:"vector_store" mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding" mapstructure:"embedding"`
	Strategy    StrategyConfig    `toml:"strategy" mapstructure:"strategy"`
	Ingest      IngestConfig      `toml:"ingest" mapstructure:"ingest"`
	Query       QueryConfig       `toml:"query" mapstructure:"query"`
	Performance PerformanceConfig `toml:"performance" mapstructure:"performance"`
	Events      EventsConfig      `toml:"events" mapstructure:"events"`
	Log         LogConfig         `toml:"log" mapstructure:"log"`
}

// RelationalConfig selects the relational store. Provider is "sqlite" or
// "postgres"; DSN is only read for postgres.
type RelationalConfig struct {
	Provider   string `toml:"provider,omitempty" mapstructure:"provider"`
	DSN        string `toml:"dsn,omitempty" mapstructure:"dsn"`
	SQLitePath string `toml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
}

// VectorStoreConfig selects the vector store: "sqlitevec", "qdrant",
// "chroma" or "memory".
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty" mapstructure:"provider"`
	Target     string `toml:"target,omitempty" mapstructure:"target"`
	Collection string `toml:"collection,omitempty" mapstructure:"collection"`
	SQLitePath string `toml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
}

// EmbeddingConfig holds embedding provider settings. Dimensions is fixed for
// the lifetime of a deployment.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty" mapstructure:"provider"`
	Target     string `toml:"target,omitempty" mapstructure:"target"`
	Model      string `toml:"model,omitempty" mapstructure:"model"`
	Dimensions uint   `toml:"dimensions,omitempty" mapstructure:"dimensions"`
}

// StrategyConfig holds the classifier thresholds and the optional learned
// model.
type StrategyConfig struct {
	SmallBytes           int64    `toml:"small_bytes,omitempty" mapstructure:"small_bytes"`
	LargeBytes           int64    `toml:"large_bytes,omitempty" mapstructure:"large_bytes"`
	AcademicBytes        int64    `toml:"academic_bytes,omitempty" mapstructure:"academic_bytes"`
	AcademicDomains      []string `toml:"academic_domains,omitempty" mapstructure:"academic_domains"`
	HybridQueryPotential float64  `toml:"hybrid_query_potential,omitempty" mapstructure:"hybrid_query_potential"`
	HybridComplexity     float64  `toml:"hybrid_complexity,omitempty" mapstructure:"hybrid_complexity"`
	DenseInformation     float64  `toml:"dense_information,omitempty" mapstructure:"dense_information"`
	ModelPath            string   `toml:"model_path,omitempty" mapstructure:"model_path"`
	MinTrainingSamples   int      `toml:"min_training_samples,omitempty" mapstructure:"min_training_samples"`
	WatchModel           bool     `toml:"watch_model,omitempty" mapstructure:"watch_model"`
}

// IngestConfig bounds the ingestion pipeline.
type IngestConfig struct {
	MaxConcurrency    int `toml:"max_concurrency,omitempty" mapstructure:"max_concurrency"`
	MaxRetries        int `toml:"max_retries,omitempty" mapstructure:"max_retries"`
	RetryDelayMs      int `toml:"retry_delay_ms,omitempty" mapstructure:"retry_delay_ms"`
	MaxRetryDelayMs   int `toml:"max_retry_delay_ms,omitempty" mapstructure:"max_retry_delay_ms"`
	EmbedMaxChars     int `toml:"embed_max_chars,omitempty" mapstructure:"embed_max_chars"`
	AnalysisWindow    int `toml:"analysis_window,omitempty" mapstructure:"analysis_window"`
	AnalyzerTimeoutMs int `toml:"analyzer_timeout_ms,omitempty" mapstructure:"analyzer_timeout_ms"`
}

// QueryConfig holds the fusion weights and sub-query deadline.
type QueryConfig struct {
	VectorWeight      float64 `toml:"vector_weight,omitempty" mapstructure:"vector_weight"`
	TextWeight        float64 `toml:"text_weight,omitempty" mapstructure:"text_weight"`
	SubQueryTimeoutMs int     `toml:"sub_query_timeout_ms,omitempty" mapstructure:"sub_query_timeout_ms"`
	DefaultLimit      int     `toml:"default_limit,omitempty" mapstructure:"default_limit"`
	ScoreThreshold    float64 `toml:"score_threshold,omitempty" mapstructure:"score_threshold"`
}

// PerformanceConfig holds the tracker buffer and the recommendation rules.
type PerformanceConfig struct {
	BufferSize         int     `toml:"buffer_size,omitempty" mapstructure:"buffer_size"`
	FlushIntervalMs    int     `toml:"flush_interval_ms,omitempty" mapstructure:"flush_interval_ms"`
	SlowQueryMs        float64 `toml:"slow_query_ms,omitempty" mapstructure:"slow_query_ms"`
	ConsecutiveWindows int     `toml:"consecutive_windows,omitempty" mapstructure:"consecutive_windows"`
	WindowMinutes      int     `toml:"window_minutes,omitempty" mapstructure:"window_minutes"`
	HybridShare        float64 `toml:"hybrid_share,omitempty" mapstructure:"hybrid_share"`
	DynamicTableLimit  int     `toml:"dynamic_table_limit,omitempty" mapstructure:"dynamic_table_limit"`
	RetrainConfidence  float64 `toml:"retrain_confidence,omitempty" mapstructure:"retrain_confidence"`
	PartitionRows      int64   `toml:"partition_rows,omitempty" mapstructure:"partition_rows"`
	RetentionHours     int     `toml:"retention_hours,omitempty" mapstructure:"retention_hours"`
}

// EventsConfig selects where degraded-item events go: "nop" or "kafka".
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty" mapstructure:"provider"`
	Brokers  []string `toml:"brokers,omitempty" mapstructure:"brokers"`
	Topic    string   `toml:"topic,omitempty" mapstructure:"topic"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Debug  bool   `toml:"debug,omitempty" mapstructure:"debug"`
	Pretty bool   `toml:"pretty,omitempty" mapstructure:"pretty"`
	JSON   bool   `toml:"json,omitempty" mapstructure:"json"`
	File   string `toml:"file,omitempty" mapstructure:"file"`
}

func (c IngestConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c IngestConfig) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelayMs) * time.Millisecond
}

func (c IngestConfig) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutMs) * time.Millisecond
}

func (c QueryConfig) SubQueryTimeout() time.Duration {
	return time.Duration(c.SubQueryTimeoutMs) * time.Millisecond
}

func (c PerformanceConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func (c PerformanceConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

func (c PerformanceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*field(c) = out
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(name string, field func(c *Config) *int64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// orderedKeys lists every supported key in TOML section order.
var orderedKeys = []string{
	"relational.provider",
	"relational.dsn",
	"relational.sqlite_path",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"vector_store.sqlite_path",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"strategy.small_bytes",
	"strategy.large_bytes",
	"strategy.academic_bytes",
	"strategy.academic_domains",
	"strategy.hybrid_query_potential",
	"strategy.hybrid_complexity",
	"strategy.dense_information",
	"strategy.model_path",
	"strategy.min_training_samples",
	"strategy.watch_model",
	"ingest.max_concurrency",
	"ingest.max_retries",
	"ingest.retry_delay_ms",
	"ingest.max_retry_delay_ms",
	"ingest.embed_max_chars",
	"ingest.analysis_window",
	"ingest.analyzer_timeout_ms",
	"query.vector_weight",
	"query.text_weight",
	"query.sub_query_timeout_ms",
	"query.default_limit",
	"query.score_threshold",
	"performance.buffer_size",
	"performance.flush_interval_ms",
	"performance.slow_query_ms",
	"performance.consecutive_windows",
	"performance.window_minutes",
	"performance.hybrid_share",
	"performance.dynamic_table_limit",
	"performance.retrain_confidence",
	"performance.partition_rows",
	"performance.retention_hours",
	"events.provider",
	"events.brokers",
	"events.topic",
	"log.debug",
	"log.pretty",
	"log.json",
	"log.file",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relational.provider":    stringKey(func(c *Config) *string { return &c.Relational.Provider }),
	"relational.dsn":         stringKey(func(c *Config) *string { return &c.Relational.DSN }),
	"relational.sqlite_path": stringKey(func(c *Config) *string { return &c.Relational.SQLitePath }),

	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":  stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.sqlite_path": stringKey(func(c *Config) *string { return &c.VectorStore.SQLitePath }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"strategy.small_bytes":            int64Key("strategy.small_bytes", func(c *Config) *int64 { return &c.Strategy.SmallBytes }),
	"strategy.large_bytes":            int64Key("strategy.large_bytes", func(c *Config) *int64 { return &c.Strategy.LargeBytes }),
	"strategy.academic_bytes":         int64Key("strategy.academic_bytes", func(c *Config) *int64 { return &c.Strategy.AcademicBytes }),
	"strategy.academic_domains":       listKey(func(c *Config) *[]string { return &c.Strategy.AcademicDomains }),
	"strategy.hybrid_query_potential": floatKey("strategy.hybrid_query_potential", func(c *Config) *float64 { return &c.Strategy.HybridQueryPotential }),
	"strategy.hybrid_complexity":      floatKey("strategy.hybrid_complexity", func(c *Config) *float64 { return &c.Strategy.HybridComplexity }),
	"strategy.dense_information":      floatKey("strategy.dense_information", func(c *Config) *float64 { return &c.Strategy.DenseInformation }),
	"strategy.model_path":             stringKey(func(c *Config) *string { return &c.Strategy.ModelPath }),
	"strategy.min_training_samples":   intKey("strategy.min_training_samples", func(c *Config) *int { return &c.Strategy.MinTrainingSamples }),
	"strategy.watch_model":            boolKey("strategy.watch_model", func(c *Config) *bool { return &c.Strategy.WatchModel }),

	"ingest.max_concurrency":     intKey("ingest.max_concurrency", func(c *Config) *int { return &c.Ingest.MaxConcurrency }),
	"ingest.max_retries":         intKey("ingest.max_retries", func(c *Config) *int { return &c.Ingest.MaxRetries }),
	"ingest.retry_delay_ms":      intKey("ingest.retry_delay_ms", func(c *Config) *int { return &c.Ingest.RetryDelayMs }),
	"ingest.max_retry_delay_ms":  intKey("ingest.max_retry_delay_ms", func(c *Config) *int { return &c.Ingest.MaxRetryDelayMs }),
	"ingest.embed_max_chars":     intKey("ingest.embed_max_chars", func(c *Config) *int { return &c.Ingest.EmbedMaxChars }),
	"ingest.analysis_window":     intKey("ingest.analysis_window", func(c *Config) *int { return &c.Ingest.AnalysisWindow }),
	"ingest.analyzer_timeout_ms": intKey("ingest.analyzer_timeout_ms", func(c *Config) *int { return &c.Ingest.AnalyzerTimeoutMs }),

	"query.vector_weight":        floatKey("query.vector_weight", func(c *Config) *float64 { return &c.Query.VectorWeight }),
	"query.text_weight":          floatKey("query.text_weight", func(c *Config) *float64 { return &c.Query.TextWeight }),
	"query.sub_query_timeout_ms": intKey("query.sub_query_timeout_ms", func(c *Config) *int { return &c.Query.SubQueryTimeoutMs }),
	"query.default_limit":        intKey("query.default_limit", func(c *Config) *int { return &c.Query.DefaultLimit }),
	"query.score_threshold":      floatKey("query.score_threshold", func(c *Config) *float64 { return &c.Query.ScoreThreshold }),

	"performance.buffer_size":         intKey("performance.buffer_size", func(c *Config) *int { return &c.Performance.BufferSize }),
	"performance.flush_interval_ms":   intKey("performance.flush_interval_ms", func(c *Config) *int { return &c.Performance.FlushIntervalMs }),
	"performance.slow_query_ms":       floatKey("performance.slow_query_ms", func(c *Config) *float64 { return &c.Performance.SlowQueryMs }),
	"performance.consecutive_windows": intKey("performance.consecutive_windows", func(c *Config) *int { return &c.Performance.ConsecutiveWindows }),
	"performance.window_minutes":      intKey("performance.window_minutes", func(c *Config) *int { return &c.Performance.WindowMinutes }),
	"performance.hybrid_share":        floatKey("performance.hybrid_share", func(c *Config) *float64 { return &c.Performance.HybridShare }),
	"performance.dynamic_table_limit": intKey("performance.dynamic_table_limit", func(c *Config) *int { return &c.Performance.DynamicTableLimit }),
	"performance.retrain_confidence":  floatKey("performance.retrain_confidence", func(c *Config) *float64 { return &c.Performance.RetrainConfidence }),
	"performance.partition_rows":      int64Key("performance.partition_rows", func(c *Config) *int64 { return &c.Performance.PartitionRows }),
	"performance.retention_hours":     intKey("performance.retention_hours", func(c *Config) *int { return &c.Performance.RetentionHours }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"log.debug":  boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"log.pretty": boolKey("log.pretty", func(c *Config) *bool { return &c.Log.Pretty }),
	"log.json":   boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.file":   stringKey(func(c *Config) *string { return &c.Log.File }),
}
