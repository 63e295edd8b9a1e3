// Package config defines the monitor configuration: a TOML file layered over
// built-in defaults, with WHALE_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Venue   VenueConfig   `toml:"venue"`
	Session SessionConfig `toml:"session"`
	Book    BookConfig    `toml:"book"`
	Whale   WhaleConfig   `toml:"whale"`
	Stats   StatsConfig   `toml:"stats"`
	Batch   BatchConfig   `toml:"batch"`
	Storage StorageConfig `toml:"storage"`
	Redis   RedisConfig   `toml:"redis"`
	Notify  NotifyConfig  `toml:"notify"`
	Archive ArchiveConfig `toml:"archive"`
	Metrics MetricsConfig `toml:"metrics"`
}

// VenueConfig holds the exchange endpoint and subscription.
type VenueConfig struct {
	URL    string `toml:"url"`
	Symbol string `toml:"symbol"`
	// Depth is the visible window N per side.
	Depth            int      `toml:"depth"`
	HandshakeTimeout duration `toml:"handshake_timeout"`
	SubscribeTimeout duration `toml:"subscribe_timeout"`
	PingInterval     duration `toml:"ping_interval"`
}

// SessionConfig holds liveness and reconnect parameters.
type SessionConfig struct {
	LivenessTimeout      duration `toml:"liveness_timeout"`
	BaseDelay            duration `toml:"base_delay"`
	MaxDelay             duration `toml:"max_delay"`
	Multiplier           float64  `toml:"multiplier"`
	Jitter               float64  `toml:"jitter"`
	MaxRetries           int      `toml:"max_retries"`
	ResetHistoryOnResync bool     `toml:"reset_history_on_resync"`
}

// BookConfig holds diff engine and price history parameters.
type BookConfig struct {
	EmitDecreases   bool     `toml:"emit_decreases"`
	HistoryTTL      duration `toml:"history_ttl"`
	HistoryCapacity int      `toml:"history_capacity"`
}

// WhaleConfig holds USD thresholds.
type WhaleConfig struct {
	MinUSD       float64            `toml:"min_usd"`
	SymbolMinUSD map[string]float64 `toml:"symbol_min_usd"`
	Large        float64            `toml:"large"`
	Huge         float64            `toml:"huge"`
	Mega         float64            `toml:"mega"`
}

// StatsConfig holds depth bands (percent) and emission cadence.
type StatsConfig struct {
	Bands      []float64 `toml:"bands"`
	StatsEvery int       `toml:"stats_every"`
	DepthEvery int       `toml:"depth_every"`
}

// BatchConfig holds queue and writer parameters.
type BatchConfig struct {
	Size              int      `toml:"size"`
	FlushInterval     duration `toml:"flush_interval"`
	MaxAttempts       int      `toml:"max_attempts"`
	RetryBaseDelay    duration `toml:"retry_base_delay"`
	RetryMaxDelay     duration `toml:"retry_max_delay"`
	WriteTimeout      duration `toml:"write_timeout"`
	MaxInFlight       int      `toml:"max_in_flight"`
	FinalFlushTimeout duration `toml:"final_flush_timeout"`
	QueueCapacity     int      `toml:"queue_capacity"`
	QueueMaxWait      duration `toml:"queue_max_wait"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of clickhouse, postgres or memory.
	Backend       string `toml:"backend"`
	ClickHouseDSN string `toml:"clickhouse_dsn"`
	PostgresDSN   string `toml:"postgres_dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the latest-stats cache connection. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr      string   `toml:"addr"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db"`
	KeyPrefix string   `toml:"key_prefix"`
	TTL       duration `toml:"ttl"`
}

// NotifyConfig holds notification senders. With neither Telegram nor Kafka
// configured, notifications are disabled.
type NotifyConfig struct {
	MinCategory    string   `toml:"min_category"`
	Buffer         int      `toml:"buffer"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	KafkaBrokers   []string `toml:"kafka_brokers"`
	KafkaTopic     string   `toml:"kafka_topic"`
}

// ArchiveConfig holds the dead-letter S3 bucket. An empty Bucket disables
// archiving.
type ArchiveConfig struct {
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetricsConfig holds the metrics/health HTTP listener.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			URL:              "wss://stream.example-venue.com/ws",
			Symbol:           "BTC",
			Depth:            20,
			HandshakeTimeout: duration{10 * time.Second},
			SubscribeTimeout: duration{10 * time.Second},
			PingInterval:     duration{15 * time.Second},
		},
		Session: SessionConfig{
			LivenessTimeout: duration{30 * time.Second},
			BaseDelay:       duration{500 * time.Millisecond},
			MaxDelay:        duration{30 * time.Second},
			Multiplier:      2,
			Jitter:          0.5,
			MaxRetries:      0,
		},
		Book: BookConfig{
			EmitDecreases:   true,
			HistoryTTL:      duration{30 * time.Minute},
			HistoryCapacity: 5000,
		},
		Whale: WhaleConfig{
			MinUSD: 50_000,
			Large:  100_000,
			Huge:   500_000,
			Mega:   1_000_000,
		},
		Stats: StatsConfig{
			Bands:      []float64{0.1, 0.5, 1, 2, 5},
			StatsEvery: 1,
			DepthEvery: 0,
		},
		Batch: BatchConfig{
			Size:              500,
			FlushInterval:     duration{time.Second},
			MaxAttempts:       3,
			RetryBaseDelay:    duration{200 * time.Millisecond},
			RetryMaxDelay:     duration{5 * time.Second},
			WriteTimeout:      duration{10 * time.Second},
			MaxInFlight:       2,
			FinalFlushTimeout: duration{30 * time.Second},
			QueueCapacity:     10_000,
			QueueMaxWait:      duration{50 * time.Millisecond},
		},
		Storage: StorageConfig{
			Backend:       "clickhouse",
			ClickHouseDSN: "clickhouse://localhost:9000/default",
			RunMigrations: true,
		},
		Redis: RedisConfig{
			KeyPrefix: "whale:stats:",
			TTL:       duration{time.Minute},
		},
		Notify: NotifyConfig{
			MinCategory: "huge",
			Buffer:      256,
			KafkaTopic:  "whale-events",
		},
		Archive: ArchiveConfig{
			Prefix: "deadletter",
			Region: "us-east-1",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

var validBackends = map[string]bool{"clickhouse": true, "postgres": true, "memory": true}

var validCategories = map[string]bool{"standard": true, "large": true, "huge": true, "mega": true}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	// Venue
	if c.Venue.URL == "" {
		errs = append(errs, "venue: url must not be empty")
	} else if !strings.HasPrefix(c.Venue.URL, "ws://") && !strings.HasPrefix(c.Venue.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("venue: url %q must use ws:// or wss://", c.Venue.URL))
	}
	if c.Venue.Symbol == "" {
		errs = append(errs, "venue: symbol must not be empty")
	}
	if c.Venue.Depth <= 0 {
		errs = append(errs, "venue: depth must be positive")
	}

	// Session
	if c.Session.LivenessTimeout.Duration <= 0 {
		errs = append(errs, "session: liveness_timeout must be positive")
	}
	if c.Session.BaseDelay.Duration <= 0 {
		errs = append(errs, "session: base_delay must be positive")
	}
	if c.Session.MaxDelay.Duration < c.Session.BaseDelay.Duration {
		errs = append(errs, "session: max_delay must be >= base_delay")
	}
	if c.Session.Multiplier < 1 {
		errs = append(errs, "session: multiplier must be >= 1")
	}
	if c.Session.Jitter < 0 || c.Session.Jitter >= 1 {
		errs = append(errs, "session: jitter must be in [0, 1)")
	}
	if c.Session.MaxRetries < 0 {
		errs = append(errs, "session: max_retries must not be negative")
	}

	// Book
	if c.Book.HistoryTTL.Duration < 0 {
		errs = append(errs, "book: history_ttl must not be negative")
	}
	if c.Book.HistoryCapacity < 0 {
		errs = append(errs, "book: history_capacity must not be negative")
	} else if c.Book.HistoryCapacity > 0 && c.Book.HistoryCapacity < c.Venue.Depth {
		errs = append(errs, "book: history_capacity must be 0 or >= venue.depth")
	}

	// Whale
	if c.Whale.MinUSD < 0 {
		errs = append(errs, "whale: min_usd must not be negative")
	}
	if c.Whale.Large <= 0 || c.Whale.Huge <= c.Whale.Large || c.Whale.Mega <= c.Whale.Huge {
		errs = append(errs, "whale: cutoffs must satisfy 0 < large < huge < mega")
	}
	for sym, v := range c.Whale.SymbolMinUSD {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("whale: symbol_min_usd[%s] must not be negative", sym))
		}
	}

	// Stats
	if len(c.Stats.Bands) == 0 {
		errs = append(errs, "stats: at least one band is required")
	}
	for _, b := range c.Stats.Bands {
		if b <= 0 || b >= 100 {
			errs = append(errs, fmt.Sprintf("stats: band %v must be in (0, 100)", b))
		}
	}
	if c.Stats.StatsEvery <= 0 {
		errs = append(errs, "stats: stats_every must be positive")
	}
	if c.Stats.DepthEvery < 0 {
		errs = append(errs, "stats: depth_every must not be negative")
	}

	// Batch
	if c.Batch.Size <= 0 {
		errs = append(errs, "batch: size must be positive")
	}
	if c.Batch.FlushInterval.Duration <= 0 {
		errs = append(errs, "batch: flush_interval must be positive")
	}
	if c.Batch.MaxAttempts <= 0 {
		errs = append(errs, "batch: max_attempts must be positive")
	}
	if c.Batch.MaxInFlight <= 0 {
		errs = append(errs, "batch: max_in_flight must be positive")
	}
	if c.Batch.QueueCapacity < c.Batch.Size {
		errs = append(errs, "batch: queue_capacity must be >= size")
	}
	if c.Batch.QueueMaxWait.Duration < 0 {
		errs = append(errs, "batch: queue_max_wait must not be negative")
	}

	// Storage
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: clickhouse, postgres, memory)", c.Storage.Backend))
	}
	if c.Storage.Backend == "clickhouse" && c.Storage.ClickHouseDSN == "" {
		errs = append(errs, "storage: clickhouse_dsn is required for the clickhouse backend")
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresDSN == "" {
		errs = append(errs, "storage: postgres_dsn is required for the postgres backend")
	}

	// Notify
	if !validCategories[c.Notify.MinCategory] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_category %q", c.Notify.MinCategory))
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.KafkaTopic == "" {
		errs = append(errs, "notify: kafka_topic is required when kafka_brokers is set")
	}
	if c.NotifyEnabled() && c.Notify.Buffer <= 0 {
		errs = append(errs, "notify: buffer must be positive")
	}

	// Archive
	if c.Archive.Bucket != "" && c.Archive.Region == "" {
		errs = append(errs, "archive: region is required when bucket is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// NotifyEnabled reports whether any notification sender is configured.
func (c *Config) NotifyEnabled() bool {
	return c.Notify.TelegramToken != "" || len(c.Notify.KafkaBrokers) > 0
}
