package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults, loads .env if present and
// applies WHALE_* environment overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	cfg.Venue.Symbol = strings.ToUpper(cfg.Venue.Symbol)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose WHALE_* variable is set. Secrets
// are expected to arrive this way.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Venue.URL, "WHALE_VENUE_URL")
	setStr(&cfg.Venue.Symbol, "WHALE_VENUE_SYMBOL")
	setInt(&cfg.Venue.Depth, "WHALE_VENUE_DEPTH")

	setDuration(&cfg.Session.LivenessTimeout, "WHALE_SESSION_LIVENESS_TIMEOUT")
	setInt(&cfg.Session.MaxRetries, "WHALE_SESSION_MAX_RETRIES")
	setBool(&cfg.Session.ResetHistoryOnResync, "WHALE_SESSION_RESET_HISTORY_ON_RESYNC")

	setBool(&cfg.Book.EmitDecreases, "WHALE_BOOK_EMIT_DECREASES")

	setFloat64(&cfg.Whale.MinUSD, "WHALE_MIN_USD")

	setInt(&cfg.Stats.StatsEvery, "WHALE_STATS_EVERY")
	setInt(&cfg.Stats.DepthEvery, "WHALE_DEPTH_EVERY")

	setInt(&cfg.Batch.Size, "WHALE_BATCH_SIZE")
	setDuration(&cfg.Batch.FlushInterval, "WHALE_BATCH_FLUSH_INTERVAL")

	setStr(&cfg.Storage.Backend, "WHALE_STORAGE_BACKEND")
	setStr(&cfg.Storage.ClickHouseDSN, "WHALE_CLICKHOUSE_DSN")
	setStr(&cfg.Storage.PostgresDSN, "WHALE_POSTGRES_DSN")
	setBool(&cfg.Storage.RunMigrations, "WHALE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "WHALE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WHALE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WHALE_REDIS_DB")

	setStr(&cfg.Notify.MinCategory, "WHALE_NOTIFY_MIN_CATEGORY")
	setStr(&cfg.Notify.TelegramToken, "WHALE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WHALE_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.KafkaBrokers, "WHALE_NOTIFY_KAFKA_BROKERS")
	setStr(&cfg.Notify.KafkaTopic, "WHALE_NOTIFY_KAFKA_TOPIC")

	setStr(&cfg.Archive.Bucket, "WHALE_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.Region, "WHALE_ARCHIVE_REGION")
	setStr(&cfg.Archive.Endpoint, "WHALE_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.AccessKey, "WHALE_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "WHALE_ARCHIVE_SECRET_KEY")

	setStr(&cfg.Metrics.Addr, "WHALE_METRICS_ADDR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
