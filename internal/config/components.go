package config

import (
	"strings"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/batch"
	"depth-whale-monitor/internal/domain"
	"depth-whale-monitor/internal/ingestion"
	"depth-whale-monitor/internal/orderbook"
	"depth-whale-monitor/internal/session"
	"depth-whale-monitor/internal/venue"
	"depth-whale-monitor/internal/whale"
)

// VenueClient returns the websocket client configuration.
func (c *Config) VenueClient() venue.Config {
	vc := venue.DefaultConfig()
	vc.HandshakeTimeout = c.Venue.HandshakeTimeout.Duration
	vc.SubscribeTimeout = c.Venue.SubscribeTimeout.Duration
	vc.PingInterval = c.Venue.PingInterval.Duration
	// the session liveness timer is the stricter bound; the socket deadline
	// only has to outlast it
	vc.ReadTimeout = 2 * c.Session.LivenessTimeout.Duration
	return vc
}

// SessionManager returns the session manager configuration.
func (c *Config) SessionManager() session.Config {
	return session.Config{
		Symbol:               c.Venue.Symbol,
		Depth:                c.Venue.Depth,
		LivenessTimeout:      c.Session.LivenessTimeout.Duration,
		BaseDelay:            c.Session.BaseDelay.Duration,
		MaxDelay:             c.Session.MaxDelay.Duration,
		Multiplier:           c.Session.Multiplier,
		Jitter:               c.Session.Jitter,
		MaxRetries:           c.Session.MaxRetries,
		ResetHistoryOnResync: c.Session.ResetHistoryOnResync,
	}
}

// OrderBook returns the snapshot store configuration.
func (c *Config) OrderBook() orderbook.Config {
	return orderbook.Config{
		Depth:         c.Venue.Depth,
		EmitDecreases: c.Book.EmitDecreases,
		History: orderbook.HistoryConfig{
			TTL:      c.Book.HistoryTTL.Duration,
			Capacity: c.Book.HistoryCapacity,
		},
	}
}

// Thresholds returns the whale classifier cutoffs.
func (c *Config) Thresholds() whale.Thresholds {
	perSymbol := make(map[string]decimal.Decimal, len(c.Whale.SymbolMinUSD))
	for sym, v := range c.Whale.SymbolMinUSD {
		perSymbol[strings.ToUpper(sym)] = decimal.NewFromFloat(v)
	}
	return whale.Thresholds{
		MinUSD:       decimal.NewFromFloat(c.Whale.MinUSD),
		SymbolMinUSD: perSymbol,
		Large:        decimal.NewFromFloat(c.Whale.Large),
		Huge:         decimal.NewFromFloat(c.Whale.Huge),
		Mega:         decimal.NewFromFloat(c.Whale.Mega),
	}
}

// Bands returns the depth bands in percent.
func (c *Config) Bands() []decimal.Decimal {
	bands := make([]decimal.Decimal, len(c.Stats.Bands))
	for i, b := range c.Stats.Bands {
		bands[i] = decimal.NewFromFloat(b)
	}
	return bands
}

// Pipeline returns the ingestion pipeline configuration.
func (c *Config) Pipeline() ingestion.Config {
	return ingestion.Config{
		Symbol:     c.Venue.Symbol,
		StatsEvery: c.Stats.StatsEvery,
		DepthEvery: c.Stats.DepthEvery,
	}
}

// Writer returns the batch writer configuration.
func (c *Config) Writer() batch.Config {
	return batch.Config{
		BatchSize:         c.Batch.Size,
		FlushInterval:     c.Batch.FlushInterval.Duration,
		MaxAttempts:       c.Batch.MaxAttempts,
		RetryBaseDelay:    c.Batch.RetryBaseDelay.Duration,
		RetryMaxDelay:     c.Batch.RetryMaxDelay.Duration,
		WriteTimeout:      c.Batch.WriteTimeout.Duration,
		MaxInFlight:       c.Batch.MaxInFlight,
		FinalFlushTimeout: c.Batch.FinalFlushTimeout.Duration,
	}
}

// Queue returns the point queue configuration.
func (c *Config) Queue() batch.QueueConfig {
	return batch.QueueConfig{
		Capacity: c.Batch.QueueCapacity,
		MaxWait:  c.Batch.QueueMaxWait.Duration,
	}
}

// NotifyMinCategory returns the lowest category that is notified.
func (c *Config) NotifyMinCategory() domain.Category {
	return domain.Category(c.Notify.MinCategory)
}
