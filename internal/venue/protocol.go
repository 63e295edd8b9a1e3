package venue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"depth-whale-monitor/internal/domain"
)

// ErrMalformedMessage is returned for a frame that cannot be decoded into a
// depth snapshot, trade batch, ack or error.
var ErrMalformedMessage = errors.New("malformed message")

// Channel names.
const (
	ChannelDepth  = "depth"
	ChannelTrades = "trades"
)

// Operations.
const (
	opSubscribe  = "subscribe"
	opSubscribed = "subscribed"
	opError      = "error"
)

// Kind identifies a decoded message.
type Kind int

// Message kinds.
const (
	KindDepth Kind = iota + 1
	KindTrades
	KindAck
	KindError
	KindMalformed
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindTrades:
		return "trades"
	case KindAck:
		return "ack"
	case KindError:
		return "error"
	case KindMalformed:
		return "malformed"
	case KindIgnored:
		return "ignored"
	}
	return "unknown"
}

// Message is one decoded frame.
type Message struct {
	Kind    Kind
	Channel string

	Depth  *domain.OrderBookSnapshot // KindDepth
	Trades []domain.TradeEvent       // KindTrades
	Err    error                     // KindError, KindMalformed
}

type subscribeRequest struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Depth   int    `json:"depth,omitempty"`
}

type envelope struct {
	Op      string          `json:"op"`
	Channel string          `json:"channel"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type depthData struct {
	Symbol  string              `json:"symbol"`
	Version *int64              `json:"version"`
	TS      int64               `json:"ts"`
	Bids    [][]json.RawMessage `json:"bids"`
	Asks    [][]json.RawMessage `json:"asks"`
}

type tradeData struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"px"`
	Size   decimal.Decimal `json:"sz"`
	Side   string          `json:"side"`
	TS     int64           `json:"ts"`
}

// Decode parses one frame. Depth and trade data must carry the venue
// timestamp. A frame that cannot be decoded yields KindMalformed with an
// error wrapping ErrMalformedMessage; unknown channels yield KindIgnored.
func Decode(frame []byte) Message {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return malformed("", fmt.Errorf("envelope: %w", err))
	}

	switch env.Op {
	case "":
	case opSubscribed:
		return Message{Kind: KindAck, Channel: env.Channel}
	case opError:
		return Message{Kind: KindError, Channel: env.Channel, Err: fmt.Errorf("venue error: %s", env.Msg)}
	default:
		return Message{Kind: KindIgnored, Channel: env.Channel}
	}

	switch env.Channel {
	case ChannelDepth:
		snap, err := decodeDepth(env.Data)
		if err != nil {
			return malformed(env.Channel, err)
		}
		return Message{Kind: KindDepth, Channel: env.Channel, Depth: snap}
	case ChannelTrades:
		trades, err := decodeTrades(env.Data)
		if err != nil {
			return malformed(env.Channel, err)
		}
		return Message{Kind: KindTrades, Channel: env.Channel, Trades: trades}
	}
	return Message{Kind: KindIgnored, Channel: env.Channel}
}

func malformed(channel string, err error) Message {
	return Message{Kind: KindMalformed, Channel: channel, Err: fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
}

func decodeDepth(raw json.RawMessage) (*domain.OrderBookSnapshot, error) {
	if len(raw) == 0 {
		return nil, errors.New("depth: missing data")
	}

	var d depthData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}
	if d.Version == nil {
		return nil, errors.New("depth: missing version")
	}
	if d.Symbol == "" {
		return nil, errors.New("depth: missing symbol")
	}
	if d.TS <= 0 {
		return nil, errors.New("depth: missing ts")
	}

	bids, err := decodeLevels(d.Bids)
	if err != nil {
		return nil, fmt.Errorf("depth bids: %w", err)
	}
	asks, err := decodeLevels(d.Asks)
	if err != nil {
		return nil, fmt.Errorf("depth asks: %w", err)
	}

	return &domain.OrderBookSnapshot{
		Symbol:     strings.ToUpper(d.Symbol),
		Bids:       bids,
		Asks:       asks,
		Sequence:   *d.Version,
		ReceivedAt: time.UnixMilli(d.TS).UTC(),
	}, nil
}

// decodeLevels parses [price, volume] or [price, volume, order_count] tuples.
// Prices and volumes may be JSON strings or numbers.
func decodeLevels(raw [][]json.RawMessage) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for i, tuple := range raw {
		if len(tuple) < 2 || len(tuple) > 3 {
			return nil, fmt.Errorf("level %d: want 2 or 3 fields, got %d", i, len(tuple))
		}

		var lvl domain.PriceLevel
		if err := lvl.Price.UnmarshalJSON(tuple[0]); err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		if err := lvl.Volume.UnmarshalJSON(tuple[1]); err != nil {
			return nil, fmt.Errorf("level %d volume: %w", i, err)
		}
		if len(tuple) == 3 {
			if err := json.Unmarshal(tuple[2], &lvl.OrderCount); err != nil {
				return nil, fmt.Errorf("level %d order count: %w", i, err)
			}
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}

func decodeTrades(raw json.RawMessage) ([]domain.TradeEvent, error) {
	if len(raw) == 0 {
		return nil, errors.New("trades: missing data")
	}

	var data []tradeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("trades: %w", err)
	}

	trades := make([]domain.TradeEvent, 0, len(data))
	for i, t := range data {
		if t.TS <= 0 {
			return nil, fmt.Errorf("trade %d: missing ts", i)
		}
		trades = append(trades, domain.TradeEvent{
			Symbol:    strings.ToUpper(t.Symbol),
			Side:      domain.TradeSide(strings.ToLower(t.Side)),
			Price:     t.Price,
			Volume:    t.Size,
			Timestamp: time.UnixMilli(t.TS).UTC(),
		})
	}
	return trades, nil
}

// EncodeDepth renders a snapshot in the venue wire format. Used by fake
// venues and replay tooling.
func EncodeDepth(snap domain.OrderBookSnapshot) ([]byte, error) {
	levels := func(in []domain.PriceLevel) [][]any {
		out := make([][]any, 0, len(in))
		for _, l := range in {
			out = append(out, []any{l.Price.String(), l.Volume.String(), l.OrderCount})
		}
		return out
	}
	return json.Marshal(map[string]any{
		"channel": ChannelDepth,
		"data": map[string]any{
			"symbol":  snap.Symbol,
			"version": snap.Sequence,
			"ts":      snap.ReceivedAt.UnixMilli(),
			"bids":    levels(snap.Bids),
			"asks":    levels(snap.Asks),
		},
	})
}

// EncodeTrades renders trades in the venue wire format.
func EncodeTrades(trades []domain.TradeEvent) ([]byte, error) {
	data := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		data = append(data, map[string]any{
			"symbol": t.Symbol,
			"px":     t.Price.String(),
			"sz":     t.Volume.String(),
			"side":   string(t.Side),
			"ts":     t.Timestamp.UnixMilli(),
		})
	}
	return json.Marshal(map[string]any{"channel": ChannelTrades, "data": data})
}
