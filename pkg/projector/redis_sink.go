package projector

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const (
	bookChannel  = "book-updates"
	tradeChannel = "trades"
	recentTrades = 100
)

// RedisSink caches the latest snapshot per instrument and re-publishes every
// projection on pub/sub channels.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func BookKey(instrument string) string {
	return "book:" + instrument
}

func TradesKey(instrument string) string {
	return "trades:" + instrument
}

func (s *RedisSink) OnTrade(ctx context.Context, ev TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, TradesKey(ev.Instrument), payload)
		pipe.LTrim(ctx, TradesKey(ev.Instrument), 0, recentTrades-1)
		pipe.Publish(ctx, tradeChannel, payload)
		return nil
	})
	return err
}

func (s *RedisSink) OnBookUpdate(ctx context.Context, ev BookUpdate) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookKey(ev.Instrument), payload, 0)
		pipe.Publish(ctx, bookChannel, payload)
		return nil
	})
	return err
}
