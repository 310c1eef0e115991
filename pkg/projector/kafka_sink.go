package projector

import (
	"context"

	kafkawrapper "github.com/bhanukaranwal/SetuBond/pkg/kafka_wrapper"
)

type jsonPublisher interface {
	PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error
}

// KafkaSink publishes JSON projections keyed by instrument, so one partition
// carries one instrument's stream in order.
type KafkaSink struct {
	producer   jsonPublisher
	tradeTopic string
	bookTopic  string
}

func NewKafkaSink(producer *kafkawrapper.Producer, tradeTopic, bookTopic string) *KafkaSink {
	return &KafkaSink{producer: producer, tradeTopic: tradeTopic, bookTopic: bookTopic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) OnTrade(ctx context.Context, ev TradeEvent) error {
	return s.producer.PublishJSON(ctx, s.tradeTopic, ev.Instrument, ev, map[string]string{"type": "trade"})
}

func (s *KafkaSink) OnBookUpdate(ctx context.Context, ev BookUpdate) error {
	return s.producer.PublishJSON(ctx, s.bookTopic, ev.Instrument, ev, map[string]string{"type": "book"})
}
