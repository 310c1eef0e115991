// Package kafkawrapper publishes messages to Kafka and runs a worker pool that
// consumes a topic in batches.
package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized = errors.New("kafka client not initialized")
	ErrBatchFailed    = errors.New("kafka batch failed")

	errNoDLQ = errors.New("no dead letter topic")
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Headers   map[string]string
}

type ProducerConfig struct {
	Brokers      []string      `yaml:"brokers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchBytes   int64         `yaml:"batch_bytes"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	// RequiredAcks is -1 (all), 0 (none) or 1 (leader).
	RequiredAcks int  `yaml:"required_acks"`
	Async        bool `yaml:"async"`

	Balancer kafka.Balancer `yaml:"-"`
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = 1 << 20
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	wr := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               cfg.Balancer,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Async:                  cfg.Async,
	}
	if cfg.Async {
		wr.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				zap.S().Warnw("async kafka write failed", "messages", len(messages), "error", err)
			}
		}
	}
	return &Producer{w: wr}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.w == nil {
		return ErrNotInitialized
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: mapToHeaders(headers),
		Time:    time.Now(),
	})
}

func (p *Producer) PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, []byte(key), b, headers)
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

type ConsumerConfig struct {
	Brokers     []string      `yaml:"brokers"`
	GroupID     string        `yaml:"group_id"`
	Topic       string        `yaml:"topic"`
	WorkerCount int           `yaml:"worker_count"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffMin  time.Duration `yaml:"backoff_min"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	DLQTopic    string        `yaml:"dlq_topic"`

	// ManualCommit leaves offsets uncommitted after a batch is handled.
	ManualCommit bool          `yaml:"manual_commit"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// reader is the part of kafka.Reader the consumer group drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerGroup struct {
	r          reader
	cfg        ConsumerConfig
	prodForDLQ *Producer
}

// Handler processes one batch. Returning an error retries the whole batch.
type Handler func(ctx context.Context, batch []Message) error

func NewConsumerGroup(cfg ConsumerConfig) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka consumer: brokers and topic are required")
	}
	cfg = withConsumerDefaults(cfg)
	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})

	var prod *Producer
	if cfg.DLQTopic != "" {
		prod = NewProducer(ProducerConfig{Brokers: cfg.Brokers, RequiredAcks: int(kafka.RequireOne)})
	}
	return &ConsumerGroup{r: rd, cfg: cfg, prodForDLQ: prod}, nil
}

func withConsumerDefaults(cfg ConsumerConfig) ConsumerConfig {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	return cfg
}

func (cg *ConsumerGroup) Close() error {
	if cg == nil {
		return nil
	}
	if cg.prodForDLQ != nil {
		_ = cg.prodForDLQ.Close()
	}
	if cg.r != nil {
		return cg.r.Close()
	}
	return nil
}

// Run fetches messages and hands them to WorkerCount lanes. All messages of
// one partition go to the same lane, where batches of at most BatchSize or
// BatchTimeout are handled and committed one after another, so a partition is
// applied and committed in offset order. Run returns when ctx is done, or with
// ErrBatchFailed once a batch can neither be handled nor dead-lettered; that
// batch is left uncommitted.
func (cg *ConsumerGroup) Run(ctx context.Context, handler Handler) error {
	if cg == nil || cg.r == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetched := make(chan kafka.Message)
	go cg.fetch(ctx, fetched)

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failErr  error
	)
	lanes := make([]chan kafka.Message, cg.cfg.WorkerCount)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, cg.cfg.BatchSize)
		batches := make(chan []kafka.Message)
		go cg.batch(ctx, lanes[i], batches)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ms := range batches {
				if err := cg.handle(ctx, handler, ms); err != nil {
					failOnce.Do(func() {
						failErr = err
						cancel()
					})
					return
				}
			}
		}()
	}

dispatch:
	for {
		select {
		case m, ok := <-fetched:
			if !ok {
				break dispatch
			}
			select {
			case lanes[m.Partition%len(lanes)] <- m:
			case <-ctx.Done():
				break dispatch
			}
		case <-ctx.Done():
			break dispatch
		}
	}
	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()
	if failErr != nil {
		return failErr
	}
	return ctx.Err()
}

func (cg *ConsumerGroup) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := cg.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.S().Warnw("kafka fetch failed", "topic", cg.cfg.Topic, "error", err)
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (cg *ConsumerGroup) batch(ctx context.Context, in <-chan kafka.Message, out chan<- []kafka.Message) {
	defer close(out)
	var buf []kafka.Message
	ticker := time.NewTicker(cg.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() bool {
		if len(buf) == 0 {
			return true
		}
		select {
		case out <- buf:
			buf = nil
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case m, ok := <-in:
			if !ok {
				flush()
				return
			}
			buf = append(buf, m)
			if len(buf) >= cg.cfg.BatchSize && !flush() {
				return
			}
		case <-ticker.C:
			if !flush() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handle runs handler until it succeeds, then commits ms. A batch that still
// fails after MaxRetries goes to the DLQ topic; without one, or when that
// publish fails, nothing is committed and ErrBatchFailed is returned.
func (cg *ConsumerGroup) handle(ctx context.Context, handler Handler, ms []kafka.Message) error {
	wrapped := make([]Message, len(ms))
	for i, m := range ms {
		wrapped[i] = wrapMessage(m)
	}
	boff := cg.newBackOff()
	for attempt := 1; ; attempt++ {
		err := handler(ctx, wrapped)
		if err == nil {
			break
		}
		if attempt > cg.cfg.MaxRetries {
			if dlqErr := cg.deadLetter(ctx, ms); dlqErr != nil {
				zap.S().Errorw("kafka batch failed after retries, consumer stopped",
					"topic", cg.cfg.Topic, "messages", len(ms), "first_offset", ms[0].Offset, "error", err)
				return fmt.Errorf("%w: %s offset %d: %w", ErrBatchFailed, cg.cfg.Topic, ms[0].Offset, err)
			}
			zap.S().Errorw("kafka batch moved to dead letter topic",
				"topic", cg.cfg.Topic, "dlq", cg.cfg.DLQTopic, "messages", len(ms), "error", err)
			break
		}
		select {
		case <-time.After(boff.NextBackOff()):
		case <-ctx.Done():
			return nil
		}
	}
	if !cg.cfg.ManualCommit {
		if err := cg.r.CommitMessages(ctx, ms...); err != nil && ctx.Err() == nil {
			zap.S().Warnw("kafka commit failed", "topic", cg.cfg.Topic, "error", err)
		}
	}
	return nil
}

func (cg *ConsumerGroup) deadLetter(ctx context.Context, ms []kafka.Message) error {
	if cg.prodForDLQ == nil {
		return errNoDLQ
	}
	for _, m := range ms {
		if err := cg.prodForDLQ.Publish(ctx, cg.cfg.DLQTopic, m.Key, m.Value, headersToMap(m.Headers)); err != nil {
			return err
		}
	}
	return nil
}

func (cg *ConsumerGroup) newBackOff() *backoff.ExponentialBackOff {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = cg.cfg.BackoffMin
	boff.MaxInterval = cg.cfg.BackoffMax
	boff.MaxElapsedTime = 0
	boff.Reset()
	return boff
}

func wrapMessage(m kafka.Message) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		Headers:   headersToMap(m.Headers),
	}
}

func headersToMap(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}

func mapToHeaders(m map[string]string) []kafka.Header {
	if len(m) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// HashKey returns a stable 8 byte partition key for s.
func HashKey(s string) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return b
}
