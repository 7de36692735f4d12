package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Lookback rewinds the reader so a notification published between the
	// create response and Open is not missed.
	Lookback time.Duration
}

// KafkaSource reads notifications from a topic keyed by retrieval reference.
// Readers have no consumer group and read partition 0, so the topic is expected
// to have a single partition.
type KafkaSource struct {
	cfg KafkaConfig
}

func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Minute
	}
	return &KafkaSource{cfg: cfg}
}

func (s *KafkaSource) Open(ctx context.Context, ref string) (Stream, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    s.cfg.Topic,
		GroupID:  "", // stateless reader per reference
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	if err := r.SetOffsetAt(ctx, time.Now().Add(-s.cfg.Lookback)); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("kafka seek %s: %w", s.cfg.Topic, err)
	}
	return &kafkaStream{r: r, key: ref}, nil
}

type kafkaStream struct {
	r   *kafka.Reader
	key string
}

// Recv skips messages for other references, the same way the queue waiter matches keys.
func (s *kafkaStream) Recv(ctx context.Context) (Message, error) {
	for {
		msg, err := s.r.ReadMessage(ctx)
		if err != nil {
			return Message{}, err
		}
		if string(msg.Key) != s.key {
			continue
		}
		return Decode(msg.Value)
	}
}

func (s *kafkaStream) Close() error { return s.r.Close() }

// KafkaPublisher writes notifications keyed by retrieval reference.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ref string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ref), Value: b, Time: time.Now()})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
