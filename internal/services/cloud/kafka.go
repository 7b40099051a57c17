package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore appends CloudRecords to a topic keyed by identity, so one
// identity's readings stay ordered within a partition.
type KafkaStore struct {
	writer  messageWriter
	tracker *writeTracker
}

func NewKafkaStore(cfg KafkaConfig) (*KafkaStore, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka needs brokers and topic", ErrConfig)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaStore(w), nil
}

func newKafkaStore(w messageWriter) *KafkaStore {
	return &KafkaStore{writer: w, tracker: newWriteTracker()}
}

func (s *KafkaStore) Push(ctx context.Context, identity string, r model.Reading) error {
	rec := model.NewCloudRecord(newPushID(), identity, r)
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.Key(), err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(identity),
		Value: body,
		Time:  time.UnixMilli(r.Timestamp),
		Headers: []kafka.Header{
			{Key: "push_id", Value: []byte(rec.PushID)},
		},
	})
	s.tracker.observe(err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", r.Key(), err)
	}
	return nil
}

func (s *KafkaStore) Connected() bool { return s.tracker.reachable() }

func (s *KafkaStore) LastErrorAge() time.Duration { return s.tracker.LastErrorAge() }

func (s *KafkaStore) Close() error { return s.writer.Close() }
