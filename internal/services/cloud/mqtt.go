package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Connected() bool
}

// MQTTStore publishes each reading as a JSON CloudRecord on
// <prefix>/<identity>. The publisher is expected to use QoS 1 so that a nil
// error means the broker took the message.
type MQTTStore struct {
	pub     publisher
	prefix  string
	tracker *writeTracker
}

func NewMQTTStore(pub publisher, topicPrefix string) *MQTTStore {
	p := strings.Trim(strings.TrimSpace(topicPrefix), "/")
	if p == "" {
		p = "readings"
	}
	return &MQTTStore{pub: pub, prefix: p, tracker: newWriteTracker()}
}

func (s *MQTTStore) Topic(identity string) string {
	return s.prefix + "/" + identity
}

func (s *MQTTStore) Push(ctx context.Context, identity string, r model.Reading) error {
	body, err := json.Marshal(model.NewCloudRecord(newPushID(), identity, r))
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.Key(), err)
	}
	err = s.pub.Publish(ctx, s.Topic(identity), body)
	s.tracker.observe(err)
	return err
}

func (s *MQTTStore) Connected() bool { return s.pub.Connected() }

func (s *MQTTStore) LastErrorAge() time.Duration { return s.tracker.LastErrorAge() }
