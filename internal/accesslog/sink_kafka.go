package accesslog

import (
	"context"
	"encoding/json"
	"fmt"

	"sanctum/internal/platform/kafka/producer"
)

// DefaultTopic is where recorded access entries are fanned out.
const DefaultTopic = "sanctum.access-log"

// KafkaSink publishes recorded entries to Kafka for downstream audit
// consumers. Entries are keyed by conversation so one conversation's trail
// stays ordered within a partition.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaSink constructs a sink over an existing producer. An empty topic
// uses DefaultTopic.
func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: p, topic: topic}
}

// entryJSON is the wire representation of an Entry.
type entryJSON struct {
	ID                  string  `json:"id"`
	ConversationID      string  `json:"conversation_id"`
	MessageID           *string `json:"message_id,omitempty"`
	AuthorizingUserID   string  `json:"authorizing_user_id"`
	AuthorizingDeviceID string  `json:"authorizing_device_id"`
	Feature             string  `json:"feature_used"`
	ContentHash         string  `json:"content_hash"`
	AIModel             string  `json:"ai_model_used"`
	AccessedAt          int64   `json:"accessed_at"` // Unix nano
}

func (s *KafkaSink) Publish(ctx context.Context, entry *Entry) error {
	j := entryJSON{
		ID:                  entry.ID.String(),
		ConversationID:      entry.ConversationID.String(),
		AuthorizingUserID:   entry.AuthorizingUserID.String(),
		AuthorizingDeviceID: entry.AuthorizingDeviceID.String(),
		Feature:             string(entry.Feature),
		ContentHash:         entry.ContentHash,
		AIModel:             entry.AIModel,
		AccessedAt:          entry.AccessedAt.UnixNano(),
	}
	if entry.MessageID != nil {
		mid := entry.MessageID.String()
		j.MessageID = &mid
	}
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal access log entry: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(j.ConversationID),
		Value: payload,
	})
}
