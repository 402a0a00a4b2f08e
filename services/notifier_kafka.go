package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/linkedin/goavro/v2"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// orderEventSchema is the Avro schema of events written to Kafka
const orderEventSchema = `{
  "type": "record",
  "name": "OrderEvent",
  "namespace": "bistro.orders",
  "fields": [
    {"name": "event_type", "type": "string"},
    {"name": "order_id", "type": "long"},
    {"name": "order_number", "type": "string"},
    {"name": "previous_status", "type": "string"},
    {"name": "new_status", "type": "string"},
    {"name": "customer_name", "type": "string"},
    {"name": "customer_email", "type": ["null", "string"], "default": null},
    {"name": "customer_phone", "type": ["null", "string"], "default": null},
    {"name": "occurred_at_ms", "type": "long"}
  ]
}`

// OrderEventCodec encodes order events as Avro binary
type OrderEventCodec struct {
	codec *goavro.Codec
	mu    sync.Mutex
}

// NewOrderEventCodec compiles the order event schema
func NewOrderEventCodec() (*OrderEventCodec, error) {
	codec, err := goavro.NewCodec(orderEventSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}
	return &OrderEventCodec{codec: codec}, nil
}

// Native converts an event into goavro's native form
func (c *OrderEventCodec) Native(event OrderEvent) map[string]interface{} {
	return map[string]interface{}{
		"event_type":      event.EventType,
		"order_id":        int64(event.OrderID),
		"order_number":    event.OrderNumber,
		"previous_status": string(event.PreviousStatus),
		"new_status":      string(event.NewStatus),
		"customer_name":   event.CustomerContact.Name,
		"customer_email":  optionalUnion(event.CustomerContact.Email),
		"customer_phone":  optionalUnion(event.CustomerContact.Phone),
		"occurred_at_ms":  event.OccurredAt.UnixMilli(),
	}
}

// Encode converts an event to Avro binary
func (c *OrderEventCodec) Encode(event OrderEvent) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	binary, err := c.codec.BinaryFromNative(nil, c.Native(event))
	if err != nil {
		return nil, fmt.Errorf("failed to encode to avro binary: %w", err)
	}
	return binary, nil
}

// Decode reads Avro binary back into goavro's native form
func (c *OrderEventCodec) Decode(binary []byte) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	native, _, err := c.codec.NativeFromBinary(binary)
	if err != nil {
		return nil, fmt.Errorf("failed to decode avro binary: %w", err)
	}
	record, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("avro payload is not a record")
	}
	return record, nil
}

func optionalUnion(value *string) interface{} {
	if value == nil {
		return nil
	}
	return goavro.Union("string", *value)
}

// KafkaNotifier produces Avro-encoded order events keyed by order number, so
// all events of one order land on the same partition
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
	codec  *OrderEventCodec
	logger *zap.Logger
}

// NewKafkaNotifier creates a producer client for the given brokers and topic
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) (*KafkaNotifier, error) {
	codec, err := NewOrderEventCodec()
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka notifier ready", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &KafkaNotifier{client: client, topic: topic, codec: codec, logger: logger}, nil
}

// Publish produces the event and waits for the brokers to acknowledge it
func (n *KafkaNotifier) Publish(ctx context.Context, event OrderEvent) error {
	payload, err := n.codec.Encode(event)
	if err != nil {
		return err
	}

	rec := &kgo.Record{
		Topic:     n.topic,
		Key:       []byte(event.OrderNumber),
		Value:     payload,
		Timestamp: event.OccurredAt,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "order_id", Value: []byte(strconv.FormatUint(uint64(event.OrderID), 10))},
		},
	}

	if err := n.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", n.topic, err)
	}
	return nil
}

// Close flushes and closes the producer
func (n *KafkaNotifier) Close() error {
	n.client.Close()
	return nil
}
