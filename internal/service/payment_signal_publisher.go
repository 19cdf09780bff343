package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/pkg/kafka"
)

// PaymentSignalPublisher emits payment succeeded signals to the finalization pipeline
type PaymentSignalPublisher interface {
	// PublishPaymentSucceeded publishes the signal; delivery is at least once
	PublishPaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error

	// Close closes the publisher
	Close() error
}

// MessageProducer is the subset of kafka.Producer the publisher needs
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// KafkaPaymentSignalPublisher implements PaymentSignalPublisher using Kafka
type KafkaPaymentSignalPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
	closer      func()
}

// PaymentSignalPublisherConfig contains configuration for the publisher
type PaymentSignalPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaPaymentSignalPublisher connects a producer and creates the publisher
func NewKafkaPaymentSignalPublisher(ctx context.Context, cfg *PaymentSignalPublisherConfig) (*KafkaPaymentSignalPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("payment signal publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "slot-booking-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
		LingerMs:      5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := NewPaymentSignalPublisher(producer, cfg.Topic, cfg.ServiceName)
	p.closer = producer.Close
	return p, nil
}

// NewPaymentSignalPublisher creates a publisher on an existing producer
func NewPaymentSignalPublisher(producer MessageProducer, topic, serviceName string) *KafkaPaymentSignalPublisher {
	if topic == "" {
		topic = domain.TopicPaymentSucceeded
	}
	if serviceName == "" {
		serviceName = "slot-booking"
	}
	return &KafkaPaymentSignalPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}
}

// PublishPaymentSucceeded publishes the event keyed by reservation id, so
// signals for one hold stay ordered within a partition
func (p *KafkaPaymentSignalPublisher) PublishPaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ReservationID),
		Value: value,
		Headers: map[string]string{
			domain.HeaderEventType:       domain.EventTypePaymentSucceeded,
			domain.HeaderDeliveryAttempt: "1",
			"event_id":                   event.EventID,
			"source":                     p.serviceName,
			"content_type":               "application/json",
		},
		Timestamp: event.OccurredAt,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", domain.EventTypePaymentSucceeded, err)
	}
	return nil
}

// Close closes the underlying producer when the publisher owns it
func (p *KafkaPaymentSignalPublisher) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}

// NoOpPaymentSignalPublisher drops signals (tests, or Kafka disabled)
type NoOpPaymentSignalPublisher struct{}

// NewNoOpPaymentSignalPublisher creates a new no-op publisher
func NewNoOpPaymentSignalPublisher() *NoOpPaymentSignalPublisher {
	return &NoOpPaymentSignalPublisher{}
}

// PublishPaymentSucceeded does nothing
func (p *NoOpPaymentSignalPublisher) PublishPaymentSucceeded(ctx context.Context, event *domain.PaymentSucceededEvent) error {
	return nil
}

// Close does nothing
func (p *NoOpPaymentSignalPublisher) Close() error {
	return nil
}
