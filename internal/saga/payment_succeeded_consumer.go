package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/metrics"
	"github.com/prohmpiriya/slot-booking/pkg/kafka"
	"github.com/prohmpiriya/slot-booking/pkg/logger"
	"github.com/prohmpiriya/slot-booking/pkg/retry"
)

const (
	// DefaultMaxDeliveries is how many times a signal is handled before it is dead-lettered
	DefaultMaxDeliveries = 5

	headerFirstDeliveredAt = "first_delivered_at"
)

// Disposition is what the consumer did with one record
type Disposition string

const (
	DispositionFinalized    Disposition = "finalized"
	DispositionDuplicate    Disposition = "duplicate"
	DispositionRedelivered  Disposition = "redelivered"
	DispositionDeadLettered Disposition = "dead_lettered"
)

// Finalizer applies one payment signal
type Finalizer interface {
	Finalize(ctx context.Context, event *domain.PaymentSucceededEvent) (*domain.FinalizationResult, error)
}

// RecordProducer re-publishes records for another delivery attempt
type RecordProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// RecordHandler decides the fate of one payment.succeeded record
type RecordHandler struct {
	finalizer     Finalizer
	producer      RecordProducer
	dlq           retry.DLQPublisher
	maxDeliveries int
	now           func() time.Time
}

// NewRecordHandler creates a record handler. A nil dlq drops dead letters.
func NewRecordHandler(finalizer Finalizer, producer RecordProducer, dlq retry.DLQPublisher, maxDeliveries int) *RecordHandler {
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	if dlq == nil {
		dlq = retry.NewNoOpDLQPublisher()
	}
	return &RecordHandler{
		finalizer:     finalizer,
		producer:      producer,
		dlq:           dlq,
		maxDeliveries: maxDeliveries,
		now:           time.Now,
	}
}

// Handle processes a record. A nil error means the record's offset may be
// committed: it was applied, recognized as a duplicate, re-published for a
// later attempt, or dead-lettered.
func (h *RecordHandler) Handle(ctx context.Context, record *kgo.Record) (Disposition, error) {
	log := logger.Get()
	attempt := DeliveryAttempt(record)

	var event domain.PaymentSucceededEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return h.deadLetter(ctx, record, attempt, fmt.Errorf("failed to unmarshal payment signal: %w", err), "invalid_payload")
	}

	result, err := h.finalizer.Finalize(ctx, &event)
	if err == nil {
		if result != nil && result.Outcome == domain.OutcomeDuplicate {
			log.Info(fmt.Sprintf("Duplicate payment signal for reservation %s", event.ReservationID),
				zap.String("reservation_id", event.ReservationID),
				zap.Int("attempt", attempt),
			)
			return DispositionDuplicate, nil
		}
		return DispositionFinalized, nil
	}

	// shutting down; leave the offset uncommitted
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if retry.IsPermanent(err) || domain.IsTerminalFinalizationError(err) {
		return h.deadLetter(ctx, record, attempt, err, errorCode(err))
	}

	if attempt >= h.maxDeliveries {
		return h.deadLetter(ctx, record, attempt, err, "max_deliveries_exceeded")
	}

	if err := h.redeliver(ctx, record, attempt, err); err != nil {
		return "", err
	}
	log.Warn(fmt.Sprintf("Payment signal for reservation %s re-queued", event.ReservationID),
		zap.String("reservation_id", event.ReservationID),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
	return DispositionRedelivered, nil
}

func (h *RecordHandler) redeliver(ctx context.Context, record *kgo.Record, attempt int, cause error) error {
	headers := kafka.HeadersMap(record)
	headers[domain.HeaderDeliveryAttempt] = strconv.Itoa(attempt + 1)
	headers[domain.HeaderFailureReason] = cause.Error()
	if _, ok := headers[headerFirstDeliveredAt]; !ok {
		headers[headerFirstDeliveredAt] = record.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	err := h.producer.Produce(ctx, &kafka.Message{
		Topic:     record.Topic,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   headers,
		Timestamp: h.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to re-publish payment signal: %w", err)
	}
	metrics.RecordRedelivered(ctx, attempt+1)
	return nil
}

func (h *RecordHandler) deadLetter(ctx context.Context, record *kgo.Record, attempt int, cause error, code string) (Disposition, error) {
	payload := json.RawMessage(record.Value)
	if !json.Valid(record.Value) {
		quoted, _ := json.Marshal(string(record.Value))
		payload = quoted
	}

	now := h.now()
	msg := &retry.DLQMessage{
		ID:             uuid.NewString(),
		OriginalTopic:  record.Topic,
		OriginalKey:    string(record.Key),
		Payload:        payload,
		Headers:        kafka.HeadersMap(record),
		Error:          cause.Error(),
		ErrorCode:      code,
		Attempts:       attempt,
		FirstAttemptAt: firstDeliveredAt(record),
		LastAttemptAt:  now,
		Metadata: map[string]string{
			"partition": strconv.Itoa(int(record.Partition)),
			"offset":    strconv.FormatInt(record.Offset, 10),
		},
	}
	if err := h.dlq.PublishToDLQ(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to dead-letter payment signal: %w", err)
	}

	metrics.RecordDeadLettered(ctx, code)
	logger.Get().Error(fmt.Sprintf("[ALERT] Payment signal moved to %s", h.dlq.GetDLQTopic(record.Topic)),
		zap.String("key", string(record.Key)),
		zap.String("error_code", code),
		zap.Int("attempts", attempt),
		zap.Error(cause),
	)
	return DispositionDeadLettered, nil
}

// DeliveryAttempt reads the delivery_attempt header, defaulting to 1
func DeliveryAttempt(record *kgo.Record) int {
	v, ok := kafka.HeaderValue(record, domain.HeaderDeliveryAttempt)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func firstDeliveredAt(record *kgo.Record) time.Time {
	if v, ok := kafka.HeaderValue(record, headerFirstDeliveredAt); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return record.Timestamp
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrReservationExpired):
		return "reservation_expired"
	case errors.Is(err, domain.ErrReservationAlreadyPaid):
		return "already_paid"
	case domain.IsValidationError(err):
		return "invalid_event"
	default:
		return "finalization_failed"
	}
}

// PaymentSucceededConsumerConfig holds configuration for PaymentSucceededConsumer
type PaymentSucceededConsumerConfig struct {
	Brokers          []string
	GroupID          string
	ClientID         string
	Topic            string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
	Handler          *RecordHandler
}

// PaymentSucceededConsumer consumes payment.succeeded signals and finalizes holds.
// Offsets are committed only after every polled record has been handled.
type PaymentSucceededConsumer struct {
	config   *PaymentSucceededConsumerConfig
	client   *kgo.Client
	handler  *RecordHandler
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewPaymentSucceededConsumer creates a consumer group member and verifies the brokers
func NewPaymentSucceededConsumer(ctx context.Context, cfg *PaymentSucceededConsumerConfig) (*PaymentSucceededConsumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("record handler is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = domain.TopicPaymentSucceeded
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "payment-finalizer"
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.RebalanceTimeout == 0 {
		cfg.RebalanceTimeout = 60 * time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.RebalanceTimeout(cfg.RebalanceTimeout),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}

	return &PaymentSucceededConsumer{
		config:  cfg,
		client:  client,
		handler: cfg.Handler,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start consumes until ctx is cancelled or Stop is called. It returns an
// error without committing when a record could not be handled, so the
// group redelivers from the last committed offset after a restart.
func (c *PaymentSucceededConsumer) Start(ctx context.Context) error {
	defer close(c.done)

	log := logger.Get()
	log.Info(fmt.Sprintf("PaymentSucceededConsumer started, listening to topic: %s", c.config.Topic))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				log.Error(fmt.Sprintf("Fetch error: topic=%s, partition=%d", err.Topic, err.Partition), zap.Error(err.Err))
			}
			continue
		}

		if err := c.handleFetches(ctx, fetches); err != nil {
			log.Error("Failed to handle payment signals, stopping without commit", zap.Error(err))
			return err
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			log.Error("Failed to commit offsets", zap.Error(err))
		}
	}
}

// handleFetches processes partitions concurrently and records within a
// partition in order
func (c *PaymentSucceededConsumer) handleFetches(ctx context.Context, fetches kgo.Fetches) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		wg.Add(1)
		go func(records []*kgo.Record) {
			defer wg.Done()
			for _, record := range records {
				if _, err := c.handler.Handle(ctx, record); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(p.Records)
	})

	wg.Wait()
	return firstErr
}

// Stop stops polling and closes the client. Wait on Done for Start to return.
func (c *PaymentSucceededConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.Close()
	})
}

// Done is closed when Start returns
func (c *PaymentSucceededConsumer) Done() <-chan struct{} {
	return c.done
}
