package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"shop-svc/apperr"
	"shop-svc/config"
	"shop-svc/middleware"
	"shop-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	EventPaymentSuccess = "payment_success"
	EventPaymentFailed  = "payment_failed"
)

func InitConsumer(cfg config.Config, logger *zap.Logger) (sarama.Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(cfg.KafkaBrokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.Strings("brokers", cfg.KafkaBrokers))
	return consumer, nil
}

type OrderStatusSetter interface {
	SetOrderStatus(ctx context.Context, orderID int, status models.OrderStatus) (*models.Order, error)
}

// PaymentConsumer applies payment results from the payment events topic to
// orders.
type PaymentConsumer struct {
	consumer   sarama.Consumer
	topic      string
	orders     OrderStatusSetter
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewPaymentConsumer(consumer sarama.Consumer, topic string, orders OrderStatusSetter, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		consumer:   consumer,
		topic:      topic,
		orders:     orders,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Start consumes every partition of the topic from the newest offset and
// blocks until ctx is cancelled. If a partition cannot be opened, the ones
// already running are stopped and the error is returned.
func (c *PaymentConsumer) Start(ctx context.Context) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, partition, sarama.OffsetNewest)
		if err != nil {
			// Stop the partitions already started before reporting.
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			c.consume(ctx, pc)
		}(pc)
	}

	c.logger.Info("Kafka consumer started", zap.String("topic", c.topic), zap.Int("partitions", len(partitions)))
	wg.Wait()
	return nil
}

func (c *PaymentConsumer) consume(ctx context.Context, pc sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := c.handleMessageWithRetry(ctx, message); err != nil {
				c.logger.Error("Failed to handle message after retries",
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			c.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func (c *PaymentConsumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := c.handleMessage(ctx, message)
		if err == nil {
			return nil
		}
		// Domain rejections will not change on retry.
		if apperr.IsDomain(err) {
			middleware.RecordPaymentCallback("kafka", "ignored")
			c.logger.Warn("Payment event rejected", zap.Error(err))
			return nil
		}
		lastErr = err
		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	middleware.RecordPaymentCallback("kafka", "failed")
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *PaymentConsumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, consumerHeaderCarrier(message.Headers))
	ctx, span := otel.Tracer("shop-service").Start(ctx, "ProcessPaymentEvent")
	defer span.End()

	var event models.PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return apperr.InvalidInput("failed to unmarshal payment event: %v", err)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int("order.id", event.OrderID),
	)

	traceID := middleware.GetTraceID(ctx)
	c.logger.Info("Received event",
		zap.String("trace_id", traceID),
		zap.String("event_type", event.EventType),
		zap.Int("order_id", event.OrderID),
	)

	switch event.EventType {
	case EventPaymentSuccess:
		if _, err := c.orders.SetOrderStatus(ctx, event.OrderID, models.OrderStatusPaid); err != nil {
			span.RecordError(err)
			return err
		}
		middleware.RecordPaymentCallback("kafka", "applied")
	case EventPaymentFailed:
		middleware.RecordPaymentCallback("kafka", "ignored")
		c.logger.Warn("Payment failed",
			zap.String("trace_id", traceID),
			zap.Int("order_id", event.OrderID),
			zap.String("transaction_id", event.TransactionID),
		)
	default:
		c.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
	}
	return nil
}
