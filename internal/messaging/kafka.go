package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/config"
	"github.com/sessionkit/wsknn/pkg/models"
)

const maxProcessRetries = 3

// EventMessage is the envelope written to the interaction-events
// topic. RetryCount tracks delivery attempts on the consumer side.
type EventMessage struct {
	EventID    uuid.UUID               `json:"event_id"`
	Event      models.InteractionEvent `json:"event"`
	ReceivedAt time.Time               `json:"received_at"`
	RetryCount int                     `json:"retry_count"`
}

type KafkaProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

type MessageBus struct {
	producer  *KafkaProducer
	consumer  *KafkaConsumer
	dlqWriter *kafka.Writer
	topic     string
	logger    *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.InteractionEvents

	// Create producer
	producer := &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by session id so one session stays on one partition
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}

	// Create consumer
	consumer := &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        cfg.Kafka.ConsumerGroup,
			MinBytes:       10e3, // 10KB
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}

	// Create DLQ writer
	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.DeadLetter,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:  producer,
		consumer:  consumer,
		dlqWriter: dlqWriter,
		topic:     topic,
		logger:    logger,
	}, nil
}

// PublishInteractions writes interaction events in one producer call.
func (mb *MessageBus) PublishInteractions(events []models.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		envelope := EventMessage{
			EventID:    uuid.New(),
			Event:      event,
			ReceivedAt: time.Now(),
			RetryCount: 0,
		}

		messageBytes, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(event.SessionID),
			Value: messageBytes,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(envelope.EventID.String())},
				{Key: "session_id", Value: []byte(event.SessionID)},
				{Key: "received_at", Value: []byte(envelope.ReceivedAt.Format(time.RFC3339))},
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.producer.writer.WriteMessages(ctx, messages...); err != nil {
		mb.logger.WithError(err).WithField("events", len(messages)).Error("Failed to publish events to Kafka")
		return fmt.Errorf("failed to write messages to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"events": len(messages),
		"topic":  mb.topic,
	}).Debug("Events published to Kafka")

	return nil
}

// ConsumeEvents reads interaction events until the context is
// cancelled. Events that still fail after the retry budget go to the
// dead letter topic.
func (mb *MessageBus) ConsumeEvents(ctx context.Context, handler func(EventMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.consumer.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			var envelope EventMessage
			if err := json.Unmarshal(message.Value, &envelope); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal Kafka message")
				if dlqErr := mb.sendRawToDLQ(ctx, message.Value, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				}
				continue
			}

			if err := mb.processWithRetry(ctx, envelope, handler); err != nil {
				mb.logger.WithError(err).WithField("event_id", envelope.EventID).Error("Failed to process event after retries")

				if dlqErr := mb.sendToDLQ(ctx, envelope, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				}
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, envelope EventMessage, handler func(EventMessage) error) error {
	baseDelay := time.Second

	for attempt := 0; attempt <= maxProcessRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"event_id": envelope.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying event processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		envelope.RetryCount = attempt
		if err := handler(envelope); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": envelope.EventID,
				"attempt":  attempt,
			}).Warn("Event processing failed")

			if attempt == maxProcessRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, envelope EventMessage, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": envelope,
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(envelope.Event.SessionID),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(envelope.EventID.String())},
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": envelope.EventID,
		"error":    originalError.Error(),
	}).Warn("Event sent to DLQ")

	return nil
}

// sendRawToDLQ preserves payloads that could not even be decoded.
func (mb *MessageBus) sendRawToDLQ(ctx context.Context, raw []byte, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_payload": string(raw),
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	return nil
}

func (mb *MessageBus) Close() error {
	var errors []error

	if err := mb.producer.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := mb.consumer.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := mb.dlqWriter.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errors)
	}

	return nil
}
