package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"todo_service/internal/activity"
	"todo_service/internal/apperror"
	"todo_service/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries  = 3
	retryHeader = "x-retry-count"
)

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDrop
)

func republishWithRetry(ctx context.Context, ch *amqp.Channel, msg *amqp.Delivery, retryCount int32) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = retryCount

	return ch.PublishWithContext(
		ctx,
		"",             // exchange
		msg.RoutingKey, // routing key (queue name)
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.MessageId,
			Type:         msg.Type,
			Timestamp:    msg.Timestamp,
			Body:         msg.Body,
			Headers:      headers,
		},
	)
}

// StartWorker consumes activity events from queueName until ctx is done or
// the delivery channel closes.
func StartWorker(ctx context.Context, conn *amqp.Connection, recorder activity.Recorder, queueName string, id int, metrics *observability.Metrics) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("worker %d: open channel: %w", id, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("worker %d: set QoS: %w", id, err)
	}

	msgs, err := ch.Consume(
		queueName,
		fmt.Sprintf("activity-worker-%d", id),
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("worker %d: consume: %w", id, err)
	}

	log := logrus.WithFields(logrus.Fields{"worker": id, "queue": queueName})
	log.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Worker stopping")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", id)
			}
			handleDelivery(ctx, ch, &msg, recorder, queueName, metrics, log)
		}
	}
}

func handleDelivery(ctx context.Context, ch *amqp.Channel, msg *amqp.Delivery, recorder activity.Recorder, queueName string, metrics *observability.Metrics, log *logrus.Entry) {
	if metrics != nil {
		metrics.QueueMessagesConsumed.WithLabelValues(queueName).Inc()
	}

	retryCount := retryCountFrom(msg.Headers)
	result, reason := processDelivery(ctx, recorder, msg.Body)

	switch result {
	case outcomeAck:
		ack(msg, log)

	case outcomeDrop:
		log.WithField("reason", reason).Warn("Dropping activity event")
		countFailure(metrics, reason)
		nack(msg, false, log)

	case outcomeRetry:
		if retryCount >= MaxRetries {
			log.WithField("retries", retryCount).Error("Activity event exhausted retries")
			countFailure(metrics, "max_retries")
			nack(msg, false, log)
			return
		}

		log.Infof("Requeuing activity event (retry %d/%d)", retryCount+1, MaxRetries)
		if err := republishWithRetry(ctx, ch, msg, retryCount+1); err != nil {
			log.WithError(err).Error("Failed to republish message")
			countFailure(metrics, "republish_error")
			nack(msg, false, log)
			return
		}
		if metrics != nil {
			metrics.QueueMessagesPublished.WithLabelValues(queueName).Inc()
		}
		ack(msg, log)
	}
}

// processDelivery decodes and records one event. Malformed or invalid
// events are dropped; storage failures are retried.
func processDelivery(ctx context.Context, recorder activity.Recorder, body []byte) (outcome, string) {
	var event activity.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return outcomeDrop, "invalid_payload"
	}

	if err := recorder.Record(ctx, event); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return outcomeDrop, "invalid_event"
		}
		logrus.WithError(err).WithField("event_id", event.ID).Warn("Failed to record activity event")
		return outcomeRetry, "storage_error"
	}

	return outcomeAck, ""
}

// retryCountFrom reads the retry header. AMQP tables may decode integers
// at any width.
func retryCountFrom(headers amqp.Table) int32 {
	if headers == nil {
		return 0
	}
	switch v := headers[retryHeader].(type) {
	case int8:
		return int32(v)
	case int16:
		return int32(v)
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}

func countFailure(metrics *observability.Metrics, reason string) {
	if metrics != nil {
		metrics.ActivityEventsFailed.WithLabelValues(reason).Inc()
	}
}

func ack(msg *amqp.Delivery, log *logrus.Entry) {
	if err := msg.Ack(false); err != nil {
		log.WithError(err).Error("Failed to ack message")
	}
}

func nack(msg *amqp.Delivery, requeue bool, log *logrus.Entry) {
	if err := msg.Nack(false, requeue); err != nil {
		log.WithError(err).Error("Failed to nack message")
	}
}
