package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"todo_service/internal/observability"
	"todo_service/internal/queue"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RabbitPublisher sends events to a durable queue on the default exchange.
type RabbitPublisher struct {
	conn      *amqp.Connection
	queueName string
	metrics   *observability.Metrics
}

func NewRabbitPublisher(conn *amqp.Connection, queueName string, metrics *observability.Metrics) *RabbitPublisher {
	return &RabbitPublisher{
		conn:      conn,
		queueName: queueName,
		metrics:   metrics,
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}

	ch, err := queue.CreateChannel(p.conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         string(event.Type),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish activity event: %w", err)
	}

	if p.metrics != nil {
		p.metrics.QueueMessagesPublished.WithLabelValues(p.queueName).Inc()
	}
	return nil
}
