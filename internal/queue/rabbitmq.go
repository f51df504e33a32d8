package queue

import (
	"fmt"
	"time"

	"todo_service/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const maxDialAttempts = 5

// SetupRabbitMQ dials the broker with linear backoff and exits the process
// if it never answers.
func SetupRabbitMQ(rabbitMQCfg *config.RabbitMQConfig) *amqp.Connection {
	var conn *amqp.Connection
	var err error

	for i := 0; i < maxDialAttempts; i++ {
		conn, err = amqp.Dial(rabbitMQCfg.URL)
		if err != nil {
			logrus.WithError(err).Warnf("Failed to connect to RabbitMQ (attempt %d/%d)", i+1, maxDialAttempts)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		break
	}

	if err != nil {
		logrus.WithError(err).Fatalf("Failed to connect to RabbitMQ after %d attempts", maxDialAttempts)
	}

	logrus.Info("RabbitMQ connection established successfully")
	return conn
}

func CreateChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return ch, nil
}

// DeclareQueue declares a durable queue; publishers and consumers both call
// it so either side can start first.
func DeclareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %q: %w", queueName, err)
	}

	return q, nil
}

// EnsureQueue opens a short-lived channel just to declare queueName.
func EnsureQueue(conn *amqp.Connection, queueName string) error {
	ch, err := CreateChannel(conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = DeclareQueue(ch, queueName)
	return err
}
