package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer публикует сообщения в очереди RabbitMQ.
type Producer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewProducer(url string) (*Producer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Producer{conn, ch}, nil
}

func declare(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
}

func (p *Producer) Publish(ctx context.Context, queueName, contentType string, body []byte) error {
	if _, err := declare(p.ch, queueName); err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key (имя очереди)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  contentType,
			Body:         body,
		},
	)
}

func (p *Producer) Close() {
	p.ch.Close()
	p.conn.Close()
}

// ReviewPublisher отправляет события модерации в очередь queue.
type ReviewPublisher struct {
	producer Publisher
	queue    string
}

// Publisher - отправка тела сообщения в именованную очередь.
type Publisher interface {
	Publish(ctx context.Context, queueName, contentType string, body []byte) error
}

func NewReviewPublisher(p Publisher, queue string) *ReviewPublisher {
	return &ReviewPublisher{producer: p, queue: queue}
}

func (r *ReviewPublisher) PublishReview(ctx context.Context, e models.ReviewEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}
	if err := r.producer.Publish(ctx, r.queue, "application/json", body); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	logger.Log.WithFields(logger.Fields{"queue": r.queue, "id": e.ArticleID}).Debug("Review event published")
	return nil
}

// Consumer читает очередь несколькими воркерами.
type Consumer struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	workers int
}

func NewConsumer(url, queue string, workers int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		workers: workers,
	}, nil
}

// Consume запускает воркеров. Сообщение подтверждается при успешной обработке
// и возвращается в очередь при ошибке.
func (c *Consumer) Consume(handler func([]byte) error) error {
	q, err := declare(c.ch, c.queue)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	logger.Log.Infof("Consuming queue: %s (messages: %d)", q.Name, q.Messages)

	msgs, err := c.ch.Consume(
		q.Name,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for i := 0; i < c.workers; i++ {
		go func() {
			for msg := range msgs {
				if err := handler(msg.Body); err == nil {
					msg.Ack(false)
				} else {
					msg.Nack(false, true)
					logger.Log.Errorf("Task failed: %v", err)
				}
			}
		}()
	}
	return nil
}

func (c *Consumer) Close() {
	c.ch.Close()
	c.conn.Close()
}
