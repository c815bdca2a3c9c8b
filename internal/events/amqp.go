package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel AMQP 通道中发布所需的部分
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher 把事件发布到 topic exchange
type AMQPPublisher struct {
	mu         sync.Mutex // amqp 通道不能并发发布
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewAMQPPublisher 连接 RabbitMQ 并声明持久化的 topic exchange
func NewAMQPPublisher(url, exchange, routingKey string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := newAMQPPublisher(ch, exchange, routingKey, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange, routingKey string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if routingKey == "" {
		routingKey = TypeMessageCaptured
	}
	return &AMQPPublisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

// PublishCaptured 发布捕获事件，缺失的 EventID 与时间戳会被补齐
func (p *AMQPPublisher) PublishCaptured(ctx context.Context, event MessageCaptured) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.Type = TypeMessageCaptured
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("type", event.Type),
		zap.String("eventId", event.EventID),
		zap.String("messageId", event.MessageID),
	)
	return nil
}

// IsConnected 检查底层连接是否仍然可用
func (p *AMQPPublisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Ping 供就绪检查使用
func (p *AMQPPublisher) Ping(context.Context) error {
	if !p.IsConnected() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

// Close 关闭通道与连接
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
