package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/richardliu001/agenda-service/internal/config"
	"github.com/richardliu001/agenda-service/internal/service"
	"go.uber.org/zap"
)

const defaultPrefetch = 8

// Message is the body published for each event-log entry. The routing key
// is the entry's event type.
type Message struct {
	EventID string `json:"eventId"`
}

// Consumer feeds event ids delivered over RabbitMQ to the agenda consumer.
type Consumer struct {
	cfg     config.RabbitMQConfig
	applier service.EventApplier
	log     *zap.SugaredLogger

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg config.RabbitMQConfig, applier service.EventApplier, log *zap.SugaredLogger) *Consumer {
	return &Consumer{cfg: cfg, applier: applier, log: log}
}

// Connect declares the exchange, the queue with its bindings and, when
// configured, the dead-letter exchange and queue.
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbit dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel failed: %w", err)
	}
	fail := func(err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	args := amqp.Table{}
	if c.cfg.DLXName != "" {
		if err := ch.ExchangeDeclare(c.cfg.DLXName, "topic", true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare dlx failed: %w", err))
		}
		if _, err := ch.QueueDeclare(c.cfg.DLXQueue, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare dlq failed: %w", err))
		}
		if err := ch.QueueBind(c.cfg.DLXQueue, "#", c.cfg.DLXName, false, nil); err != nil {
			return fail(fmt.Errorf("bind dlq failed: %w", err))
		}
		args["x-dead-letter-exchange"] = c.cfg.DLXName
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare exchange %s failed: %w", c.cfg.Exchange, err))
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fail(fmt.Errorf("declare queue failed: %w", err))
	}
	for _, key := range c.cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind queue key=%s failed: %w", key, err))
		}
	}

	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("set qos failed: %w", err))
	}

	c.conn = conn
	c.ch = ch
	return nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "agenda-service", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// disposition is what happens to a delivery after processing.
type disposition int

const (
	ack disposition = iota
	requeue
	deadLetter
)

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var err error
	switch c.process(ctx, d) {
	case ack:
		err = d.Ack(false)
	case requeue:
		err = d.Nack(false, true)
	case deadLetter:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.log.Errorw("settle delivery failed", "routingKey", d.RoutingKey, "err", err)
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) disposition {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.EventID == "" {
		c.log.Warnw("malformed delivery", "routingKey", d.RoutingKey, "err", err)
		return deadLetter
	}
	res, err := c.applier.ApplyEvent(ctx, msg.EventID)
	if err != nil {
		c.log.Errorw("apply event failed", "eventId", msg.EventID, "err", err)
		return requeue
	}
	if res.OK {
		return ack
	}
	// a missing row may just not be committed yet; give it one more try
	if retryable(res.Code) && !d.Redelivered {
		c.log.Infow("apply event deferred", "eventId", msg.EventID, "code", res.Code)
		return requeue
	}
	c.log.Warnw("apply event rejected", "eventId", msg.EventID, "code", res.Code)
	return deadLetter
}

func retryable(code service.Code) bool {
	return strings.HasSuffix(string(code), "_NOT_FOUND")
}
