package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

type SubscriberConfig struct {
	MaxAckRetries    int
	AckRetryDelay    time.Duration
	ReconnectBackoff time.Duration
}

func DefaultSubscriberConfig() *SubscriberConfig {
	return &SubscriberConfig{
		MaxAckRetries:    5,
		AckRetryDelay:    100 * time.Millisecond,
		ReconnectBackoff: 5 * time.Second,
	}
}

// acknowledger is the part of amqp091.Delivery the subscriber needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// RabbitMQSubscriber consumes sync commands and hands them to a listener. The
// queue itself is declared by the publisher.
type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
	config          SubscriberConfig
	listener        interfaces.SyncCommandListener
	done            sync.WaitGroup
}

func NewRabbitMQSubscriber(rabbitmqURL string, logger logger.Logger, listener interfaces.SyncCommandListener, config *SubscriberConfig) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = DefaultSubscriberConfig()
	}

	subscriber := &RabbitMQSubscriber{
		url:      rabbitmqURL,
		logger:   logger,
		config:   *config,
		listener: listener,
	}

	if err := subscriber.connect(); err != nil {
		return nil, err
	}
	return subscriber, nil
}

// Listen consumes queueName until ctx is done, reopening the channel when the
// connection drops.
func (r *RabbitMQSubscriber) Listen(ctx context.Context, queueName string) {
	r.done.Add(1)
	go func() {
		defer r.done.Done()
		for ctx.Err() == nil {
			if err := r.consume(ctx, queueName); err != nil {
				r.logger.Errorf("Consumer on queue %s stopped: %v. Retrying...", queueName, err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(r.config.ReconnectBackoff):
			}
		}
	}()
}

func (r *RabbitMQSubscriber) consume(ctx context.Context, queueName string) error {
	if err := r.ensureConnection(); err != nil {
		return err
	}

	r.connectionMutex.Lock()
	channel, err := r.connection.Channel()
	r.connectionMutex.Unlock()
	if err != nil {
		return errors.Wrapf(err, "failed to open channel for queue %s", queueName)
	}
	defer channel.Close()

	msgs, err := channel.ConsumeWithContext(
		ctx,
		queueName, // queue
		"",        // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return errors.Wrapf(err, "failed to register consumer on queue %s", queueName)
	}

	r.logger.Infof("Listening for messages on queue %s", queueName)
	for d := range msgs {
		r.handleMessage(ctx, d.Body, d, queueName)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.Errorf("delivery channel for queue %s closed", queueName)
}

func (r *RabbitMQSubscriber) handleMessage(ctx context.Context, body []byte, d acknowledger, queueName string) {
	defer tracing.RecoverAndLogToJaeger(r.logger)

	if err := r.processMessage(ctx, body); err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", queueName, err)
		r.retryAckNack(d, false)
		return
	}
	r.retryAckNack(d, true)
}

func (r *RabbitMQSubscriber) processMessage(ctx context.Context, body []byte) error {
	var message dto.SyncCommandMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}

	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.ProcessMessage", message.UberTraceId)
	defer span.Finish()
	span.LogKV("command", message.Command.String())

	if err := r.listener.Handle(ctx, message); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	return nil
}

func (r *RabbitMQSubscriber) ensureConnection() error {
	r.connectionMutex.Lock()
	closed := r.connection == nil || r.connection.IsClosed()
	r.connectionMutex.Unlock()
	if !closed {
		return nil
	}
	r.logger.Warn("RabbitMQ connection closed, attempting to reconnect")
	return r.connect()
}

func (r *RabbitMQSubscriber) retryAckNack(d acknowledger, ack bool) {
	for i := 0; i < r.config.MaxAckRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			// rejected commands go to the dead letter queue
			err = d.Nack(false, false)
		}
		if err == nil {
			return
		}
		time.Sleep(r.config.AckRetryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		r.config.MaxAckRetries)
}

// Close waits for the listen loops, which stop once their context is done.
func (r *RabbitMQSubscriber) Close() error {
	r.connectionMutex.Lock()
	var err error
	if r.connection != nil && !r.connection.IsClosed() {
		err = r.connection.Close()
	}
	r.connectionMutex.Unlock()

	r.done.Wait()
	return err
}
