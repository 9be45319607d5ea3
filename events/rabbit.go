package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Rabbit publishes events as persistent JSON messages to the topic exchange
// quiz.events.
type Rabbit struct {
	conn *amqp.Connection

	mu      sync.Mutex
	channel *amqp.Channel
}

// DialRabbit connects to the broker at url and declares the exchange.
func DialRabbit(url string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "opening rabbitmq channel")
	}
	err = ch.ExchangeDeclare(
		Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declaring exchange %s", Exchange)
	}
	glog.Infof("publishing events to rabbitmq exchange %s", Exchange)
	return &Rabbit{conn: conn, channel: ch}, nil
}

func (r *Rabbit) PublishAttemptSubmitted(ctx context.Context, e AttemptSubmitted) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.channel.PublishWithContext(ctx, Exchange, RoutingKeyAttemptSubmitted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	return errors.Wrapf(err, "publishing %s", RoutingKeyAttemptSubmitted)
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		glog.Warningf("closing rabbitmq channel: %v", err)
	}
	return r.conn.Close()
}
