package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher accepts events without blocking the caller.  Delivery is best
// effort; a failure is logged and never surfaces to the request.
type Publisher interface {
	Publish(ev AuthEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(AuthEvent) {}

// AMQPPublisher buffers events and publishes them to AuthEventsQueue from a
// single background goroutine that owns the broker connection.
type AMQPPublisher struct {
	url    string
	log    *logrus.Logger
	events chan AuthEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewAMQPPublisher returns a publisher holding up to buffer pending events.
// Call Start to begin delivery and Close to flush and stop.
func NewAMQPPublisher(url string, log *logrus.Logger, buffer int) *AMQPPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &AMQPPublisher{
		url:    url,
		log:    log,
		events: make(chan AuthEvent, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Publish enqueues ev, dropping it when the buffer is full.
func (p *AMQPPublisher) Publish(ev AuthEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.WithField("kind", ev.Kind).Warn("auth-events: buffer full, event dropped")
	}
}

// Start launches the delivery goroutine.
func (p *AMQPPublisher) Start() {
	go p.run()
	p.log.WithField("queue", AuthEventsQueue).Info("auth-events publisher started")
}

// Close stops accepting work, publishes what is already buffered while a
// connection is available and waits for the goroutine to exit.
func (p *AMQPPublisher) Close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *AMQPPublisher) run() {
	defer close(p.done)

	var (
		conn *amqp.Connection
		ch   *amqp.Channel
	)
	closeConn := func() {
		if ch != nil {
			_ = ch.Close()
			ch = nil
		}
		if conn != nil {
			_ = conn.Close()
			conn = nil
		}
	}
	defer closeConn()

	backoff := time.Second
	for {
		select {
		case <-p.stop:
			p.drain(ch)
			return
		case ev := <-p.events:
			if ch == nil {
				var err error
				conn, ch, err = p.connect()
				if err != nil {
					p.log.WithError(err).WithField("retry_in", backoff).Warn("auth-events: broker unavailable, event dropped")
					p.sleep(backoff)
					if backoff < 30*time.Second {
						backoff *= 2
					}
					continue
				}
				backoff = time.Second
			}
			if err := publish(ch, ev); err != nil {
				p.log.WithError(err).WithField("kind", ev.Kind).Warn("auth-events: publish failed")
				closeConn()
			}
		}
	}
}

// drain publishes whatever is still buffered, best effort.
func (p *AMQPPublisher) drain(ch *amqp.Channel) {
	for {
		select {
		case ev := <-p.events:
			if ch == nil {
				continue
			}
			if err := publish(ch, ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *AMQPPublisher) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	}
}

func (p *AMQPPublisher) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(AuthEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

func publish(ch *amqp.Channel, ev AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(ctx,
		"",              // default exchange
		AuthEventsQueue, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}
