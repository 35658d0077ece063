package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

type BaseWorker struct {
	name     string
	mu       sync.Mutex
	nc       *nats.Conn
	js       nats.JetStreamContext
	sub      *nats.Subscription
	consumer string
	stream   string
	subject  string
}

func NewBaseWorker(name string, nc *nats.Conn, js nats.JetStreamContext, stream, consumer, subject string) *BaseWorker {
	return &BaseWorker{
		name:     name,
		nc:       nc,
		js:       js,
		consumer: consumer,
		stream:   stream,
		subject:  subject,
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	sub := w.sub
	w.mu.Unlock()

	if sub != nil {
		return sub.Drain()
	}
	return nil
}

// processMessages pulls from the bound durable consumer until ctx ends.
// Messages whose handler fails are negatively acknowledged for redelivery.
func (w *BaseWorker) processMessages(ctx context.Context, handler func(context.Context, *nats.Msg) error) error {
	sub, err := w.js.PullSubscribe(w.subject, w.consumer,
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
		nats.Bind(w.stream, w.consumer),
	)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	log.Info("Starting worker", "worker", w.name, "stream", w.stream, "consumer", w.consumer)

	for {
		select {
		case <-ctx.Done():
			log.Info("Worker stopping", "worker", w.name)
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(2*time.Second))
			if err != nil && !errors.Is(err, nats.ErrTimeout) {
				if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
					return err
				}
				log.Warn("Error fetching messages", "worker", w.name, "err", err)
				continue
			}

			for _, msg := range msgs {
				if err := handler(ctx, msg); err != nil {
					log.Error("Handler failed", "worker", w.name, "subject", msg.Subject, "err", err)
					if err := msg.Nak(); err != nil {
						log.Warn("Error rejecting message", "worker", w.name, "err", err)
					}
					continue
				}
				if err := msg.Ack(); err != nil {
					log.Warn("Error acknowledging message", "worker", w.name, "err", err)
				}
			}
		}
	}
}
