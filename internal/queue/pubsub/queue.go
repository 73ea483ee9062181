// Package pubsub implements crawler.Queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Config names the topic and subscription backing one queue.
type Config struct {
	Topic          string
	Subscription   string
	MaxOutstanding int
}

// Queue publishes to a topic and pulls from a subscription on it.
// Dequeue lazily starts a single Receive loop and hands messages over a
// channel; Ack and Nack map to the Pub/Sub message methods.
type Queue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	deliveries chan crawler.Delivery
	startOnce  sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
	errMu      sync.Mutex
	recvErr    error
	closeOnce  sync.Once
}

// NewQueue ensures the topic and subscription exist and returns the queue.
func NewQueue(ctx context.Context, client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if cfg.Topic == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("topic and subscription are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic, err := ensureTopic(ctx, client, cfg.Topic)
	if err != nil {
		return nil, err
	}
	sub, err := ensureSubscription(ctx, client, topic, cfg.Subscription)
	if err != nil {
		topic.Stop()
		return nil, err
	}
	if cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	sub.ReceiveSettings.NumGoroutines = 1
	return &Queue{
		topic:      topic,
		sub:        sub,
		logger:     logger.With(zap.String("topic", cfg.Topic)),
		deliveries: make(chan crawler.Delivery),
		done:       make(chan struct{}),
	}, nil
}

func ensureTopic(ctx context.Context, client *pubsub.Client, id string) (*pubsub.Topic, error) {
	topic := client.Topic(id)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", id, err)
	}
	if exists {
		return topic, nil
	}
	topic, err = client.CreateTopic(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", id, err)
	}
	return topic, nil
}

func ensureSubscription(
	ctx context.Context,
	client *pubsub.Client,
	topic *pubsub.Topic,
	id string,
) (*pubsub.Subscription, error) {
	sub := client.Subscription(id)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %q: %w", id, err)
	}
	if exists {
		return sub, nil
	}
	sub, err = client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", id, err)
	}
	return sub, nil
}

// Enqueue publishes body and waits for the server to accept it.
func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	result := q.topic.Publish(ctx, &pubsub.Message{Data: body})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Dequeue returns the next received message.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	q.startOnce.Do(q.startReceive)
	select {
	case <-ctx.Done():
		return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case d := <-q.deliveries:
		return d, nil
	case <-q.done:
		q.errMu.Lock()
		err := q.recvErr
		q.errMu.Unlock()
		if err != nil {
			return crawler.Delivery{}, fmt.Errorf("receive: %w", err)
		}
		return crawler.Delivery{}, errors.New("queue closed")
	}
}

func (q *Queue) startReceive() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		defer close(q.done)
		err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			d := crawler.NewDelivery(msg.ID, msg.Data,
				func(context.Context) error { msg.Ack(); return nil },
				func(context.Context) error { msg.Nack(); return nil },
			)
			select {
			case q.deliveries <- d:
			case <-msgCtx.Done():
				msg.Nack()
			}
		})
		if err != nil {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
			q.errMu.Lock()
			q.recvErr = err
			q.errMu.Unlock()
		}
	}()
}

// Close stops the receive loop and flushes pending publishes.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.startOnce.Do(func() { close(q.done) })
		if q.cancel != nil {
			q.cancel()
			<-q.done
		}
		q.topic.Stop()
	})
	return nil
}
