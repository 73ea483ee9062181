// Package redis implements a reliable list-based queue on Redis.
//
// Messages are pushed on the left of <name> and moved atomically onto
// <name>:processing when dequeued. Ack removes the message from the
// processing list; Nack moves it back so it is the next one served.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

const defaultBlock = time.Second

// Config controls one queue.
type Config struct {
	Name  string
	Block time.Duration
}

// Queue is a crawler.Queue over a Redis list.
type Queue struct {
	client     goredis.UniversalClient
	name       string
	processing string
	block      time.Duration
	seq        atomic.Uint64
	closed     atomic.Bool
}

// NewQueue binds a queue to client. The client is owned by the caller.
func NewQueue(client goredis.UniversalClient, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	block := cfg.Block
	if block <= 0 {
		block = defaultBlock
	}
	return &Queue{
		client:     client,
		name:       cfg.Name,
		processing: cfg.Name + ":processing",
		block:      block,
	}, nil
}

// Enqueue pushes body onto the queue.
func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	if q.closed.Load() {
		return errors.New("queue closed")
	}
	if err := q.client.LPush(ctx, q.name, body).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.name, err)
	}
	return nil
}

// Dequeue blocks until a message is available or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		if q.closed.Load() {
			return crawler.Delivery{}, errors.New("queue closed")
		}
		body, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", q.block).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return crawler.Delivery{}, fmt.Errorf("blmove %s: %w", q.name, err)
		}
		return q.delivery(body), nil
	}
}

func (q *Queue) delivery(body string) crawler.Delivery {
	id := q.name + "-" + strconv.FormatUint(q.seq.Add(1), 10)
	ack := func(ctx context.Context) error {
		if err := q.client.LRem(ctx, q.processing, 1, body).Err(); err != nil {
			return fmt.Errorf("ack %s: %w", id, err)
		}
		return nil
	}
	nack := func(ctx context.Context) error {
		_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, body)
			pipe.RPush(ctx, q.name, body)
			return nil
		})
		if err != nil {
			return fmt.Errorf("nack %s: %w", id, err)
		}
		return nil
	}
	return crawler.NewDelivery(id, []byte(body), ack, nack)
}

// Requeue moves every message stranded in the processing list back onto
// the queue. It is meant to run once at startup before workers begin.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.name, "RIGHT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue %s: %w", q.processing, err)
		}
		moved++
	}
}

// Close stops further operations. The shared client is left open.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}
