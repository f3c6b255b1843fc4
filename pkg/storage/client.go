/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package storage is the client side of the Storage Service contract the
// management core depends on: an opaque-bytes KV space plus named FIFO
// queues. The transport is redis; every operation runs through a circuit
// breaker so a dead storage backend fails fast instead of piling up
// blocked handlers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// ErrQueueEmpty is returned by Dequeue when the queue has no entries.
var ErrQueueEmpty = errors.New("queue empty")

// Store is the storage contract consumed by the management core. Put is
// an idempotent overwrite, Get fails with ErrNotFound on absent keys, and
// Enqueue appends to a named FIFO. Dequeue pops the queue head and exists
// for the executor side of the contract.
type Store interface {
	Put(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Enqueue(ctx context.Context, queueKey, value []byte) error
	Dequeue(ctx context.Context, queueKey []byte) ([]byte, error)
}

// Config holds the storage connection settings.
type Config struct {
	Address         string
	Password        string
	DB              int
	ConnectAttempts int
	ConnectInterval time.Duration
}

// DefaultConfig returns the connection settings used when the config file
// leaves them out.
func DefaultConfig() Config {
	return Config{
		Address:         "localhost:6379",
		ConnectAttempts: 10,
		ConnectInterval: 3 * time.Second,
	}
}

// Client is a redis-backed Store. The underlying go-redis client pools
// connections, so request handlers share one Client and lease connections
// per call.
type Client struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
	log     logr.Logger
}

// Connect opens the storage backend with bounded retry. Failing to reach
// storage within the attempt budget is fatal to the caller.
func Connect(ctx context.Context, cfg Config, log logr.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	for attempt := 1; ; attempt++ {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			break
		}
		if attempt >= cfg.ConnectAttempts {
			_ = rdb.Close()
			return nil, fmt.Errorf("storage unreachable after %d attempts: %w", attempt, err)
		}
		log.Info("storage not reachable, retrying", "attempt", attempt, "error", err.Error())
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectInterval):
		}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "storage",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("storage breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{rdb: rdb, breaker: breaker, log: log}, nil
}

// Put stores value under key, overwriting any previous value.
func (c *Client) Put(ctx context.Context, key, value []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.rdb.Set(ctx, string(key), value, 0).Err()
	})
	observeOperation("put", err)
	if err != nil {
		return fmt.Errorf("put %s: %w", string(key), err)
	}
	return nil
}

// Get fetches the value stored under key.
func (c *Client) Get(ctx context.Context, key []byte) ([]byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		value, err := c.rdb.Get(ctx, string(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is an answer, not a transport failure; it must not
			// feed the breaker.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return value, nil
	})
	observeOperation("get", err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", string(key), err)
	}
	if res == nil {
		return nil, ErrNotFound
	}
	return res.([]byte), nil
}

// Enqueue appends value to the tail of the named FIFO queue.
func (c *Client) Enqueue(ctx context.Context, queueKey, value []byte) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.rdb.RPush(ctx, queueName(queueKey), value).Err()
	})
	observeOperation("enqueue", err)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", string(queueKey), err)
	}
	return nil
}

// Dequeue pops the head of the named FIFO queue.
func (c *Client) Dequeue(ctx context.Context, queueKey []byte) ([]byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		value, err := c.rdb.LPop(ctx, queueName(queueKey)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return value, nil
	})
	observeOperation("dequeue", err)
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", string(queueKey), err)
	}
	if res == nil {
		return nil, ErrQueueEmpty
	}
	return res.([]byte), nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Queues live in the same redis keyspace as entities; the prefix keeps a
// queue name from ever colliding with an entity key.
func queueName(queueKey []byte) string {
	return "queue:" + string(queueKey)
}
