package storage

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		ctx         context.Context
		redisServer *miniredis.Miniredis
		client      *Client
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		redisServer, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		cfg := DefaultConfig()
		cfg.Address = redisServer.Addr()
		cfg.ConnectInterval = 10 * time.Millisecond
		client, err = Connect(ctx, cfg, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = client.Close()
		redisServer.Close()
	})

	Describe("Connect", func() {
		It("should fail once the attempt budget is exhausted", func() {
			cfg := DefaultConfig()
			cfg.Address = "localhost:1" // nothing listens here
			cfg.ConnectAttempts = 2
			cfg.ConnectInterval = 10 * time.Millisecond

			_, err := Connect(ctx, cfg, logr.Discard())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("storage unreachable"))
		})
	})

	Describe("Put and Get", func() {
		It("should round-trip a value", func() {
			Expect(client.Put(ctx, []byte("task-1"), []byte("payload"))).To(Succeed())

			value, err := client.Get(ctx, []byte("task-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal([]byte("payload")))
		})

		It("should overwrite idempotently", func() {
			Expect(client.Put(ctx, []byte("task-1"), []byte("first"))).To(Succeed())
			Expect(client.Put(ctx, []byte("task-1"), []byte("second"))).To(Succeed())

			value, err := client.Get(ctx, []byte("task-1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal([]byte("second")))
		})

		It("should report a missing key as ErrNotFound", func() {
			_, err := client.Get(ctx, []byte("absent"))
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should not trip the breaker on repeated misses", func() {
			for i := 0; i < 10; i++ {
				_, err := client.Get(ctx, []byte("absent"))
				Expect(err).To(MatchError(ErrNotFound))
			}
			Expect(client.Put(ctx, []byte("still-works"), []byte("yes"))).To(Succeed())
		})
	})

	Describe("Enqueue and Dequeue", func() {
		It("should preserve FIFO order", func() {
			queue := []byte("staged-task")
			Expect(client.Enqueue(ctx, queue, []byte("first"))).To(Succeed())
			Expect(client.Enqueue(ctx, queue, []byte("second"))).To(Succeed())

			value, err := client.Dequeue(ctx, queue)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal([]byte("first")))

			value, err = client.Dequeue(ctx, queue)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal([]byte("second")))
		})

		It("should report an empty queue as ErrQueueEmpty", func() {
			_, err := client.Dequeue(ctx, []byte("empty"))
			Expect(err).To(MatchError(ErrQueueEmpty))
		})

		It("should keep queues out of the entity key space", func() {
			Expect(client.Put(ctx, []byte("collide"), []byte("entity"))).To(Succeed())
			Expect(client.Enqueue(ctx, []byte("collide"), []byte("queued"))).To(Succeed())

			value, err := client.Get(ctx, []byte("collide"))
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal([]byte("entity")))
		})
	})

	Describe("breaker", func() {
		It("should fail fast once storage goes away", func() {
			redisServer.Close()

			var lastErr error
			for i := 0; i < 6; i++ {
				lastErr = client.Put(ctx, []byte("key"), []byte("value"))
				Expect(lastErr).To(HaveOccurred())
			}
			// By now the breaker is open and rejects without dialing.
			start := time.Now()
			err := client.Put(ctx, []byte("key"), []byte("value"))
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 100*time.Millisecond))
		})
	})
})
