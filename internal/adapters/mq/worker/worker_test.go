package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/callledger/internal/adapters/mq/queue"
	worker "github.com/okian/callledger/internal/adapters/mq/worker"
	logging "github.com/okian/callledger/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	taskChan chan queue.Task
	once     sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{taskChan: make(chan queue.Task, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Task { return mq.taskChan }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.taskChan) })
	return nil
}

func (mq *mockQueue) add(t queue.Task) { mq.taskChan <- t }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, worker.WithName("test-worker"), worker.WithTaskTimeout(50*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a task succeeds", func() {
			var ran atomic.Bool
			q.add(queue.Task{Name: "analytics", Run: func(context.Context) error { ran.Store(true); return nil }})

			convey.Convey("Then it is counted as processed", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 1 }), convey.ShouldBeTrue)
				convey.So(ran.Load(), convey.ShouldBeTrue)
				convey.So(w.Failed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a task fails or panics", func() {
			q.add(queue.Task{Name: "leads", Run: func(context.Context) error { return errors.New("down") }})
			q.add(queue.Task{Name: "leads", Run: func(context.Context) error { panic("bad") }})
			q.add(queue.Task{Name: "analytics", Run: func(context.Context) error { return nil }})

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(w.Failed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a task outlives its timeout", func() {
			var deadlineHit atomic.Bool
			q.add(queue.Task{Name: "slow", Run: func(ctx context.Context) error {
				<-ctx.Done()
				deadlineHit.Store(true)
				return ctx.Err()
			}})

			convey.Convey("Then its context is cancelled", func() {
				convey.So(waitFor(deadlineHit.Load), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool over a real queue", t, func() {
		_ = logging.Init(logging.WithOutput(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		p := worker.NewPool(3, q, worker.WithDrainTimeout(time.Second))
		convey.So(p.Size(), convey.ShouldEqual, 3)

		convey.Convey("When tasks are queued before shutdown", func() {
			var done atomic.Int32
			for i := 0; i < 20; i++ {
				q.Enqueue(context.Background(), queue.Task{Name: "analytics", Run: func(context.Context) error {
					done.Add(1)
					return nil
				}})
			}

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- p.Serve(ctx) }()
			cancel()

			convey.Convey("Then Serve drains every task before returning", func() {
				err := <-errCh
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(done.Load(), convey.ShouldEqual, 20)
				convey.So(p.Processed(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a task blocks past the drain timeout", func() {
			release := make(chan struct{})
			defer close(release)
			q.Enqueue(context.Background(), queue.Task{Name: "stuck", Run: func(context.Context) error {
				<-release
				return nil
			}})
			p.Start(context.Background())
			time.Sleep(20 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.Convey("Then Shutdown reports an incomplete drain", func() {
				convey.So(p.Shutdown(ctx), convey.ShouldNotBeNil)
			})
		})
	})
}
