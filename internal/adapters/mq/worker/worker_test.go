package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/jury/internal/adapters/mq/queue"
	worker "github.com/okian/jury/internal/adapters/mq/worker"
	model "github.com/okian/jury/internal/domain/model"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

func (mq *mockQueue) addEvent(event queue.Event) { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	mq.eventChan <- event
}

type mockRanker struct {
	mu       sync.Mutex
	mus      map[string]float64
	versions map[string]uint64
}

func newMockRanker() *mockRanker {
	return &mockRanker{mus: make(map[string]float64), versions: make(map[string]uint64)}
}

func (m *mockRanker) Set(_ context.Context, id string, mu float64, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mus[id] = mu
	m.versions[id] = version
}

func (m *mockRanker) Remove(_ context.Context, id string, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mus, id)
	m.versions[id] = version
}

func (m *mockRanker) version(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[id]
}

func (m *mockRanker) get(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.mus[id]
	return v, ok
}

type mockArchiver struct {
	mu    sync.Mutex
	flags []model.Flag
	err   error
}

func (m *mockArchiver) Append(_ context.Context, f model.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.flags = append(m.flags, f)
	return nil
}

func (m *mockArchiver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flags)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a mock queue", t, func() {
		q := newMockQueue()
		ranker := newMockRanker()
		archiver := &mockArchiver{}
		w := worker.NewInMemoryWorker(q, ranker, archiver, worker.WithName("test"))
		ctx := context.Background()

		convey.Convey("When rating, visibility and flag events arrive", func() {
			q.addEvent(model.Event{Kind: model.EventRatingChanged, ProjectID: "a", Mu: 1.5})
			q.addEvent(model.Event{Kind: model.EventRatingChanged, ProjectID: "b", Mu: -0.5})
			q.addEvent(model.Event{Kind: model.EventVisibilityChanged, ProjectID: "c", Mu: 0.1, Active: true, Version: 3})
			q.addEvent(model.Event{Kind: model.EventVisibilityChanged, ProjectID: "b", Active: false})
			q.addEvent(model.Event{Kind: model.EventFlagged, ProjectID: "a", Flag: &model.Flag{ID: "f1", ProjectID: "a", JudgeID: "j"}})
			q.addEvent(model.Event{Kind: "mystery", ProjectID: "z"})
			_ = q.Close()

			w.Run(ctx)

			convey.Convey("Then the read models reflect them in order", func() {
				_, ok := ranker.get("a")
				convey.So(ok, convey.ShouldBeFalse)
				_, ok = ranker.get("b")
				convey.So(ok, convey.ShouldBeFalse)
				mu, ok := ranker.get("c")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(mu, convey.ShouldEqual, 0.1)
				convey.So(ranker.version("c"), convey.ShouldEqual, 3)
				convey.So(archiver.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the archive fails", func() {
			archiver.err = errors.New("disk full")
			q.addEvent(model.Event{Kind: model.EventFlagged, ProjectID: "a", Flag: &model.Flag{ID: "f1"}})
			q.addEvent(model.Event{Kind: model.EventRatingChanged, ProjectID: "b", Mu: 2})
			_ = q.Close()

			w.Run(ctx)

			convey.Convey("Then later events are still processed", func() {
				mu, ok := ranker.get("b")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(mu, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When shut down while idle", func() {
			go w.Run(ctx)
			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then it stops promptly", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		ranker := newMockRanker()
		pool := worker.NewPool(4, q, ranker, nil, nil)
		pool.Start(ctx)

		for i := 0; i < 200; i++ {
			id := string(rune('a' + i%26))
			convey.So(q.Enqueue(ctx, model.Event{Kind: model.EventRatingChanged, ProjectID: id, Mu: float64(i)}), convey.ShouldBeTrue)
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(ctx)

			convey.Convey("Then the queue is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(q.Len(ctx), convey.ShouldEqual, 0)
				for i := 0; i < 26; i++ {
					_, ok := ranker.get(string(rune('a' + i)))
					convey.So(ok, convey.ShouldBeTrue)
				}
			})
		})
	})
}
