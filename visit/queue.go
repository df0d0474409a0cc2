// Package visit records redirect traffic asynchronously: a bounded
// in-memory queue drained by a worker pool into the repository.
package visit

import (
	"context"
	"sync"
	"time"

	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"go.uber.org/zap"
)

// maxWriteAttempts bounds worker retries before an event is dropped.
const maxWriteAttempts = 3

// Event is one redirect to record. VisitCount is the link's aggregate
// counter as read at resolution time; it gates the detailed-row cap.
type Event struct {
	LinkID     uint      `json:"link_id"`
	VisitCount int       `json:"visit_count"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	Referrer   string    `json:"referrer"`
	At         time.Time `json:"at"`
}

type Queue struct {
	Repo       repo.Repository
	Logger     *shared.Logger
	Classifier *Classifier
	// StatsLimit caps detailed Visit rows per link; the aggregate counter
	// keeps counting past it.
	StatsLimit int

	events  chan Event
	workers int
	wg      sync.WaitGroup
}

func NewQueue(r repo.Repository, logger *shared.Logger, classifier *Classifier, size int, workers int, statsLimit int) *Queue {
	return &Queue{
		Repo:       r,
		Logger:     logger,
		Classifier: classifier,
		StatsLimit: statsLimit,
		events:     make(chan Event, size),
		workers:    workers,
	}
}

// Enqueue admits an event without blocking. When the queue is full the
// event is dropped and logged, never surfaced to the redirecting request.
func (q *Queue) Enqueue(e Event) bool {
	select {
	case q.events <- e:
		return true
	default:
		q.Logger.Warn("VisitQueueFull", zap.Uint("link_id", e.LinkID))
		return false
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for e := range q.events {
				q.process(e)
			}
		}()
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (q *Queue) Stop() {
	close(q.events)
	q.wg.Wait()
}

func (q *Queue) withRetry(op func(context.Context) error, what string, linkID uint) bool {
	ctx := context.Background()
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return true
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	q.Logger.Error("VisitWriteDropped",
		zap.String("op", what), zap.Uint("link_id", linkID), zap.Error(err))
	return false
}

func (q *Queue) process(e Event) {
	// The aggregate counter is incremented unconditionally; it stays
	// exact-ish for every link regardless of the detail cap.
	q.withRetry(func(ctx context.Context) error {
		return q.Repo.IncrementVisitCount(ctx, e.LinkID)
	}, "increment", e.LinkID)

	if e.VisitCount >= q.StatsLimit {
		return
	}

	row := q.Classifier.Classify(e)
	q.withRetry(func(ctx context.Context) error {
		return q.Repo.RecordVisit(ctx, &row)
	}, "record", e.LinkID)
}
