// Package batch implements the parallel batch scheduler: a bounded
// worker pool dispatching a one-shot batch of fetch requests in
// priority order (HIGH < NORMAL < LOW, FIFO within a priority tier).
// Spec §4.11. Generalized from internal/engine/scheduler.go's
// semaphore-bounded worker pool and internal/engine/frontier.go's
// container/heap priority queue, which together modeled a continuous
// crawl frontier; here the frontier is finite and built once per call.
package batch

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/fetchkit/internal/types"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
)

// Priority orders task dispatch. Lower values dispatch first, matching
// frontier.go's "lower priority value = higher priority" convention.
// Aliased to types.Priority so a types.Request's own Priority field
// feeds straight into a batch Task.
type Priority = types.Priority

const (
	PriorityHigh   = types.PriorityHigh
	PriorityNormal = types.PriorityNormal
	PriorityLow    = types.PriorityLow
)

// Task is one unit of batch work.
type Task struct {
	ID       string
	Priority Priority
	Run      func(ctx context.Context) (any, error)
}

// Result is the outcome of one Task. A failing Task never aborts the
// rest of the batch — its error is captured here instead.
type Result struct {
	ID       string
	Value    any
	Err      error
	Duration time.Duration
}

// BatchResult aggregates a completed batch, preserving input order.
type BatchResult struct {
	Results   []Result
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Config configures a Scheduler. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	MaxConcurrent int
}

// DefaultConfig mirrors the engine's default worker-pool concurrency.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 10}
}

// Scheduler dispatches a batch of Tasks bounded by cfg.MaxConcurrent,
// releasing ready tasks in priority order.
type Scheduler struct {
	cfg Config
}

// New constructs a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Scheduler{cfg: cfg}
}

// Run dispatches tasks, releasing them in priority order (ties broken
// by input order), bounded to cfg.MaxConcurrent concurrent
// executions. The returned error is non-nil only for a scheduler-level
// fault (e.g. ctx already canceled before dispatch began); individual
// task failures are always captured in BatchResult.Results instead.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	start := time.Now()
	ordered := orderByPriority(tasks)

	results := make([]Result, len(ordered))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)

	g, gctx := errgroup.WithContext(ctx)
	var wg conc.WaitGroup

	g.Go(func() error {
		for _, item := range ordered {
			item := item

			select {
			case <-gctx.Done():
				results[item.originalIndex] = Result{ID: item.task.ID, Err: gctx.Err()}
				continue
			case sem <- struct{}{}:
			}

			wg.Go(func() {
				defer func() { <-sem }()
				results[item.originalIndex] = s.execute(gctx, item.task)
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}
	wg.Wait()

	return summarize(results, time.Since(start)), nil
}

func (s *Scheduler) execute(ctx context.Context, t Task) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Result{ID: t.ID, Err: fmt.Errorf("batch task %q panicked: %v", t.ID, p), Duration: time.Since(start)}
		}
	}()
	value, err := t.Run(ctx)
	return Result{ID: t.ID, Value: value, Err: err, Duration: time.Since(start)}
}

func summarize(results []Result, duration time.Duration) BatchResult {
	br := BatchResult{Results: results, Duration: duration}
	for _, r := range results {
		if r.Err != nil {
			br.Failed++
		} else {
			br.Succeeded++
		}
	}
	return br
}

// --- priority ordering ---

type queuedTask struct {
	task          Task
	sequence      int
	originalIndex int
}

// orderByPriority returns tasks sorted by Priority then input order,
// using a container/heap min-heap exactly as frontier.go orders its
// pqItem entries by priority value.
func orderByPriority(tasks []Task) []queuedTask {
	pq := make(priorityQueue, len(tasks))
	for i, t := range tasks {
		pq[i] = &queuedTask{task: t, sequence: i, originalIndex: i}
	}
	heap.Init(&pq)

	ordered := make([]queuedTask, 0, len(tasks))
	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*queuedTask)
		ordered = append(ordered, *item)
	}
	return ordered
}

type priorityQueue []*queuedTask

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].task.Priority != pq[j].task.Priority {
		return pq[i].task.Priority < pq[j].task.Priority
	}
	return pq[i].sequence < pq[j].sequence
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queuedTask))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
