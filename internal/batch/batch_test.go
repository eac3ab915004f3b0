package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPreservesInputOrderInResults(t *testing.T) {
	s := New(Config{MaxConcurrent: 4})
	tasks := []Task{
		{ID: "a", Run: func(ctx context.Context) (any, error) { return "a-value", nil }},
		{ID: "b", Run: func(ctx context.Context) (any, error) { return "b-value", nil }},
		{ID: "c", Run: func(ctx context.Context) (any, error) { return "c-value", nil }},
	}

	br, err := s.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(br.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(br.Results))
	}
	for i, id := range []string{"a", "b", "c"} {
		if br.Results[i].ID != id {
			t.Errorf("Results[%d].ID = %q, want %q", i, br.Results[i].ID, id)
		}
	}
}

func TestRunIsolatesFailuresPerTask(t *testing.T) {
	s := New(DefaultConfig())
	tasks := []Task{
		{ID: "ok1", Run: func(ctx context.Context) (any, error) { return 1, nil }},
		{ID: "fail", Run: func(ctx context.Context) (any, error) { return nil, errors.New("boom") }},
		{ID: "ok2", Run: func(ctx context.Context) (any, error) { return 2, nil }},
	}

	br, err := s.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if br.Succeeded != 2 || br.Failed != 1 {
		t.Errorf("Succeeded=%d Failed=%d, want 2/1", br.Succeeded, br.Failed)
	}
	if br.Results[1].Err == nil {
		t.Error("expected the failing task's Result to carry its error")
	}
	if br.Results[0].Err != nil || br.Results[2].Err != nil {
		t.Error("expected the other tasks to succeed despite the failing one")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	s := New(Config{MaxConcurrent: 2})

	var active int32
	var maxActive int32
	var mu sync.Mutex

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{ID: "t", Run: func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > maxActive {
				maxActive = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil, nil
		}}
	}

	if _, err := s.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxActive > 2 {
		t.Errorf("observed %d concurrent tasks, want <= 2", maxActive)
	}
}

func TestRunDispatchesHighPriorityBeforeLow(t *testing.T) {
	s := New(Config{MaxConcurrent: 1})

	var order []string
	var mu sync.Mutex
	record := func(id string) { mu.Lock(); order = append(order, id); mu.Unlock() }

	tasks := []Task{
		{ID: "low-1", Priority: PriorityLow, Run: func(ctx context.Context) (any, error) { record("low-1"); return nil, nil }},
		{ID: "high-1", Priority: PriorityHigh, Run: func(ctx context.Context) (any, error) { record("high-1"); return nil, nil }},
		{ID: "normal-1", Priority: PriorityNormal, Run: func(ctx context.Context) (any, error) { record("normal-1"); return nil, nil }},
		{ID: "high-2", Priority: PriorityHigh, Run: func(ctx context.Context) (any, error) { record("high-2"); return nil, nil }},
	}

	if _, err := s.Run(context.Background(), tasks); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"high-1", "high-2", "normal-1", "low-1"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q (full order: %v)", i, order[i], want[i], order)
		}
	}
}

func TestOrderByPriorityBreaksTiesByInputOrder(t *testing.T) {
	tasks := []Task{
		{ID: "n1", Priority: PriorityNormal},
		{ID: "h1", Priority: PriorityHigh},
		{ID: "n2", Priority: PriorityNormal},
		{ID: "h2", Priority: PriorityHigh},
	}
	ordered := orderByPriority(tasks)
	want := []string{"h1", "h2", "n1", "n2"}
	for i, id := range want {
		if ordered[i].task.ID != id {
			t.Errorf("ordered[%d].task.ID = %q, want %q", i, ordered[i].task.ID, id)
		}
	}
}

func TestRunRecoversFromPanickingTask(t *testing.T) {
	s := New(DefaultConfig())
	tasks := []Task{
		{ID: "ok", Run: func(ctx context.Context) (any, error) { return "fine", nil }},
		{ID: "boom", Run: func(ctx context.Context) (any, error) { panic("boom") }},
	}

	br, err := s.Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if br.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", br.Succeeded)
	}
	if br.Failed != 1 || br.Results[1].Err == nil {
		t.Errorf("expected the panicking task to be captured as a failed Result, got %+v", br.Results[1])
	}
}

func TestRunReturnsErrorWhenContextAlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(DefaultConfig())
	tasks := []Task{
		{ID: "a", Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}

	br, err := s.Run(ctx, tasks)
	if err == nil && (len(br.Results) == 0 || br.Results[0].Err == nil) {
		t.Error("expected either a scheduler-level error or a per-task context error for an already-canceled context")
	}
}

func TestEmptyBatchReturnsEmptyResult(t *testing.T) {
	s := New(DefaultConfig())
	br, err := s.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(br.Results) != 0 || br.Succeeded != 0 || br.Failed != 0 {
		t.Errorf("expected an empty BatchResult, got %+v", br)
	}
}
