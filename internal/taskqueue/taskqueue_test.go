package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFIFORunsInOrder(t *testing.T) {
	q := NewFIFO()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue(context.Background(), func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	if !waitTimeout(&wg, 2*time.Second) {
		t.Fatal("tasks did not complete in time")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing from 0", order)
		}
	}
}

func TestFIFOClosePreventsNewEnqueue(t *testing.T) {
	q := NewFIFO()
	q.Close()

	ran := false
	q.Enqueue(context.Background(), func(context.Context) { ran = true })

	time.Sleep(10 * time.Millisecond)
	if ran {
		t.Error("Enqueue after Close should be a no-op")
	}
}

func TestFIFOPanicRecovered(t *testing.T) {
	q := NewFIFO()
	defer q.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	var secondRan bool

	q.Enqueue(context.Background(), func(context.Context) {
		defer wg.Done()
		panic("boom")
	})
	q.Enqueue(context.Background(), func(context.Context) {
		defer wg.Done()
		secondRan = true
	})

	if !waitTimeout(&wg, 2*time.Second) {
		t.Fatal("tasks did not complete in time")
	}
	if !secondRan {
		t.Error("a panic in one task should not stop the worker from running later tasks")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
