package gossiper

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	p := newWorkerPool(8, 2)
	var n atomic.Int64
	for i := 0; i < 5; i++ {
		p.submit(func() { n.Add(1) })
	}
	p.drain(time.Second)
	if n.Load() != 5 {
		t.Fatalf("ran %d tasks, want 5", n.Load())
	}
}

func TestWorkerPoolDropsOldestOnOverflow(t *testing.T) {
	p := newWorkerPool(1, 1)
	block := make(chan struct{})

	var mu sync.Mutex
	var ran []int
	record := func(v int) {
		mu.Lock()
		ran = append(ran, v)
		mu.Unlock()
	}

	p.submit(func() { <-block }) // occupies the single worker
	p.submit(func() { record(1) })
	p.submit(func() { record(2) }) // drops task 1, queue cap is 1
	p.submit(func() { record(3) }) // drops task 2

	close(block)
	p.drain(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != 3 {
		t.Fatalf("ran = %v, want only the freshest surviving task [3]", ran)
	}
}

func TestWorkerPoolDrainClosesPool(t *testing.T) {
	p := newWorkerPool(4, 1)
	p.drain(10 * time.Millisecond)

	var ran atomic.Bool
	p.submit(func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)

	if ran.Load() {
		t.Fatalf("task ran after pool was drained and closed")
	}
}
