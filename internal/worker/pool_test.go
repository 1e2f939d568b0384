package worker

import (
	"sync"
	"testing"
	"time"
)

func acquireTimeout(t *testing.T, p *pool) chan Job {
	t.Helper()
	got := make(chan chan Job, 1)
	go func() { got <- p.acquire() }()
	select {
	case ch := <-got:
		return ch
	case <-time.After(3 * time.Second):
		t.Fatalf("acquire never handed out a worker")
		return nil
	}
}

func TestAcquireHandsOutWarmWorker(t *testing.T) {
	p := newPool(1, 2, 0)

	done := make(chan struct{})
	ch := acquireTimeout(t, p)
	ch <- func() { close(done) }
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job on warm worker never ran")
	}
}

func TestAcquireSpawnsAndReusesWorkers(t *testing.T) {
	p := newPool(1, 3, 0)

	release := make(chan struct{})
	var wg sync.WaitGroup
	// Occupy every worker the pool may run, past the warm set.
	for i := 0; i < 3; i++ {
		ch := acquireTimeout(t, p)
		wg.Add(1)
		ch <- func() {
			defer wg.Done()
			<-release
		}
	}

	// Pool exhausted: the next acquire must block until a job finishes,
	// then hand out the released worker.
	got := make(chan chan Job, 1)
	go func() { got <- p.acquire() }()
	select {
	case <-got:
		t.Fatalf("acquire returned from an exhausted pool")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	select {
	case ch := <-got:
		done := make(chan struct{})
		ch <- func() { close(done) }
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("job on reused worker never ran")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("acquire never unblocked after a release")
	}
}
