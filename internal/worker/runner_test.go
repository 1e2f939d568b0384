package worker

import (
	"sync"
	"testing"
	"time"
)

func TestRunnerSerializesJobsPerKey(t *testing.T) {
	r := NewRunner(Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 64})

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		order   []int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		if err := r.Submit(1, func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			order = append(order, i)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Fatalf("jobs for one key must not overlap, saw %d in flight", maxSeen)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestRunnerAllowsDifferentKeysInParallel(t *testing.T) {
	r := NewRunner(Config{MinWorkers: 2, MaxWorkers: 4, QueueSize: 64})

	started := make(chan int64, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for _, key := range []int64{1, 2} {
		key := key
		wg.Add(1)
		if err := r.Submit(key, func() {
			defer wg.Done()
			started <- key
			<-release
		}); err != nil {
			t.Fatalf("submit key %d: %v", key, err)
		}
	}

	// Both jobs must be running before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("jobs for distinct keys did not run in parallel")
		}
	}
	close(release)
	wg.Wait()
}

func TestRunnerRejectsNilJob(t *testing.T) {
	r := NewRunner(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	if err := r.Submit(1, nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
}

func TestRunnerCancelDropsQueuedJobs(t *testing.T) {
	r := NewRunner(Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 64})

	blocker := make(chan struct{})
	running := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	if err := r.Submit(1, func() {
		defer wg.Done()
		close(running)
		<-blocker
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-running

	var (
		mu  sync.Mutex
		ran int
	)
	for i := 0; i < 3; i++ {
		if err := r.Submit(1, func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit queued %d: %v", i, err)
		}
	}
	// Give the run loop time to drain the submissions into the key queue.
	time.Sleep(20 * time.Millisecond)
	r.Cancel(1)
	close(blocker)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if ran != 0 {
		t.Fatalf("cancelled jobs still ran: %d", ran)
	}
}

func TestRunnerDefaultsConfig(t *testing.T) {
	r := NewRunner(Config{})
	done := make(chan struct{})
	if err := r.Submit(7, func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job never ran with default config")
	}
}
