package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrRunnerBusy is returned when the submission queue is full.
var ErrRunnerBusy = errors.New("runner queue full")

// Config sizes the runner's worker pool.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type submission struct {
	key int64
	job Job
}

type keyQueue struct {
	jobs     []Job
	enqueued bool // key is in the ready list
	inFlight bool // a job for this key is executing
}

// Runner executes jobs on a bounded worker pool while keeping jobs that
// share a key strictly serialized in FIFO order. Keys are drained fairly:
// after dispatch a key goes to the back of the ready rotation.
type Runner struct {
	pool     *pool
	jobQueue chan submission
	doneCh   chan int64

	mu        sync.Mutex
	queues    map[int64]*keyQueue
	ready     *list.List
	positions map[int64]*list.Element
}

func NewRunner(cfg Config) *Runner {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	r := &Runner{
		pool:      newPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		jobQueue:  make(chan submission, cfg.QueueSize),
		doneCh:    make(chan int64),
		queues:    make(map[int64]*keyQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
	go r.run()
	return r
}

// Submit enqueues a job under the given key.
func (r *Runner) Submit(key int64, job Job) error {
	if job == nil {
		return errors.New("job required")
	}
	select {
	case r.jobQueue <- submission{key: key, job: job}:
		return nil
	default:
		return ErrRunnerBusy
	}
}

func (r *Runner) run() {
	for {
		if !r.dispatchOne() {
			// Nothing dispatchable; block until new work or a completion.
			select {
			case sub := <-r.jobQueue:
				r.enqueue(sub)
			case key := <-r.doneCh:
				r.finish(key)
			}
			continue
		}
		select {
		case sub := <-r.jobQueue:
			r.enqueue(sub)
		case key := <-r.doneCh:
			r.finish(key)
		default:
		}
	}
}

func (r *Runner) enqueue(sub submission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.queues[sub.key]
	if q == nil {
		q = &keyQueue{}
		r.queues[sub.key] = q
	}
	q.jobs = append(q.jobs, sub.job)
	if q.enqueued || q.inFlight {
		return
	}
	q.enqueued = true
	r.positions[sub.key] = r.ready.PushBack(sub.key)
}

// dispatchOne hands the front ready key's next job to a pool worker. The
// key leaves the ready rotation until the job finishes.
func (r *Runner) dispatchOne() bool {
	r.mu.Lock()
	elem := r.ready.Front()
	if elem == nil {
		r.mu.Unlock()
		return false
	}
	key := elem.Value.(int64)
	q := r.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.inFlight = true
	r.ready.Remove(elem)
	delete(r.positions, key)
	r.mu.Unlock()

	workerCh := r.pool.acquire()
	workerCh <- func() {
		job()
		// Signal completion off the worker goroutine so the worker is
		// released even while the run loop is blocked acquiring one.
		go func() { r.doneCh <- key }()
	}
	return true
}

// finish re-admits the key to the ready rotation when it has queued jobs.
func (r *Runner) finish(key int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.queues[key]
	if q == nil {
		return
	}
	q.inFlight = false
	if len(q.jobs) == 0 {
		delete(r.queues, key)
		return
	}
	q.enqueued = true
	r.positions[key] = r.ready.PushBack(key)
}

// Cancel drops every queued job for the key. An in-flight job finishes.
func (r *Runner) Cancel(key int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.queues[key]
	if q == nil {
		return
	}
	q.jobs = nil
	if elem, ok := r.positions[key]; ok {
		r.ready.Remove(elem)
		delete(r.positions, key)
		q.enqueued = false
	}
	if !q.inFlight {
		delete(r.queues, key)
	}
}
