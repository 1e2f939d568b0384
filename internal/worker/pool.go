package worker

import (
	"sync"
	"time"
)

// Job is one unit of work executed on a pool worker.
type Job func()

type workerMeta struct {
	ch        chan Job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

// pool keeps between min and max workers alive, reaping idle ones.
type pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan Job]*workerMeta
	min      int
	max      int
	running  int
	expiry   time.Duration
}

const defaultWorkerIdle = 30 * time.Second

func newPool(minWorkers, maxWorkers int, idle time.Duration) *pool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	p := &pool{
		metadata: make(map[chan Job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < minWorkers; i++ {
		p.spawnIdleWorker()
	}
	go p.purgeStaleWorkers()
	return p
}

// spawnIdleWorker starts a worker and registers it in the idle queue so
// acquire can find it.
func (p *pool) spawnIdleWorker() {
	p.mu.Lock()
	if p.running >= p.max {
		p.mu.Unlock()
		return
	}
	ch := make(chan Job)
	meta := &workerMeta{ch: ch, lastUsed: time.Now(), enqueued: true}
	p.metadata[ch] = meta
	p.idle = append(p.idle, meta)
	p.running++
	p.mu.Unlock()
	go p.runWorker(ch)
}

func (p *pool) runWorker(ch chan Job) {
	for job := range ch {
		if job == nil { // stop sentinel from the reaper
			return
		}
		job()
		p.release(ch)
	}
}

// acquire returns an idle worker channel, spawning one when allowed, or
// blocks until a worker frees up. A freshly spawned worker is handed to the
// caller directly; it only joins the idle queue after its job completes.
func (p *pool) acquire() chan Job {
	for {
		p.mu.Lock()
		if meta := p.popIdleLocked(); meta != nil {
			p.mu.Unlock()
			return meta.ch
		}
		if p.running < p.max {
			ch := make(chan Job)
			p.metadata[ch] = &workerMeta{ch: ch}
			p.running++
			p.mu.Unlock()
			go p.runWorker(ch)
			return ch
		}
		p.cond.Wait()
		p.mu.Unlock()
	}
}

// release returns a worker to the idle queue after a job completes.
func (p *pool) release(ch chan Job) {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded || meta.enqueued {
		p.mu.Unlock()
		return
	}
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *pool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

func (p *pool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		<-ticker.C
		p.shutdownExpired()
	}
}

// shutdownExpired retires idle workers past their expiry, never dropping
// below the minimum.
func (p *pool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0]
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			delete(p.metadata, meta.ch)
			p.running--
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, meta := range stale {
		meta.ch <- nil
	}
}
