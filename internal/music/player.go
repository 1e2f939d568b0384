package music

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sampler triggers a single note. Audio synthesis lives behind this
// interface; the player only sequences trigger calls.
type Sampler interface {
	Trigger(note Note, at time.Duration)
	ReleaseAll()
}

// Player schedules note sequences against a Sampler with fixed per-note
// timing. At most one playback is in flight; a Play arriving while one is
// running is dropped rather than queued.
type Player struct {
	sampler Sampler
	log     *zap.Logger

	mu      sync.Mutex
	playing bool
	quit    chan struct{}
}

func NewPlayer(sampler Sampler, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{sampler: sampler, log: log}
}

// Play starts playback of the sequence and reports whether it was accepted.
// Notes with an explicit time offset are honored; the rest follow the
// previous note after its full duration.
func (p *Player) Play(notes []Note) bool {
	if len(notes) == 0 {
		return false
	}
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		p.log.Debug("playback already in flight, dropping request")
		return false
	}
	p.playing = true
	quit := make(chan struct{})
	p.quit = quit
	p.mu.Unlock()

	go p.run(notes, quit)
	return true
}

// Stop interrupts the current playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.playing && p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.mu.Unlock()
}

// Playing reports whether a sequence is currently in flight.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) run(notes []Note, quit chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.playing = false
		p.quit = nil
		p.mu.Unlock()
	}()

	start := time.Now()
	var offset time.Duration
	for _, note := range notes {
		if err := note.Validate(); err != nil {
			p.log.Warn("skipping unplayable note", zap.Error(err))
			continue
		}
		at := offset
		if note.Time > 0 {
			at = time.Duration(note.Time * float64(time.Second))
		}
		if wait := at - time.Since(start); wait > 0 {
			select {
			case <-quit:
				p.sampler.ReleaseAll()
				return
			case <-time.After(wait):
			}
		}
		p.sampler.Trigger(note, at)
		length, _ := note.Length()
		offset = at + length
	}

	// Let the final note ring out before releasing the playback slot.
	if wait := offset - time.Since(start); wait > 0 {
		select {
		case <-quit:
			p.sampler.ReleaseAll()
		case <-time.After(wait):
		}
	}
}
