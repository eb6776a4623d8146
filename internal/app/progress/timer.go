// Package progress implements the per-track progress reporting timer: a
// one-shot report once playback passes the configured delay position and a
// repeating report every interval of played content.
package progress

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Listener receives timer fires on timer goroutines and must return quickly.
type Listener interface {
	OnProgressReportDelayElapsed()
	OnProgressReportIntervalElapsed()
}

// Timer tracks one stream at a time. Positions are playback-relative: Pause
// suspends the clock, Resume continues it, so a report due at stream position
// P fires after exactly P minus the starting offset of played content.
//
// For a stream started at offset O with delay D and interval I:
//   - the delay report fires once, after D-O of playback, only when O < D
//   - interval reports fire at stream positions that are multiples of I, the
//     first one after I-(O mod I) of playback; positions already passed at
//     start never fire
type Timer struct {
	mu       sync.Mutex
	listener Listener

	delay    time.Duration
	interval time.Duration
	offset   time.Duration

	armed     bool          // between Reset and Stop
	running   bool          // the playback clock is advancing
	played    time.Duration // content played before the last resume
	resumedAt time.Time

	delayDone    bool
	nextInterval time.Duration // stream position of the next interval fire

	gen           int // invalidates in-flight fires
	delayTimer    *time.Timer
	intervalTimer *time.Timer
}

// New returns a Timer delivering fires to listener. Reset must be called
// before Start.
func New(listener Listener) *Timer {
	return &Timer{listener: listener}
}

// Reset arms the timer for a new stream. A zero delay or interval disables
// the corresponding report.
func (t *Timer) Reset(delay, interval, offset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.stopTimersLocked()
	t.delay = delay
	t.interval = interval
	t.offset = offset
	t.armed = true
	t.running = false
	t.played = 0
	t.delayDone = delay <= 0 || offset >= delay
	if interval > 0 {
		t.nextInterval = offset + (interval - offset%interval)
	} else {
		t.nextInterval = 0
	}
}

// Start begins the playback clock for the stream configured by Reset.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		zlog.Warn().Msg("progress timer started without reset")
		return
	}
	if t.running {
		return
	}
	t.running = true
	t.resumedAt = time.Now()
	t.scheduleLocked()
}

// Pause suspends the playback clock, preserving time to the next fires.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.played += time.Since(t.resumedAt)
	t.running = false
	t.stopTimersLocked()
}

// Resume continues the playback clock after Pause.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || t.running {
		return
	}
	t.running = true
	t.resumedAt = time.Now()
	t.scheduleLocked()
}

// Stop disarms the timer and cancels outstanding fires.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.armed = false
	t.running = false
	t.stopTimersLocked()
}

// positionLocked returns the current stream position.
func (t *Timer) positionLocked() time.Duration {
	pos := t.offset + t.played
	if t.running {
		pos += time.Since(t.resumedAt)
	}
	return pos
}

func (t *Timer) scheduleLocked() {
	gen := t.gen
	if !t.delayDone && t.delay > 0 {
		d := t.delay - t.positionLocked()
		if d < 0 {
			d = 0
		}
		t.delayTimer = time.AfterFunc(d, func() { t.fireDelay(gen) })
	}
	if t.interval > 0 {
		d := t.nextInterval - t.positionLocked()
		if d < 0 {
			d = 0
		}
		t.intervalTimer = time.AfterFunc(d, func() { t.fireInterval(gen) })
	}
}

func (t *Timer) stopTimersLocked() {
	if t.delayTimer != nil {
		t.delayTimer.Stop()
		t.delayTimer = nil
	}
	if t.intervalTimer != nil {
		t.intervalTimer.Stop()
		t.intervalTimer = nil
	}
}

func (t *Timer) fireDelay(gen int) {
	t.mu.Lock()
	if gen != t.gen || !t.running || t.delayDone {
		t.mu.Unlock()
		return
	}
	t.delayDone = true
	t.mu.Unlock()
	t.listener.OnProgressReportDelayElapsed()
}

func (t *Timer) fireInterval(gen int) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.nextInterval += t.interval
	d := t.nextInterval - t.positionLocked()
	if d < 0 {
		d = 0
	}
	t.intervalTimer = time.AfterFunc(d, func() { t.fireInterval(gen) })
	t.mu.Unlock()
	t.listener.OnProgressReportIntervalElapsed()
}
