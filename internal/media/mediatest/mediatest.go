// Package mediatest provides a scriptable media.Player for tests: calls are
// recorded on a channel the test can wait on, and backend callbacks are
// fired explicitly by the test.
package mediatest

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
	"github.com/ariavoice/audioplayer/internal/media"
)

// CallKind names a recorded backend call.
type CallKind string

const (
	CallLoad   CallKind = "load"
	CallPlay   CallKind = "play"
	CallStop   CallKind = "stop"
	CallPause  CallKind = "pause"
	CallResume CallKind = "resume"
)

// Call is one recorded backend call.
type Call struct {
	Kind     CallKind
	SourceID media.SourceID
	URL      string
	Offset   time.Duration
}

// Player implements media.Player. Control methods only record and succeed
// unless an error is injected; the test fires callbacks itself.
type Player struct {
	// Calls receives every control call in order.
	Calls chan Call

	// Injected errors, set before the call under test.
	LoadErr   error
	PlayErr   error
	StopErr   error
	PauseErr  error
	ResumeErr error

	mu        sync.Mutex
	lastID    media.SourceID
	offsets   map[media.SourceID]time.Duration
	observers []media.Observer
}

var _ media.Player = (*Player)(nil)

func New() *Player {
	return &Player{
		Calls:   make(chan Call, 64),
		offsets: make(map[media.SourceID]time.Duration),
	}
}

func (p *Player) Load(url string, offset time.Duration) (media.SourceID, error) {
	if p.LoadErr != nil {
		return media.ErrorSourceID, p.LoadErr
	}
	p.mu.Lock()
	p.lastID++
	id := p.lastID
	p.offsets[id] = offset
	p.mu.Unlock()
	p.record(Call{Kind: CallLoad, SourceID: id, URL: url, Offset: offset})
	return id, nil
}

func (p *Player) Play(id media.SourceID) error {
	if p.PlayErr != nil {
		return p.PlayErr
	}
	p.record(Call{Kind: CallPlay, SourceID: id})
	return nil
}

func (p *Player) Stop(id media.SourceID) error {
	if p.StopErr != nil {
		return p.StopErr
	}
	p.record(Call{Kind: CallStop, SourceID: id})
	return nil
}

func (p *Player) Pause(id media.SourceID) error {
	if p.PauseErr != nil {
		return p.PauseErr
	}
	p.record(Call{Kind: CallPause, SourceID: id})
	return nil
}

func (p *Player) Resume(id media.SourceID) error {
	if p.ResumeErr != nil {
		return p.ResumeErr
	}
	p.record(Call{Kind: CallResume, SourceID: id})
	return nil
}

func (p *Player) Offset(id media.SourceID) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, ok := p.offsets[id]
	return off, ok
}

// SetOffset scripts the offset reported for id.
func (p *Player) SetOffset(id media.SourceID, off time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offsets[id] = off
}

// LastSourceID returns the id issued by the most recent Load.
func (p *Player) LastSourceID() media.SourceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}

func (p *Player) AddObserver(o media.Observer) {
	if o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *Player) RemoveObserver(o media.Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.observers {
		if existing == o {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}

func (p *Player) FireStarted(id media.SourceID) { p.each(func(o media.Observer) { o.OnPlaybackStarted(id) }) }

func (p *Player) FireStopped(id media.SourceID) { p.each(func(o media.Observer) { o.OnPlaybackStopped(id) }) }

func (p *Player) FireFinished(id media.SourceID) { p.each(func(o media.Observer) { o.OnPlaybackFinished(id) }) }

func (p *Player) FirePaused(id media.SourceID) { p.each(func(o media.Observer) { o.OnPlaybackPaused(id) }) }

func (p *Player) FireResumed(id media.SourceID) { p.each(func(o media.Observer) { o.OnPlaybackResumed(id) }) }

func (p *Player) FireError(id media.SourceID, errorType audio.ErrorType, message string) {
	p.each(func(o media.Observer) { o.OnPlaybackError(id, errorType, message) })
}

func (p *Player) FireUnderrun(id media.SourceID) { p.each(func(o media.Observer) { o.OnBufferUnderrun(id) }) }

func (p *Player) FireRefilled(id media.SourceID) { p.each(func(o media.Observer) { o.OnBufferRefilled(id) }) }

func (p *Player) FireTags(id media.SourceID, tags []audio.Tag) {
	p.each(func(o media.Observer) { o.OnTags(id, tags) })
}

func (p *Player) each(fn func(media.Observer)) {
	p.mu.Lock()
	observers := make([]media.Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

func (p *Player) record(c Call) {
	select {
	case p.Calls <- c:
	default:
		panic(errors.Newf("mediatest: call buffer full: %v", c.Kind))
	}
}
