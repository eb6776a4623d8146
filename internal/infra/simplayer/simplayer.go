// Package simplayer provides a simulated rendering backend. It implements
// media.Player without touching any audio hardware: playback is a clock, a
// track "finishes" once its configured duration of play time has elapsed.
// It lets the daemon exercise the full agent lifecycle standalone.
package simplayer

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/media"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrNotPlaying    = errors.New("source is not playing")
	ErrAlreadyActive = errors.New("source is already active")
	ErrClosed        = errors.New("player is closed")
)

// Options configures the simulated backend.
type Options struct {
	TrackDurationMs int `yaml:"track_duration_ms" mapstructure:"track_duration_ms" default:"30000" validate:"gt=0"`
	StartLatencyMs  int `yaml:"start_latency_ms" mapstructure:"start_latency_ms" default:"50" validate:"gte=0"`
}

// TrackDuration returns the simulated track length.
func (o Options) TrackDuration() time.Duration {
	return time.Duration(o.TrackDurationMs) * time.Millisecond
}

// StartLatency returns the delay between a play request and the started
// callback.
func (o Options) StartLatency() time.Duration {
	return time.Duration(o.StartLatencyMs) * time.Millisecond
}

// OptionsFromSettings decodes backend settings from configuration, applying
// defaults and validating the result.
func OptionsFromSettings(settings map[string]any) (Options, error) {
	var opts Options
	if settings != nil {
		if err := mapstructure.Decode(settings, &opts); err != nil {
			return Options{}, errors.Wrap(err, "failed to decode settings")
		}
	}
	if err := defaults.Set(&opts); err != nil {
		return Options{}, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(opts); err != nil {
		return Options{}, errors.Wrap(err, "validation failed")
	}
	return opts, nil
}

type sourceState int

const (
	stateLoaded sourceState = iota
	stateStarting
	statePlaying
	statePaused
	stateDone
)

type source struct {
	id    media.SourceID
	url   string
	state sourceState

	// played accumulates play time across pauses; startedAt is set while the
	// clock is running.
	played    time.Duration
	offset    time.Duration
	startedAt time.Time

	// gen invalidates scheduled timer fires after a state change.
	gen   int
	timer *time.Timer
}

// Player is a simulated media.Player. Callbacks are delivered in order on a
// dedicated dispatch goroutine, never on the caller's stack.
type Player struct {
	opts Options

	mu        sync.Mutex
	lastID    media.SourceID
	sources   map[media.SourceID]*source
	observers []media.Observer
	closed    bool

	events chan func()
	done   chan struct{}
}

var _ media.Player = (*Player)(nil)

// New returns a running simulated backend.
func New(opts Options) *Player {
	p := &Player{
		opts:    opts,
		sources: make(map[media.SourceID]*source),
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Close stops the dispatch goroutine. Pending callbacks are delivered first.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, s := range p.sources {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.gen++
	}
	p.mu.Unlock()
	close(p.events)
	<-p.done
}

// Load registers a stream and returns its source id. Nothing is fetched; the
// url is only kept for logging.
func (p *Player) Load(url string, offset time.Duration) (media.SourceID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return media.ErrorSourceID, ErrClosed
	}
	p.lastID++
	id := p.lastID
	p.sources[id] = &source{id: id, url: url, offset: offset, played: 0}
	zlog.Debug().Msgf("sim load: sourceId=%d url=%s offset=%s", id, url, offset)
	return id, nil
}

// Play schedules the started callback after the configured latency and the
// finished callback once the track duration has played out.
func (p *Player) Play(id media.SourceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.sourceLocked(id)
	if err != nil {
		return err
	}
	if s.state != stateLoaded {
		return errors.Wrapf(ErrAlreadyActive, "sourceId=%d", id)
	}
	s.state = stateStarting
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(p.opts.StartLatency(), func() { p.onStartTimer(id, gen) })
	return nil
}

// Stop halts the clock and delivers the stopped callback.
func (p *Player) Stop(id media.SourceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.sourceLocked(id)
	if err != nil {
		return err
	}
	switch s.state {
	case stateLoaded, stateDone:
		return errors.Wrapf(ErrNotPlaying, "sourceId=%d", id)
	case statePlaying:
		s.played += time.Since(s.startedAt)
	case stateStarting, statePaused:
	}
	s.haltLocked()
	s.state = stateDone
	p.emitLocked(func(o media.Observer) { o.OnPlaybackStopped(id) })
	return nil
}

// Pause suspends the clock and delivers the paused callback.
func (p *Player) Pause(id media.SourceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.sourceLocked(id)
	if err != nil {
		return err
	}
	if s.state != statePlaying {
		return errors.Wrapf(ErrNotPlaying, "sourceId=%d", id)
	}
	s.played += time.Since(s.startedAt)
	s.haltLocked()
	s.state = statePaused
	p.emitLocked(func(o media.Observer) { o.OnPlaybackPaused(id) })
	return nil
}

// Resume restarts the clock and delivers the resumed callback.
func (p *Player) Resume(id media.SourceID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.sourceLocked(id)
	if err != nil {
		return err
	}
	if s.state != statePaused {
		return errors.Wrapf(ErrNotPlaying, "sourceId=%d", id)
	}
	p.startClockLocked(s)
	p.emitLocked(func(o media.Observer) { o.OnPlaybackResumed(id) })
	return nil
}

// Offset reports the playback position: the starting offset plus played time.
func (p *Player) Offset(id media.SourceID) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sources[id]
	if !ok {
		return 0, false
	}
	pos := s.offset + s.played
	if s.state == statePlaying {
		pos += time.Since(s.startedAt)
	}
	return pos, true
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

func (p *Player) onStartTimer(id media.SourceID, gen int) {
	p.mu.Lock()
	s, ok := p.sources[id]
	if !ok || s.gen != gen || p.closed {
		p.mu.Unlock()
		return
	}
	p.startClockLocked(s)
	p.emitLocked(func(o media.Observer) { o.OnPlaybackStarted(id) })
	p.mu.Unlock()
}

func (p *Player) onFinishTimer(id media.SourceID, gen int) {
	p.mu.Lock()
	s, ok := p.sources[id]
	if !ok || s.gen != gen || p.closed {
		p.mu.Unlock()
		return
	}
	s.played += time.Since(s.startedAt)
	s.haltLocked()
	s.state = stateDone
	zlog.Debug().Msgf("sim finished: sourceId=%d url=%s", id, s.url)
	p.emitLocked(func(o media.Observer) { o.OnPlaybackFinished(id) })
	p.mu.Unlock()
}

// startClockLocked marks the source playing and schedules the finish fire for
// the remaining play time.
func (p *Player) startClockLocked(s *source) {
	s.state = statePlaying
	s.startedAt = time.Now()
	s.gen++
	gen := s.gen
	remaining := p.opts.TrackDuration() - s.offset - s.played
	if remaining < 0 {
		remaining = 0
	}
	id := s.id
	s.timer = time.AfterFunc(remaining, func() { p.onFinishTimer(id, gen) })
}

func (s *source) haltLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (p *Player) sourceLocked(id media.SourceID) (*source, error) {
	if p.closed {
		return nil, ErrClosed
	}
	s, ok := p.sources[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, "sourceId=%d", id)
	}
	return s, nil
}

// emitLocked snapshots the observer list and queues the callback for the
// dispatch goroutine. Callers hold p.mu.
func (p *Player) emitLocked(fn func(media.Observer)) {
	observers := make([]media.Observer, len(p.observers))
	copy(observers, p.observers)
	select {
	case p.events <- func() {
		for _, o := range observers {
			fn(o)
		}
	}:
	default:
		zlog.Warn().Msgf("sim callback dropped: dispatch queue full")
	}
}

func (p *Player) dispatch() {
	for fn := range p.events {
		fn()
	}
	close(p.done)
}
