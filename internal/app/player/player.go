// Package player implements the AudioPlayer capability: it consumes Play,
// Stop and ClearQueue directives, drives a bounded pool of rendering
// backends so upcoming tracks buffer ahead of time, and reports playback
// events and state back to the service.
//
// All mutable state is confined to a single serialized processing queue.
// Public entry points only validate input and submit work; backend and focus
// callbacks are likewise re-submitted, so no two of them ever interleave.
package player

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/app/progress"
	"github.com/ariavoice/audioplayer/internal/domain/audio"
	"github.com/ariavoice/audioplayer/internal/focus"
	"github.com/ariavoice/audioplayer/internal/infra/executor"
	"github.com/ariavoice/audioplayer/internal/media"
)

// Focus channel defaults: media content plays on the lowest-priority channel.
const (
	DefaultChannelName     = "Content"
	DefaultChannelPriority = 300
)

var ErrNilDependency = errors.New("nil dependency")

// Config carries the player's tunables.
type Config struct {
	ChannelName     string // focus channel to play on (default Content)
	ChannelPriority int    // priority of that channel (default 300)
}

// Deps are the collaborators the player drives. All fields are required.
type Deps struct {
	Factory   media.Factory
	Focus     focus.Manager
	Sender    MessageSender
	Reporter  StateReporter
	Exception ExceptionSender
	Router    PlaybackRouter
}

// Player is the playback capability agent. Create with New, dispose with
// Shutdown.
type Player struct {
	cfg   Config
	deps  Deps
	exec  *executor.Executor
	timer *progress.Timer

	pendingMu sync.Mutex
	pending   map[string]*pendingDirective

	// Everything below is owned by the processing queue.
	queue                []*playItem
	current              *playItem
	activity             Activity
	focusState           focus.State
	offset               time.Duration
	okToRequestNextTrack bool
	playNextAfterStopped bool
	stopCalled           bool
	underrunSince        time.Time
	observers            []ActivityObserver
}

var (
	_ media.Observer        = (*Player)(nil)
	_ media.FactoryObserver = (*Player)(nil)
	_ focus.Observer        = (*Player)(nil)
	_ progress.Listener     = (*Player)(nil)
)

type pendingDirective struct {
	directive Directive
	result    Result
	clear     audio.ClearBehavior // parsed ClearQueue behavior
}

// New validates deps, applies config defaults, and starts the processing
// queue. The player registers itself as a factory observer; Shutdown removes
// it again.
func New(cfg Config, deps Deps) (*Player, error) {
	switch {
	case deps.Factory == nil:
		return nil, errors.Wrap(ErrNilDependency, "media factory")
	case deps.Focus == nil:
		return nil, errors.Wrap(ErrNilDependency, "focus manager")
	case deps.Sender == nil:
		return nil, errors.Wrap(ErrNilDependency, "message sender")
	case deps.Reporter == nil:
		return nil, errors.Wrap(ErrNilDependency, "state reporter")
	case deps.Exception == nil:
		return nil, errors.Wrap(ErrNilDependency, "exception sender")
	case deps.Router == nil:
		return nil, errors.Wrap(ErrNilDependency, "playback router")
	}
	if cfg.ChannelName == "" {
		cfg.ChannelName = DefaultChannelName
	}
	if cfg.ChannelPriority == 0 {
		cfg.ChannelPriority = DefaultChannelPriority
	}

	p := &Player{
		cfg:     cfg,
		deps:    deps,
		exec:    executor.New(),
		pending: make(map[string]*pendingDirective),
		current: &playItem{},
	}
	p.timer = progress.New(p)
	deps.Factory.AddObserver(p)
	return p, nil
}

// Shutdown stops playback, releases the channel and all backend slots, and
// drains the processing queue.
func (p *Player) Shutdown() {
	p.submit(func() {
		p.timer.Stop()
		p.executeStop(false)
		p.clearWaitingQueue()
		p.releasePlayer(p.current)
		if p.focusState != focus.StateNone {
			p.deps.Focus.Release(p.cfg.ChannelName, p)
		}
	})
	p.exec.Shutdown()
	p.deps.Factory.RemoveObserver(p)
}

// PreHandle stages a directive and validates it. A directive that passes
/// validation has its result completed here: the result reflects acceptance,
// not the eventual playback outcome. Play validation that depends on queue
// state (duplicate messageIds, token chaining) runs as a processing-queue
// task, so its verdict can arrive after PreHandle returns.
func (p *Player) PreHandle(d Directive, r Result) {
	zlog.Debug().Msgf("prehandle %s: messageId=%s", d.Name, d.MessageID)
	switch d.Name {
	case NamePlay:
		behavior, item, err := audio.ParsePlayPayload(d.Payload)
		if err != nil {
			p.reject(d, r, err.Error())
			return
		}
		p.stage(&pendingDirective{directive: d, result: r})
		p.submit(func() { p.executePrePlay(d, r, behavior, item) })
	case NameStop:
		p.stage(&pendingDirective{directive: d, result: r})
		r.SetCompleted()
	case NameClearQueue:
		behavior, err := audio.ParseClearQueuePayload(d.Payload)
		if err != nil {
			p.reject(d, r, err.Error())
			return
		}
		p.stage(&pendingDirective{directive: d, result: r, clear: behavior})
		r.SetCompleted()
	default:
		p.stage(&pendingDirective{directive: d, result: r})
		zlog.Warn().Msgf("prehandle: unsupported directive: name=%s", d.Name)
	}
}

// Handle applies the directive staged under messageID. It reports false when
// the id is unknown, already canceled, or rejected during PreHandle.
func (p *Player) Handle(messageID string) bool {
	pd := p.takePending(messageID)
	if pd == nil {
		zlog.Debug().Msgf("handle: no staged directive for messageId=%s", messageID)
		return false
	}
	zlog.Debug().Msgf("handle %s: messageId=%s", pd.directive.Name, messageID)
	switch pd.directive.Name {
	case NamePlay:
		p.submit(func() { p.executePlay(messageID) })
	case NameStop:
		p.submit(func() { p.executeStop(false) })
	case NameClearQueue:
		clear := pd.clear
		p.submit(func() { p.executeClearQueue(clear) })
	default:
		message := "unexpected directive " + Namespace + ":" + pd.directive.Name
		zlog.Error().Msgf("handle failed: %s", message)
		p.deps.Exception.SendExceptionEncountered(pd.directive.Payload, ExceptionUnexpectedInformation, message)
		pd.result.SetFailed(message)
	}
	return true
}

// Cancel abandons the directive staged under messageID and drops the queued
// item it produced, releasing the item's backend slot.
func (p *Player) Cancel(messageID string) {
	zlog.Debug().Msgf("cancel: messageId=%s", messageID)
	p.takePending(messageID)
	p.submit(func() { p.executeCancel(messageID) })
}

// OnFocusChanged implements focus.Observer.
func (p *Player) OnFocusChanged(state focus.State) {
	zlog.Debug().Msgf("focus callback: %s", state)
	p.submit(func() { p.executeOnFocusChanged(state) })
}

// OnReadyToProvideNextPlayer implements media.FactoryObserver.
func (p *Player) OnReadyToProvideNextPlayer() {
	p.submit(func() { p.executeOnReadyToProvideNextPlayer() })
}

// OnPlaybackStarted implements media.Observer.
func (p *Player) OnPlaybackStarted(id media.SourceID) {
	p.submit(func() { p.executeOnStarted(id) })
}

// OnPlaybackStopped implements media.Observer.
func (p *Player) OnPlaybackStopped(id media.SourceID) {
	p.submit(func() { p.executeOnStopped(id) })
}

// OnPlaybackFinished implements media.Observer.
func (p *Player) OnPlaybackFinished(id media.SourceID) {
	p.submit(func() { p.executeOnFinished(id) })
}

// OnPlaybackPaused implements media.Observer.
func (p *Player) OnPlaybackPaused(id media.SourceID) {
	p.submit(func() { p.executeOnPaused(id) })
}

// OnPlaybackResumed implements media.Observer.
func (p *Player) OnPlaybackResumed(id media.SourceID) {
	p.submit(func() { p.executeOnResumed(id) })
}

// OnPlaybackError implements media.Observer.
func (p *Player) OnPlaybackError(id media.SourceID, errorType audio.ErrorType, message string) {
	p.submit(func() { p.executeOnError(id, errorType, message) })
}

// OnBufferUnderrun implements media.Observer.
func (p *Player) OnBufferUnderrun(id media.SourceID) {
	p.submit(func() { p.executeOnUnderrun(id) })
}

// OnBufferRefilled implements media.Observer.
func (p *Player) OnBufferRefilled(id media.SourceID) {
	p.submit(func() { p.executeOnRefilled(id) })
}

// OnTags implements media.Observer.
func (p *Player) OnTags(id media.SourceID, tags []audio.Tag) {
	if len(tags) == 0 {
		return
	}
	p.submit(func() { p.executeOnTags(id, tags) })
}

// OnProgressReportDelayElapsed implements progress.Listener.
func (p *Player) OnProgressReportDelayElapsed() {
	p.submit(func() { p.sendEventWithTokenAndOffset(eventProgressReportDelayElapsed) })
}

// OnProgressReportIntervalElapsed implements progress.Listener.
func (p *Player) OnProgressReportIntervalElapsed() {
	p.submit(func() { p.sendEventWithTokenAndOffset(eventProgressReportIntervalElapsed) })
}

// ProvideState pushes the current snapshot to the state reporter in answer
// to a query identified by requestToken.
func (p *Player) ProvideState(requestToken uint32) {
	p.submit(func() { p.executeProvideState(requestToken) })
}

// Snapshot returns the current playback state. It runs on the processing
// queue, so it observes a consistent point between callbacks.
func (p *Player) Snapshot() (Snapshot, error) {
	var snap Snapshot
	done := make(chan struct{})
	if err := p.exec.Submit(func() {
		snap = p.buildSnapshot()
		close(done)
	}); err != nil {
		return Snapshot{}, err
	}
	<-done
	return snap, nil
}

// Offset reports the playback offset of the current or most recent track.
// It returns zero after Shutdown.
func (p *Player) Offset() time.Duration {
	var off time.Duration
	done := make(chan struct{})
	if err := p.exec.Submit(func() {
		off = p.getOffset()
		close(done)
	}); err != nil {
		return 0
	}
	<-done
	return off
}

// AddActivityObserver registers an observer for PlayerActivity changes.
func (p *Player) AddActivityObserver(o ActivityObserver) {
	if o == nil {
		return
	}
	p.submit(func() { p.observers = append(p.observers, o) })
}

// RemoveActivityObserver unregisters an activity observer.
func (p *Player) RemoveActivityObserver(o ActivityObserver) {
	p.submit(func() {
		for i, existing := range p.observers {
			if existing == o {
				p.observers = append(p.observers[:i], p.observers[i+1:]...)
				return
			}
		}
	})
}

func (p *Player) submit(task func()) {
	if err := p.exec.Submit(task); err != nil {
		zlog.Warn().Msgf("player task dropped: %v", err)
	}
}

// reject reports a validation failure for a directive and unstages it, so a
// later Handle for the same messageId reports false.
func (p *Player) reject(d Directive, r Result, message string) {
	zlog.Error().Msgf("directive rejected: name=%s messageId=%s: %s", d.Name, d.MessageID, message)
	p.takePending(d.MessageID)
	p.deps.Exception.SendExceptionEncountered(d.Payload, ExceptionUnexpectedInformation, message)
	r.SetFailed(message)
}

func (p *Player) stage(pd *pendingDirective) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending[pd.directive.MessageID] = pd
}

func (p *Player) takePending(messageID string) *pendingDirective {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	pd, ok := p.pending[messageID]
	if !ok {
		return nil
	}
	delete(p.pending, messageID)
	return pd
}
