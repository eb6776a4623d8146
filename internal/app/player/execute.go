package player

import (
	"encoding/json"
	"fmt"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
	"github.com/ariavoice/audioplayer/internal/focus"
	"github.com/ariavoice/audioplayer/internal/media"
)

// Everything in this file runs on the processing queue.

// executePrePlay finishes Play validation against queue state, then stages
// the track: an already-buffered queued track is adopted instead of loading
// the same content twice, otherwise a backend is assigned if one is free and
// every track ahead already has one.
func (p *Player) executePrePlay(d Directive, r Result, behavior audio.PlayBehavior, item audio.AudioItem) {
	zlog.Debug().Msgf("preplay: messageId=%s behavior=%s token=%s", d.MessageID, behavior, item.Stream.Token)

	if p.messageIDInQueue(d.MessageID) {
		p.reject(d, r, "duplicate messageId "+d.MessageID)
		return
	}
	if behavior == audio.PlayBehaviorEnqueue && item.Stream.ExpectedPreviousToken != "" {
		previous := p.current.item.Stream.Token
		if n := len(p.queue); n > 0 {
			previous = p.queue[n-1].item.Stream.Token
		}
		if previous != item.Stream.ExpectedPreviousToken {
			p.reject(d, r, fmt.Sprintf(
				"expectedPreviousToken mismatch: expected=%s previous=%s", item.Stream.ExpectedPreviousToken, previous))
			return
		}
	}
	r.SetCompleted()

	next := &playItem{messageID: d.MessageID, behavior: behavior, item: item}

	// A replace directive often names the track we already prebuffered as
	// the upcoming one. Take over that item's backend instead of loading
	// the same content again.
	if behavior != audio.PlayBehaviorEnqueue {
		for _, it := range p.queue {
			if it.sameContent(item.ID, item.Stream.URL) {
				zlog.Debug().Msgf("adopting buffered item: audioItemId=%s sourceId=%d", item.ID, it.sourceID)
				next.player = it.player
				next.sourceID = it.sourceID
				next.errorType = it.errorType
				next.errorMsg = it.errorMsg
				it.player = nil
				it.sourceID = media.ErrorSourceID
				break
			}
		}
	}

	if next.player == nil {
		// Keep prebuffering strictly FIFO: assign a backend only when every
		// track ahead of this one already has its own.
		if p.deps.Factory.Available() && (len(p.queue) == 0 || p.queue[0].player != nil) {
			if !p.configurePlayer(next) {
				return
			}
		} else {
			zlog.Debug().Msgf("enqueue without backend: token=%s", item.Stream.Token)
		}
	}

	zlog.Info().Msgf("enqueuing: audioItemId=%s sourceId=%d messageId=%s", item.ID, next.sourceID, d.MessageID)

	switch behavior {
	case audio.PlayBehaviorReplaceAll, audio.PlayBehaviorReplaceEnqueued:
		// REPLACE_ALL additionally stops the active track in executePlay.
		p.clearWaitingQueue()
	}
	p.queue = append(p.queue, next)
}

func (p *Player) executePlay(messageID string) {
	if len(p.queue) == 0 {
		zlog.Error().Msgf("play failed: nothing staged: messageId=%s", messageID)
		return
	}
	head := p.queue[0]
	if head.behavior != audio.PlayBehaviorEnqueue && head.messageID != messageID {
		zlog.Error().Msgf("play failed: track not head of queue: messageId=%s", messageID)
		return
	}

	if head.behavior == audio.PlayBehaviorReplaceAll {
		p.executeStop(true)
	}

	switch p.activity {
	case ActivityIdle, ActivityStopped, ActivityFinished:
		switch p.focusState {
		case focus.StateNone:
			// Playback starts when the channel is granted.
			if !p.deps.Focus.Acquire(p.cfg.ChannelName, p.cfg.ChannelPriority, p) {
				zlog.Error().Msgf("play failed: could not acquire channel %s", p.cfg.ChannelName)
				p.timer.Stop()
				p.sendPlaybackFailed(head.item.Stream.Token, audio.ErrorInternalDeviceError,
					"could not acquire channel "+p.cfg.ChannelName)
			}
		case focus.StateForeground:
			// Already holding the channel; no grant callback will come.
			p.playNext()
		case focus.StateBackground:
			// Wait for the channel to return to foreground.
		}
	case ActivityPlaying, ActivityPaused, ActivityBufferUnderrun:
		// Already active: the track was queued during prepare, and a
		// REPLACE_ALL stop above continues into it once the backend stops.
	}
}

// playNext advances to the head of the waiting queue and starts it. A track
// whose prebuffer failed is reported and skipped without ever being played.
func (p *Player) playNext() {
	zlog.Debug().Msgf("play next: queued=%d", len(p.queue))
	p.timer.Stop()
	if len(p.queue) == 0 {
		zlog.Error().Msgf("play next failed: queue empty")
		p.sendPlaybackFailed(p.current.item.Stream.Token, audio.ErrorInternalDeviceError, "queue is empty")
		p.executeStop(false)
		return
	}

	next := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]

	p.releasePlayer(p.current)
	p.current = next
	next.initialOffset = next.item.Stream.Offset
	p.offset = next.initialOffset

	if next.player == nil && p.deps.Factory.Available() {
		if !p.configurePlayer(next) {
			return
		}
	}
	if next.player == nil {
		zlog.Error().Msgf("play next failed: no backend: token=%s", next.item.Stream.Token)
		p.sendPlaybackFailed(next.item.Stream.Token, audio.ErrorInternalDeviceError, "no backend available")
		return
	}

	if next.errorMsg != "" {
		// The backend failed while this track was prebuffering. Report it
		// now that the track would have played, and move on.
		zlog.Error().Msgf("play next: deferred error: token=%s: %s", next.item.Stream.Token, next.errorMsg)
		p.sendPlaybackFailed(next.item.Stream.Token, next.errorType, next.errorMsg)
		p.releasePlayer(next)
		if len(p.queue) > 0 {
			p.playNext()
		} else {
			p.changeActivity(ActivityIdle)
			p.handlePlaybackCompleted()
		}
		return
	}

	zlog.Debug().Msgf("playing: sourceId=%d token=%s", next.sourceID, next.item.Stream.Token)
	if err := next.player.Play(next.sourceID); err != nil {
		zlog.Error().Msgf("play request failed: sourceId=%d: %v", next.sourceID, err)
		p.sendPlaybackFailed(next.item.Stream.Token, audio.ErrorInternalDeviceError, "play request failed")
		p.okToRequestNextTrack = false
		p.executeOnStopped(next.sourceID)
		return
	}

	p.timer.Reset(next.item.Stream.ProgressReport.Delay, next.item.Stream.ProgressReport.Interval, next.initialOffset)
}

func (p *Player) executeStop(playNext bool) {
	zlog.Debug().Msgf("stop: playNext=%v activity=%s sourceId=%d", playNext, p.activity, p.current.sourceID)
	switch p.activity {
	case ActivityIdle, ActivityStopped, ActivityFinished:
		return
	case ActivityPlaying, ActivityPaused, ActivityBufferUnderrun:
		// Cache the offset while the backend can still report it.
		p.getOffset()
		p.playNextAfterStopped = playNext
		if p.current.player == nil {
			return
		}
		if err := p.current.player.Stop(p.current.sourceID); err != nil {
			zlog.Error().Msgf("stop failed: sourceId=%d: %v", p.current.sourceID, err)
		} else {
			p.stopCalled = true
		}
	}
}

func (p *Player) executeClearQueue(behavior audio.ClearBehavior) {
	zlog.Debug().Msgf("clear queue: behavior=%s queued=%d", behavior, len(p.queue))
	if behavior == audio.ClearBehaviorClearAll {
		p.executeStop(false)
	}
	p.clearWaitingQueue()
	p.sendPlaybackQueueCleared()
}

// executeCancel drops the not-yet-executed directive's queued track. An
// in-flight backend load is not interrupted; its slot is simply returned.
func (p *Player) executeCancel(messageID string) {
	for i, it := range p.queue {
		if it.messageID == messageID {
			zlog.Debug().Msgf("canceled queued item: messageId=%s token=%s", messageID, it.item.Stream.Token)
			p.releasePlayer(it)
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

func (p *Player) executeOnFocusChanged(state focus.State) {
	zlog.Debug().Msgf("focus: %s -> %s activity=%s", p.focusState, state, p.activity)
	if p.focusState == state {
		return
	}
	p.focusState = state

	switch state {
	case focus.StateForeground:
		switch p.activity {
		case ActivityIdle, ActivityStopped, ActivityFinished:
			if len(p.queue) > 0 {
				p.playNext()
			}
		case ActivityPaused:
			if p.stopCalled {
				// The current track is being stopped; do not resume it.
				return
			}
			if err := p.current.player.Resume(p.current.sourceID); err != nil {
				zlog.Error().Msgf("resume failed: sourceId=%d: %v", p.current.sourceID, err)
				p.sendPlaybackFailed(p.current.item.Stream.Token, audio.ErrorInternalDeviceError,
					"failed to resume backend")
				p.deps.Focus.Release(p.cfg.ChannelName, p)
			}
		case ActivityPlaying, ActivityBufferUnderrun:
			zlog.Warn().Msgf("unexpected focus change: already playing")
		}
	case focus.StateBackground:
		if p.activity == ActivityStopped && p.playNextAfterStopped && len(p.queue) > 0 {
			// Was about to continue to the next track; backgrounding blocks
			// that until the channel is foregrounded again.
			p.playNextAfterStopped = false
			return
		}
		// Pause whatever may be running. The backend may still be starting
		// up, so a pause rejection here is not an error.
		if p.current.player != nil {
			if err := p.current.player.Pause(p.current.sourceID); err != nil {
				zlog.Debug().Msgf("pause request ignored: sourceId=%d: %v", p.current.sourceID, err)
			}
		}
	case focus.StateNone:
		switch p.activity {
		case ActivityIdle, ActivityStopped, ActivityFinished:
			// Already inactive; releasing the channel caused this callback.
		case ActivityPlaying, ActivityPaused, ActivityBufferUnderrun:
			p.clearWaitingQueue()
			p.executeStop(false)
		}
	}
}

func (p *Player) executeOnStarted(id media.SourceID) {
	zlog.Debug().Msgf("started: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("started callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}

	// Focus can be lost between the play request and this callback.
	if p.focusState == focus.StateNone {
		zlog.Warn().Msgf("started after focus lost: stopping: sourceId=%d", id)
		if err := p.current.player.Stop(id); err != nil {
			zlog.Error().Msgf("stop failed: sourceId=%d: %v", id, err)
		}
		return
	}

	// Send before the activity change so the reported offset is as close as
	// possible to the moment playback started.
	p.sendPlaybackStarted()

	p.deps.Router.SwitchToDefaultHandler()
	p.changeActivity(ActivityPlaying)
	p.timer.Start()

	if p.deps.Factory.Available() {
		p.sendEventWithTokenAndOffset(eventPlaybackNearlyFinished)
	} else {
		p.okToRequestNextTrack = true
	}
}

func (p *Player) executeOnStopped(id media.SourceID) {
	zlog.Debug().Msgf("stopped: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("stopped callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}

	switch p.activity {
	case ActivityPlaying, ActivityPaused, ActivityBufferUnderrun:
		p.changeActivity(ActivityStopped)
		p.timer.Stop()
		p.sendEventWithTokenAndOffset(eventPlaybackStopped)
		p.okToRequestNextTrack = false
		p.stopCalled = false
		if !p.playNextAfterStopped || len(p.queue) == 0 {
			p.handlePlaybackCompleted()
		} else if p.focusState == focus.StateForeground {
			p.playNext()
		}
	case ActivityIdle, ActivityStopped, ActivityFinished:
		// Playback failed before it started; focus still needs releasing.
		if p.focusState != focus.StateNone {
			p.handlePlaybackCompleted()
			return
		}
		zlog.Error().Msgf("stopped callback ignored: already inactive: activity=%s", p.activity)
	}
}

func (p *Player) executeOnFinished(id media.SourceID) {
	zlog.Debug().Msgf("finished: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("finished callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}
	if p.activity != ActivityPlaying {
		zlog.Error().Msgf("finished callback ignored: not playing: activity=%s", p.activity)
		return
	}

	p.changeActivity(ActivityFinished)
	p.timer.Stop()

	if len(p.queue) == 0 {
		p.releasePlayer(p.current)
	}

	// Releasing above may have queued a ready-notification task that sends
	// PlaybackNearlyFinished. Submitting the rest keeps PlaybackFinished
	// after it.
	p.submit(func() {
		p.sendEventWithTokenAndOffset(eventPlaybackFinished)
		p.okToRequestNextTrack = false
		if len(p.queue) == 0 {
			p.changeActivity(ActivityIdle)
			p.handlePlaybackCompleted()
		} else {
			p.playNext()
		}
	})
}

func (p *Player) executeOnError(id media.SourceID, errorType audio.ErrorType, message string) {
	zlog.Error().Msgf("playback error: sourceId=%d type=%s: %s", id, errorType, message)

	if id != p.current.sourceID {
		for _, it := range p.queue {
			if it.sourceID == id {
				// Prebuffer failure: hold the report until the track would
				// have played.
				it.errorType = errorType
				it.errorMsg = message
				zlog.Warn().Msgf("error while buffering: sourceId=%d token=%s", id, it.item.Stream.Token)
				return
			}
		}
		zlog.Error().Msgf("error callback ignored: unknown sourceId=%d", id)
		return
	}

	p.okToRequestNextTrack = false
	p.timer.Stop()
	switch p.activity {
	case ActivityPlaying, ActivityPaused, ActivityBufferUnderrun:
		p.sendPlaybackFailed(p.current.item.Stream.Token, errorType, message)
	default:
		// A stop raced the error callback; reporting the error now would
		// make the service queue up a replacement track.
		zlog.Warn().Msgf("playback error suppressed: activity=%s", p.activity)
	}
	p.executeOnStopped(p.current.sourceID)
}

func (p *Player) executeOnPaused(id media.SourceID) {
	zlog.Debug().Msgf("paused: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("paused callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}
	p.timer.Pause()
	p.sendEventWithTokenAndOffset(eventPlaybackPaused)
	p.changeActivity(ActivityPaused)
}

func (p *Player) executeOnResumed(id media.SourceID) {
	zlog.Debug().Msgf("resumed: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("resumed callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}
	if p.activity == ActivityStopped {
		zlog.Error().Msgf("resumed callback ignored: already stopped")
		return
	}
	p.sendEventWithTokenAndOffset(eventPlaybackResumed)
	p.timer.Resume()
	p.changeActivity(ActivityPlaying)
}

func (p *Player) executeOnUnderrun(id media.SourceID) {
	zlog.Debug().Msgf("buffer underrun: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("underrun callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}
	if p.activity == ActivityBufferUnderrun {
		zlog.Error().Msgf("underrun callback ignored: already in underrun")
		return
	}
	p.underrunSince = time.Now()
	p.sendEventWithTokenAndOffset(eventPlaybackStutterStarted)
	// Media time is not advancing while the buffer refills.
	p.timer.Pause()
	p.changeActivity(ActivityBufferUnderrun)
}

func (p *Player) executeOnRefilled(id media.SourceID) {
	zlog.Debug().Msgf("buffer refilled: sourceId=%d", id)
	if id != p.current.sourceID {
		zlog.Error().Msgf("refilled callback ignored: sourceId=%d current=%d", id, p.current.sourceID)
		return
	}
	p.sendPlaybackStutterFinished()
	p.timer.Resume()
	p.changeActivity(ActivityPlaying)
}

func (p *Player) executeOnTags(id media.SourceID, tags []audio.Tag) {
	zlog.Debug().Msgf("tags: sourceId=%d count=%d", id, len(tags))
	if id == p.current.sourceID {
		p.sendStreamMetadataExtracted(p.current.item.Stream.Token, tags)
		return
	}
	for _, it := range p.queue {
		if it.sourceID == id {
			p.sendStreamMetadataExtracted(it.item.Stream.Token, tags)
			return
		}
	}
	zlog.Error().Msgf("tags callback ignored: unknown sourceId=%d", id)
}

// executeOnReadyToProvideNextPlayer reacts to a backend slot becoming free:
// either ask the service for the next track or hand the slot to the first
// queued track still waiting for one.
func (p *Player) executeOnReadyToProvideNextPlayer() {
	zlog.Debug().Msgf("backend slot available: queued=%d", len(p.queue))
	if !p.deps.Factory.Available() {
		return
	}
	if len(p.queue) == 0 && p.okToRequestNextTrack {
		p.sendEventWithTokenAndOffset(eventPlaybackNearlyFinished)
		p.okToRequestNextTrack = false
		return
	}
	for _, it := range p.queue {
		if it.player == nil {
			zlog.Info().Msgf("assigning backend to queued item: token=%s", it.item.Stream.Token)
			p.configurePlayer(it)
			break
		}
	}
}

func (p *Player) executeProvideState(requestToken uint32) {
	snap := p.buildSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		zlog.Error().Msgf("state marshal failed: %v", err)
		return
	}
	if err := p.deps.Reporter.SetState(data, RefreshNever, requestToken); err != nil {
		zlog.Error().Msgf("state report failed: token=%s: %v", snap.Token, err)
	}
}

func (p *Player) buildSnapshot() Snapshot {
	return Snapshot{
		Token:                p.current.item.Stream.Token,
		OffsetInMilliseconds: p.getOffset().Milliseconds(),
		PlayerActivity:       p.activity.String(),
	}
}

func (p *Player) changeActivity(activity Activity) {
	zlog.Debug().Msgf("activity: %s -> %s", p.activity, activity)
	p.activity = activity
	p.executeProvideState(0)
	p.notifyActivityObservers()
}

func (p *Player) notifyActivityObservers() {
	ctx := Context{AudioItemID: p.current.item.ID, Offset: p.getOffset()}
	for _, o := range p.observers {
		o.OnPlayerActivityChanged(p.activity, ctx)
	}
}

// getOffset refreshes the cached offset from the backend while one is bound
// and reports the cache otherwise, so events sent after a track's backend is
// gone still carry its last position.
func (p *Player) getOffset() time.Duration {
	if p.current.player != nil && p.current.sourceID != media.ErrorSourceID {
		if off, ok := p.current.player.Offset(p.current.sourceID); ok {
			p.offset = off
		}
	}
	return p.offset
}

func (p *Player) handlePlaybackCompleted() {
	p.timer.Stop()
	if p.focusState != focus.StateNone {
		p.deps.Focus.Release(p.cfg.ChannelName, p)
	}
}

// configurePlayer binds a pooled backend to the item and starts loading its
// stream. It reports false when no backend could be bound.
func (p *Player) configurePlayer(it *playItem) bool {
	if it.player != nil {
		return true
	}
	backend, err := p.deps.Factory.Acquire()
	if err != nil {
		zlog.Error().Msgf("configure failed: acquire: %v", err)
		return false
	}
	id, err := backend.Load(it.item.Stream.URL, it.item.Stream.Offset)
	if err != nil {
		zlog.Error().Msgf("configure failed: load: url=%s: %v", it.item.Stream.URL, err)
		p.sendPlaybackFailed(it.item.Stream.Token, audio.ErrorInternalDeviceError, "failed to load media source")
		if rerr := p.deps.Factory.Release(backend); rerr != nil {
			zlog.Error().Msgf("release failed: %v", rerr)
		}
		return false
	}
	it.player = backend
	it.sourceID = id
	backend.AddObserver(p)
	zlog.Debug().Msgf("configured backend: sourceId=%d audioItemId=%s", id, it.item.ID)
	return true
}

func (p *Player) releasePlayer(it *playItem) {
	if it.player == nil {
		return
	}
	zlog.Debug().Msgf("releasing backend: sourceId=%d", it.sourceID)
	it.player.RemoveObserver(p)
	if err := p.deps.Factory.Release(it.player); err != nil {
		zlog.Error().Msgf("release failed: sourceId=%d: %v", it.sourceID, err)
	}
	it.player = nil
	it.sourceID = media.ErrorSourceID
}

func (p *Player) clearWaitingQueue() {
	for _, it := range p.queue {
		p.releasePlayer(it)
	}
	p.queue = nil
}

func (p *Player) messageIDInQueue(messageID string) bool {
	for _, it := range p.queue {
		if it.messageID == messageID {
			return true
		}
	}
	return false
}
