package player

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
	"github.com/ariavoice/audioplayer/internal/focus"
	"github.com/ariavoice/audioplayer/internal/media/mediatest"
)

func TestReplaceAllStopsCurrentAndPlaysNew(t *testing.T) {
	h := newHarness(t, 1)

	b, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorReplaceAll,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	awaitCall(t, b, mediatest.CallStop)
	b.FireStopped(id1)
	stopped := h.expectEvent(eventPlaybackStopped)
	assert.Equal(t, "token-1", stopped["token"])

	load := awaitCall(t, b, mediatest.CallLoad)
	assert.Equal(t, "https://stream.example/two", load.URL)
	play := awaitCall(t, b, mediatest.CallPlay)
	b.FireStarted(play.SourceID)
	started := h.expectEvent(eventPlaybackStarted)
	assert.Equal(t, "token-2", started["token"])
}

// REPLACE_ENQUEUED discards the waiting queue but never touches the active
// track: the dropped item's backend moves to the replacement while playback
// continues.
func TestReplaceEnqueuedKeepsCurrentDropsQueued(t *testing.T) {
	h := newHarness(t, 2)

	b1, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	_, load2 := h.awaitLoad()
	assert.Equal(t, "https://stream.example/two", load2.URL)

	res := h.play("msg-3", trackSpec{
		behavior: audio.PlayBehaviorReplaceEnqueued,
		id:       "item-3",
		url:      "https://stream.example/three",
		token:    "token-3",
	})
	res.await(t)
	assert.True(t, res.isCompleted())

	b3, load3 := h.awaitLoad()
	assert.Equal(t, "https://stream.example/three", load3.URL)
	expectNoCall(t, b1, 100*time.Millisecond)
	h.expectNoEvent(100 * time.Millisecond)

	b1.FireFinished(id1)
	h.expectEvent(eventPlaybackFinished)
	play3 := awaitCall(t, b3, mediatest.CallPlay)
	require.Equal(t, load3.SourceID, play3.SourceID)
	b3.FireStarted(play3.SourceID)
	started := h.expectEvent(eventPlaybackStarted)
	assert.Equal(t, "token-3", started["token"])
	h.expectEvent(eventPlaybackNearlyFinished)
}

// With a single backend the spare-player notification can only fire once the
// last track has released it, so PlaybackNearlyFinished precedes the final
// PlaybackFinished and never shows up between tracks.
func TestSingleBackendChainEventOrder(t *testing.T) {
	h := newHarness(t, 1)

	b, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})

	b.FireFinished(id1)
	h.expectEvent(eventPlaybackFinished)

	// The backend cycles straight into the queued track.
	load2 := awaitCall(t, b, mediatest.CallLoad)
	play2 := awaitCall(t, b, mediatest.CallPlay)
	require.Equal(t, load2.SourceID, play2.SourceID)
	b.FireStarted(play2.SourceID)
	started := h.expectEvent(eventPlaybackStarted)
	assert.Equal(t, "token-2", started["token"])

	b.FireFinished(play2.SourceID)
	nearly := h.expectEvent(eventPlaybackNearlyFinished)
	assert.Equal(t, "token-2", nearly["token"])
	h.expectEvent(eventPlaybackFinished)
	h.awaitFocusRequest("release")

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityIdle.String(), snap.PlayerActivity)
	assert.Equal(t, "token-2", snap.Token)
}

// Every queued track is played to completion in order no matter how many
// backends the pool holds; only the load timing differs.
func TestQueueChainCompletesEachTrack(t *testing.T) {
	for _, poolSize := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("pool%d", poolSize), func(t *testing.T) {
			h := newHarness(t, poolSize)
			obs := &fakeActivityObserver{changes: make(chan activityChange, 32)}
			h.agent.AddActivityObserver(obs)

			// The backend playing the next track depends on the pool size;
			// scan for the play call and skip the incidental prebuffer loads.
			awaitPlayAnywhere := func() (*mediatest.Player, mediatest.Call) {
				t.Helper()
				deadline := time.Now().Add(waitTimeout)
				for time.Now().Before(deadline) {
					for _, backend := range h.backends {
						select {
						case c := <-backend.Calls:
							if c.Kind == mediatest.CallPlay {
								return backend, c
							}
						default:
						}
					}
					time.Sleep(time.Millisecond)
				}
				t.Fatal("timed out waiting for play")
				return nil, mediatest.Call{}
			}

			cur, curSrc := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/1", token: "token-1"})
			change := obs.await(t)
			require.Equal(t, ActivityPlaying, change.activity)

			for i := 2; i <= 4; i++ {
				h.play(fmt.Sprintf("msg-%d", i), trackSpec{
					behavior: audio.PlayBehaviorEnqueue,
					id:       fmt.Sprintf("item-%d", i),
					url:      fmt.Sprintf("https://stream.example/%d", i),
					token:    fmt.Sprintf("token-%d", i),
				})
			}

			for i := 2; i <= 4; i++ {
				cur.FireFinished(curSrc)
				change = obs.await(t)
				require.Equal(t, ActivityFinished, change.activity)

				next, play := awaitPlayAnywhere()
				next.FireStarted(play.SourceID)
				change = obs.await(t)
				require.Equal(t, ActivityPlaying, change.activity)
				require.Equal(t, fmt.Sprintf("item-%d", i), change.ctx.AudioItemID)
				cur, curSrc = next, play.SourceID
			}

			cur.FireFinished(curSrc)
			change = obs.await(t)
			require.Equal(t, ActivityFinished, change.activity)
			change = obs.await(t)
			require.Equal(t, ActivityIdle, change.activity)
			h.awaitFocusRequest("release")

			snap, err := h.agent.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, ActivityIdle.String(), snap.PlayerActivity)
			assert.Equal(t, "token-4", snap.Token)
		})
	}
}

// With a spare backend the notification already fired after start, so track
// completion emits PlaybackFinished alone.
func TestSpareBackendSendsNearlyFinishedAfterStart(t *testing.T) {
	h := newHarness(t, 2)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	nearly := h.expectEvent(eventPlaybackNearlyFinished)
	assert.Equal(t, "token-1", nearly["token"])

	b.FireFinished(id)
	h.expectEvent(eventPlaybackFinished)
	h.expectNoEvent(100 * time.Millisecond)
}

func TestPrebufferErrorReportedWhenTrackIsReached(t *testing.T) {
	h := newHarness(t, 2)

	b1, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	b2, load2 := h.awaitLoad()

	// The prebuffering backend fails before the track is reached. Nothing
	// is reported yet; the failure belongs to a track that has not played.
	b2.FireError(load2.SourceID, audio.ErrorServiceUnavailable, "stream gone")
	h.expectNoEvent(100 * time.Millisecond)

	b1.FireFinished(id1)
	h.expectEvent(eventPlaybackFinished)
	failed := h.expectEvent(eventPlaybackFailed)
	assert.Equal(t, "token-2", failed["token"])
	errDetail, ok := failed["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(audio.ErrorServiceUnavailable), errDetail["type"])
	assert.Equal(t, "stream gone", errDetail["message"])
	h.awaitFocusRequest("release")

	// The errored track is skipped without ever being played.
	expectNoCall(t, b2, 50*time.Millisecond)

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityIdle.String(), snap.PlayerActivity)
}

func TestLiveErrorReportsFailureAndStops(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	b.FireError(id, audio.ErrorUnknown, "decoder died")
	failed := h.expectEvent(eventPlaybackFailed)
	assert.Equal(t, "token-1", failed["token"])
	state, ok := failed["currentPlaybackState"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ActivityPlaying.String(), state["playerActivity"])
	errDetail, ok := failed["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(audio.ErrorUnknown), errDetail["type"])
	assert.Equal(t, "decoder died", errDetail["message"])

	h.expectEvent(eventPlaybackStopped)
	h.awaitFocusRequest("release")
}

func TestErrorAfterStopSuppressed(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.stopDirective("msg-2")
	awaitCall(t, b, mediatest.CallStop)
	b.FireStopped(id)
	h.expectEvent(eventPlaybackStopped)
	h.awaitFocusRequest("release")
	h.agent.OnFocusChanged(focus.StateNone)

	// A late error from the torn-down pipeline must not surface as a
	// PlaybackFailed, or the service would queue a replacement track.
	b.FireError(id, audio.ErrorUnknown, "pipeline collapsed")
	h.expectNoEvent(100 * time.Millisecond)
}

func TestClearQueueClearAllStopsPlayback(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.clearQueue("msg-2", audio.ClearBehaviorClearAll)
	h.expectEvent(eventPlaybackQueueCleared)
	awaitCall(t, b, mediatest.CallStop)
	b.FireStopped(id)
	h.expectEvent(eventPlaybackStopped)
	h.awaitFocusRequest("release")

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityStopped.String(), snap.PlayerActivity)
}

func TestClearQueueClearEnqueuedKeepsPlaying(t *testing.T) {
	h := newHarness(t, 2)

	b1, _ := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	b2, _ := h.awaitLoad()

	h.clearQueue("msg-3", audio.ClearBehaviorClearEnqueued)
	h.expectEvent(eventPlaybackQueueCleared)

	expectNoCall(t, b1, 50*time.Millisecond)
	expectNoCall(t, b2, 50*time.Millisecond)

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityPlaying.String(), snap.PlayerActivity)
	assert.Equal(t, "token-1", snap.Token)
}

func TestFocusBackgroundPausesForegroundResumes(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.agent.OnFocusChanged(focus.StateBackground)
	awaitCall(t, b, mediatest.CallPause)
	b.FirePaused(id)
	paused := h.expectEvent(eventPlaybackPaused)
	assert.Equal(t, "token-1", paused["token"])

	h.agent.OnFocusChanged(focus.StateForeground)
	awaitCall(t, b, mediatest.CallResume)
	b.FireResumed(id)
	h.expectEvent(eventPlaybackResumed)

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityPlaying.String(), snap.PlayerActivity)
}

func TestResumeFailureReportsAndReleasesChannel(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.agent.OnFocusChanged(focus.StateBackground)
	awaitCall(t, b, mediatest.CallPause)
	b.FirePaused(id)
	h.expectEvent(eventPlaybackPaused)

	b.ResumeErr = assert.AnError
	h.agent.OnFocusChanged(focus.StateForeground)
	failed := h.expectEvent(eventPlaybackFailed)
	assert.Equal(t, "token-1", failed["token"])
	h.awaitFocusRequest("release")
}

func TestFocusNoneStopsAndClearsQueue(t *testing.T) {
	h := newHarness(t, 2)

	b1, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	b2, _ := h.awaitLoad()

	h.agent.OnFocusChanged(focus.StateNone)
	awaitCall(t, b1, mediatest.CallStop)
	b1.FireStopped(id1)
	h.expectEvent(eventPlaybackStopped)

	// The queued track is dropped, not started.
	expectNoCall(t, b2, 50*time.Millisecond)
}

// Focus can be yanked between the play request and the started callback. The
// track is stopped without ever reporting PlaybackStarted.
func TestFocusLostBeforeStartedStopsQuietly(t *testing.T) {
	h := newHarness(t, 1)

	h.play("msg-1", trackSpec{
		behavior: audio.PlayBehaviorReplaceAll,
		id:       "item-1",
		url:      "https://stream.example/one",
		token:    "token-1",
	})
	b, load := h.awaitLoad()
	h.awaitFocusRequest("acquire")
	h.agent.OnFocusChanged(focus.StateForeground)
	awaitCall(t, b, mediatest.CallPlay)

	h.agent.OnFocusChanged(focus.StateNone)
	b.FireStarted(load.SourceID)

	awaitCall(t, b, mediatest.CallStop)
	h.expectNoEvent(100 * time.Millisecond)
}

// A replacement directive that lands while the channel is backgrounded waits
// in the queue until the channel is foregrounded again.
func TestReplacementWaitsWhileBackgrounded(t *testing.T) {
	h := newHarness(t, 1)

	b, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorReplaceAll,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	awaitCall(t, b, mediatest.CallStop)

	h.agent.OnFocusChanged(focus.StateBackground)
	awaitCall(t, b, mediatest.CallPause)

	b.FireStopped(id1)
	h.expectEvent(eventPlaybackStopped)
	expectNoCall(t, b, 50*time.Millisecond)

	h.agent.OnFocusChanged(focus.StateForeground)
	load2 := awaitCall(t, b, mediatest.CallLoad)
	assert.Equal(t, "https://stream.example/two", load2.URL)
	play2 := awaitCall(t, b, mediatest.CallPlay)
	b.FireStarted(play2.SourceID)
	started := h.expectEvent(eventPlaybackStarted)
	assert.Equal(t, "token-2", started["token"])
}

func TestStutterEventsCarryDuration(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	b.FireUnderrun(id)
	stutter := h.expectEvent(eventPlaybackStutterStarted)
	assert.Equal(t, "token-1", stutter["token"])

	// A repeated underrun while already stuttering is not reported again.
	b.FireUnderrun(id)
	h.expectNoEvent(50 * time.Millisecond)

	b.FireRefilled(id)
	finished := h.expectEvent(eventPlaybackStutterFinished)
	duration, ok := finished["stutterDurationInMilliseconds"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, duration, float64(0))

	snap, err := h.agent.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ActivityPlaying.String(), snap.PlayerActivity)
}

func TestTagsReportedForCurrentAndQueued(t *testing.T) {
	h := newHarness(t, 2)

	b1, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	b2, load2 := h.awaitLoad()

	b1.FireTags(id1, []audio.Tag{
		{Key: "title", Value: "First", Type: audio.TagString},
		{Key: "explicit", Value: "false", Type: audio.TagBoolean},
	})
	meta := h.expectEvent(eventStreamMetadataExtracted)
	assert.Equal(t, "token-1", meta["token"])
	fields, ok := meta["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "First", fields["title"])
	assert.Equal(t, false, fields["explicit"])

	// Tags from a prebuffering backend are reported against its own track.
	b2.FireTags(load2.SourceID, []audio.Tag{{Key: "title", Value: "Second", Type: audio.TagString}})
	meta2 := h.expectEvent(eventStreamMetadataExtracted)
	assert.Equal(t, "token-2", meta2["token"])
}

func TestProgressReportsFireAfterDelayAndInterval(t *testing.T) {
	h := newHarness(t, 1)

	h.startPlaying("msg-1", trackSpec{
		id:         "item-1",
		url:        "https://stream.example/one",
		token:      "token-1",
		delayMs:    20,
		intervalMs: 80,
	})

	delay := h.expectEvent(eventProgressReportDelayElapsed)
	assert.Equal(t, "token-1", delay["token"])
	interval := h.expectEvent(eventProgressReportIntervalElapsed)
	assert.Equal(t, "token-1", interval["token"])
}

// A REPLACE_ALL that names content already prebuffered in the queue takes
// over its backend rather than loading the stream a second time.
func TestReplacingDirectiveAdoptsBufferedTrack(t *testing.T) {
	h := newHarness(t, 2)

	b1, id1 := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	h.expectEvent(eventPlaybackNearlyFinished)

	h.play("msg-2", trackSpec{
		behavior: audio.PlayBehaviorEnqueue,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2",
	})
	b2, load2 := h.awaitLoad()

	h.play("msg-3", trackSpec{
		behavior: audio.PlayBehaviorReplaceAll,
		id:       "item-2",
		url:      "https://stream.example/two",
		token:    "token-2b",
	})
	awaitCall(t, b1, mediatest.CallStop)
	b1.FireStopped(id1)
	h.expectEvent(eventPlaybackStopped)

	// No second load: the adopted backend goes straight to play with the
	// source it already buffered.
	play := awaitCall(t, b2, mediatest.CallPlay)
	assert.Equal(t, load2.SourceID, play.SourceID)
	b2.FireStarted(play.SourceID)
	started := h.expectEvent(eventPlaybackStarted)
	assert.Equal(t, "token-2b", started["token"])
}

func TestOffsetReportsLivePosition(t *testing.T) {
	h := newHarness(t, 1)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	b.SetOffset(id, 1234*time.Millisecond)

	assert.Equal(t, 1234*time.Millisecond, h.agent.Offset())
}

type activityChange struct {
	activity Activity
	ctx      Context
}

type fakeActivityObserver struct {
	changes chan activityChange
}

func (o *fakeActivityObserver) OnPlayerActivityChanged(a Activity, ctx Context) {
	o.changes <- activityChange{activity: a, ctx: ctx}
}

func (o *fakeActivityObserver) await(t *testing.T) activityChange {
	t.Helper()
	select {
	case c := <-o.changes:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no activity change")
		return activityChange{}
	}
}

func TestActivityObserverSeesTransitions(t *testing.T) {
	h := newHarness(t, 1)

	obs := &fakeActivityObserver{changes: make(chan activityChange, 16)}
	h.agent.AddActivityObserver(obs)

	b, id := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})
	change := obs.await(t)
	assert.Equal(t, ActivityPlaying, change.activity)
	assert.Equal(t, "item-1", change.ctx.AudioItemID)

	h.stopDirective("msg-2")
	awaitCall(t, b, mediatest.CallStop)
	b.FireStopped(id)
	change = obs.await(t)
	assert.Equal(t, ActivityStopped, change.activity)

	h.agent.RemoveActivityObserver(obs)
}

func TestShutdownStopsPlaybackAndReleasesFocus(t *testing.T) {
	h := newHarness(t, 1)

	b, _ := h.startPlaying("msg-1", trackSpec{id: "item-1", url: "https://stream.example/one", token: "token-1"})

	h.agent.Shutdown()
	awaitCall(t, b, mediatest.CallStop)
	h.awaitFocusRequest("release")

	assert.Equal(t, time.Duration(0), h.agent.Offset())
}
