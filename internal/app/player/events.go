package player

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
)

// Outbound event names.
const (
	eventPlaybackStarted               = "PlaybackStarted"
	eventPlaybackNearlyFinished        = "PlaybackNearlyFinished"
	eventPlaybackStutterStarted        = "PlaybackStutterStarted"
	eventPlaybackStutterFinished       = "PlaybackStutterFinished"
	eventPlaybackFinished              = "PlaybackFinished"
	eventPlaybackStopped               = "PlaybackStopped"
	eventPlaybackPaused                = "PlaybackPaused"
	eventPlaybackResumed               = "PlaybackResumed"
	eventPlaybackFailed                = "PlaybackFailed"
	eventPlaybackQueueCleared          = "PlaybackQueueCleared"
	eventProgressReportDelayElapsed    = "ProgressReportDelayElapsed"
	eventProgressReportIntervalElapsed = "ProgressReportIntervalElapsed"
	eventStreamMetadataExtracted       = "StreamMetadataExtracted"
)

type eventEnvelope struct {
	Event eventBody `json:"event"`
}

type eventBody struct {
	Header  eventHeader     `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

type eventHeader struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	MessageID string `json:"messageId"`
}

type tokenOffsetPayload struct {
	Token                string `json:"token"`
	OffsetInMilliseconds int64  `json:"offsetInMilliseconds"`
}

type stutterFinishedPayload struct {
	Token                         string `json:"token"`
	OffsetInMilliseconds          int64  `json:"offsetInMilliseconds"`
	StutterDurationInMilliseconds int64  `json:"stutterDurationInMilliseconds"`
}

type playbackFailedPayload struct {
	Token                string        `json:"token"`
	CurrentPlaybackState playbackState `json:"currentPlaybackState"`
	Error                errorDetail   `json:"error"`
}

type playbackState struct {
	Token                string `json:"token"`
	OffsetInMilliseconds int64  `json:"offsetInMilliseconds"`
	PlayerActivity       string `json:"playerActivity"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type metadataPayload struct {
	Token    string         `json:"token"`
	Metadata map[string]any `json:"metadata"`
}

// sendEvent wraps payload in the event envelope and passes it to the message
// sender. Runs on the processing queue, like everything that reads playback
// state.
func (p *Player) sendEvent(name string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		zlog.Error().Msgf("event payload marshal failed: name=%s: %v", name, err)
		return
	}
	env := eventEnvelope{Event: eventBody{
		Header:  eventHeader{Namespace: Namespace, Name: name, MessageID: uuid.NewString()},
		Payload: body,
	}}
	data, err := json.Marshal(env)
	if err != nil {
		zlog.Error().Msgf("event marshal failed: name=%s: %v", name, err)
		return
	}
	zlog.Debug().Msgf("sending event: name=%s", name)
	p.deps.Sender.SendMessage(Message{Name: name, JSON: data})
}

// sendEventWithTokenAndOffset sends an event carrying the current track's
// token and live offset.
func (p *Player) sendEventWithTokenAndOffset(name string) {
	p.sendEvent(name, tokenOffsetPayload{
		Token:                p.current.item.Stream.Token,
		OffsetInMilliseconds: p.getOffset().Milliseconds(),
	})
}

// sendPlaybackStarted reports the offset playback actually started from, not
// the live position.
func (p *Player) sendPlaybackStarted() {
	p.sendEvent(eventPlaybackStarted, tokenOffsetPayload{
		Token:                p.current.item.Stream.Token,
		OffsetInMilliseconds: p.current.initialOffset.Milliseconds(),
	})
}

func (p *Player) sendPlaybackStutterFinished() {
	p.sendEvent(eventPlaybackStutterFinished, stutterFinishedPayload{
		Token:                         p.current.item.Stream.Token,
		OffsetInMilliseconds:          p.getOffset().Milliseconds(),
		StutterDurationInMilliseconds: time.Since(p.underrunSince).Milliseconds(),
	})
}

// sendPlaybackFailed reports failingToken's failure along with the state of
// whatever is currently playing, which is not necessarily the same track.
func (p *Player) sendPlaybackFailed(failingToken string, errorType audio.ErrorType, message string) {
	p.sendEvent(eventPlaybackFailed, playbackFailedPayload{
		Token: failingToken,
		CurrentPlaybackState: playbackState{
			Token:                p.current.item.Stream.Token,
			OffsetInMilliseconds: p.getOffset().Milliseconds(),
			PlayerActivity:       p.activity.String(),
		},
		Error: errorDetail{Type: string(errorType), Message: message},
	})
}

func (p *Player) sendPlaybackQueueCleared() {
	p.sendEvent(eventPlaybackQueueCleared, struct{}{})
}

func (p *Player) sendStreamMetadataExtracted(token string, tags []audio.Tag) {
	metadata := make(map[string]any, len(tags))
	for _, tag := range tags {
		metadata[tag.Key] = tag.JSONValue()
	}
	p.sendEvent(eventStreamMetadataExtracted, metadataPayload{Token: token, Metadata: metadata})
}
