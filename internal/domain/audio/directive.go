package audio

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrMalformedPayload     = errors.New("malformed directive payload")
	ErrMissingAudioItem     = errors.New("payload has no audioItem")
	ErrMissingStream        = errors.New("audioItem has no stream")
	ErrMissingURL           = errors.New("stream has no url")
	ErrUnknownPlayBehavior  = errors.New("unknown playBehavior")
	ErrUnknownStreamFormat  = errors.New("unknown streamFormat")
	ErrUnknownClearBehavior = errors.New("unknown clearBehavior")
	ErrNegativeOffset       = errors.New("negative offsetInMilliseconds")
)

// AnonymousID is substituted when a Play directive carries no audioItemId.
const AnonymousID = "anonymous"

type playPayload struct {
	PlayBehavior *string      `json:"playBehavior"`
	AudioItem    *payloadItem `json:"audioItem"`
}

type payloadItem struct {
	AudioItemID string         `json:"audioItemId"`
	Stream      *payloadStream `json:"stream"`
}

type payloadStream struct {
	URL                   string           `json:"url"`
	StreamFormat          *string          `json:"streamFormat"`
	OffsetInMilliseconds  int64            `json:"offsetInMilliseconds"`
	ExpiryTime            string           `json:"expiryTime"`
	ProgressReport        *payloadProgress `json:"progressReport"`
	Token                 string           `json:"token"`
	ExpectedPreviousToken string           `json:"expectedPreviousToken"`
}

type payloadProgress struct {
	DelayInMilliseconds    int64 `json:"progressReportDelayInMilliseconds"`
	IntervalInMilliseconds int64 `json:"progressReportIntervalInMilliseconds"`
}

type clearQueuePayload struct {
	ClearBehavior *string `json:"clearBehavior"`
}

// ParsePlayPayload decodes a Play directive payload into a play behavior and an
// AudioItem, applying the service defaults: playBehavior ENQUEUE, audioItemId
// "anonymous", streamFormat AUDIO_MPEG, offset 0. A missing audioItem, stream,
// or url is an error; an unparsable expiryTime is ignored.
func ParsePlayPayload(data []byte) (PlayBehavior, AudioItem, error) {
	var p playPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", AudioItem{}, errors.Wrap(ErrMalformedPayload, err.Error())
	}

	behavior := PlayBehaviorEnqueue
	if p.PlayBehavior != nil {
		switch PlayBehavior(*p.PlayBehavior) {
		case PlayBehaviorEnqueue, PlayBehaviorReplaceAll, PlayBehaviorReplaceEnqueued:
			behavior = PlayBehavior(*p.PlayBehavior)
		default:
			return "", AudioItem{}, errors.Wrapf(ErrUnknownPlayBehavior, "%q", *p.PlayBehavior)
		}
	}

	if p.AudioItem == nil {
		return "", AudioItem{}, ErrMissingAudioItem
	}
	if p.AudioItem.Stream == nil {
		return "", AudioItem{}, ErrMissingStream
	}
	ps := p.AudioItem.Stream
	if ps.URL == "" {
		return "", AudioItem{}, ErrMissingURL
	}
	if ps.OffsetInMilliseconds < 0 {
		return "", AudioItem{}, ErrNegativeOffset
	}

	format := FormatMPEG
	if ps.StreamFormat != nil {
		if StreamFormat(*ps.StreamFormat) != FormatMPEG {
			return "", AudioItem{}, errors.Wrapf(ErrUnknownStreamFormat, "%q", *ps.StreamFormat)
		}
	}

	item := AudioItem{
		ID: p.AudioItem.AudioItemID,
		Stream: Stream{
			URL:                   ps.URL,
			Format:                format,
			Offset:                time.Duration(ps.OffsetInMilliseconds) * time.Millisecond,
			Token:                 ps.Token,
			ExpectedPreviousToken: ps.ExpectedPreviousToken,
		},
	}
	if item.ID == "" {
		item.ID = AnonymousID
	}
	if ps.ExpiryTime != "" {
		if t, err := time.Parse(time.RFC3339, ps.ExpiryTime); err == nil {
			item.Stream.ExpiryTime = t
		}
	}
	if ps.ProgressReport != nil {
		if ps.ProgressReport.DelayInMilliseconds > 0 {
			item.Stream.ProgressReport.Delay = time.Duration(ps.ProgressReport.DelayInMilliseconds) * time.Millisecond
		}
		if ps.ProgressReport.IntervalInMilliseconds > 0 {
			item.Stream.ProgressReport.Interval = time.Duration(ps.ProgressReport.IntervalInMilliseconds) * time.Millisecond
		}
	}
	return behavior, item, nil
}

// ParseClearQueuePayload decodes a ClearQueue directive payload. A missing
// clearBehavior defaults to CLEAR_ENQUEUED; an unknown one is an error.
func ParseClearQueuePayload(data []byte) (ClearBehavior, error) {
	behavior := ClearBehaviorClearEnqueued
	if len(data) == 0 {
		return behavior, nil
	}
	var p clearQueuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if p.ClearBehavior == nil {
		return behavior, nil
	}
	switch ClearBehavior(*p.ClearBehavior) {
	case ClearBehaviorClearAll, ClearBehaviorClearEnqueued:
		return ClearBehavior(*p.ClearBehavior), nil
	default:
		return "", errors.Wrapf(ErrUnknownClearBehavior, "%q", *p.ClearBehavior)
	}
}
