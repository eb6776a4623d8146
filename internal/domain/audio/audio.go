// Package audio provides the playback domain vocabulary: audio items, stream
// descriptors, queueing behaviors, and the error and metadata types shared by
// the player agent and its transports.
package audio

import "time"

// AudioItem represents a single playable item carried by a Play directive.
type AudioItem struct {
	ID     string // Item identifier ("anonymous" when the directive omits one)
	Stream Stream // Stream descriptor
}

// Stream describes where and how to render an audio item.
type Stream struct {
	URL                   string         // Media URL handed to the rendering backend
	Format                StreamFormat   // Container/codec hint
	Offset                time.Duration  // Initial playback offset
	ExpiryTime            time.Time      // Time the URL stops being valid (zero if absent)
	ProgressReport        ProgressReport // Progress reporting schedule
	Token                 string         // Opaque service token identifying this stream
	ExpectedPreviousToken string         // Token the service expects to precede this one
}

// ProgressReport configures progress reporting for a stream.
// A zero Delay or Interval disables the corresponding report.
type ProgressReport struct {
	Delay    time.Duration // One-shot report once playback passes this stream position
	Interval time.Duration // Repeated report every interval of played content
}
