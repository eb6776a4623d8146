package player

// Activity is the externally visible playback state.
type Activity int

const (
	ActivityIdle           Activity = iota // Nothing has been played since startup
	ActivityPlaying                        // The active item is rendering
	ActivityStopped                        // Playback was stopped before the item finished
	ActivityPaused                         // Playback is suspended, position held
	ActivityBufferUnderrun                 // Rendering stalled waiting for data
	ActivityFinished                       // The active item played to the end
)

// String returns the wire name used in state snapshots and event payloads.
func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "IDLE"
	case ActivityPlaying:
		return "PLAYING"
	case ActivityStopped:
		return "STOPPED"
	case ActivityPaused:
		return "PAUSED"
	case ActivityBufferUnderrun:
		return "BUFFER_UNDERRUN"
	case ActivityFinished:
		return "FINISHED"
	default:
		return "unknown"
	}
}
