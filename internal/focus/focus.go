// Package focus defines the audio-channel focus contract: which activity may
// render to the speaker right now, and how holders learn about changes.
package focus

// State is the focus a channel holder currently has.
type State int

const (
	StateNone       State = iota // No focus, playback must stop
	StateBackground              // A higher-priority channel is active, stay paused
	StateForeground              // Full focus, free to play
)

// String returns the string representation of the focus state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateBackground:
		return "BACKGROUND"
	case StateForeground:
		return "FOREGROUND"
	default:
		return "unknown"
	}
}

// Observer receives focus grants and revocations for a channel it holds.
type Observer interface {
	OnFocusChanged(state State)
}

// Manager arbitrates channel focus. Acquire and Release only register the
// request; the resulting state always arrives through the Observer on a
// manager-owned goroutine, never on the caller's stack.
type Manager interface {
	// Acquire requests the named channel at the given priority (lower number
	// wins). A previous holder of the same channel is displaced to StateNone.
	Acquire(channel string, priority int, o Observer) bool
	// Release gives the channel up. Only the current holder may release.
	Release(channel string, o Observer) bool
}
