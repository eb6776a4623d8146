// Package media defines the rendering-backend contract used by the player:
// a Player renders one loaded source at a time, a Factory hands out Players
// from a bounded pool so upcoming tracks can buffer while one plays.
package media

import (
	"time"

	"github.com/ariavoice/audioplayer/internal/domain/audio"
)

// SourceID identifies one loaded source on a Player. IDs are issued by Load,
// never reused by the same Player, and carried on every callback so a late
// callback can be matched to the load it belongs to.
type SourceID uint64

// ErrorSourceID is returned by Load on failure and never identifies a source.
const ErrorSourceID SourceID = 0

// Player is a single rendering pipeline. Control calls return quickly;
// outcomes arrive through the registered Observers on a goroutine owned by
// the backend, never on the caller's stack.
type Player interface {
	// Load prepares url for playback starting at offset and returns the id of
	// the new source. Implementations may begin buffering immediately.
	Load(url string, offset time.Duration) (SourceID, error)
	Play(id SourceID) error
	Stop(id SourceID) error
	Pause(id SourceID) error
	Resume(id SourceID) error
	// Offset reports the playback position of id. ok is false when id no
	// longer identifies the loaded source.
	Offset(id SourceID) (offset time.Duration, ok bool)
	AddObserver(o Observer)
	RemoveObserver(o Observer)
}

// Observer receives Player callbacks.
type Observer interface {
	OnPlaybackStarted(id SourceID)
	OnPlaybackStopped(id SourceID)
	OnPlaybackFinished(id SourceID)
	OnPlaybackPaused(id SourceID)
	OnPlaybackResumed(id SourceID)
	OnPlaybackError(id SourceID, errorType audio.ErrorType, message string)
	OnBufferUnderrun(id SourceID)
	OnBufferRefilled(id SourceID)
	OnTags(id SourceID, tags []audio.Tag)
}

// Factory hands out Players from a bounded pool.
type Factory interface {
	// Acquire returns a free Player, or an error when none is available.
	Acquire() (Player, error)
	// Release returns p to the pool and notifies factory observers that a
	// Player is available again.
	Release(p Player) error
	// Available reports whether Acquire would currently succeed.
	Available() bool
	AddObserver(o FactoryObserver)
	RemoveObserver(o FactoryObserver)
}

// FactoryObserver is notified when a Release makes a Player available again.
type FactoryObserver interface {
	OnReadyToProvideNextPlayer()
}
