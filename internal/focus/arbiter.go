package focus

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/ariavoice/audioplayer/internal/infra/executor"
)

// Arbiter is a minimal in-process Manager: one holder per channel, the
// occupied channel with the lowest priority number is foreground and every
// other occupied channel is background. Grants are delivered in order on a
// single delivery goroutine.
type Arbiter struct {
	mu       sync.Mutex
	channels map[string]*channelSlot
	deliver  *executor.Executor
}

type channelSlot struct {
	priority  int
	holder    Observer
	lastState State
}

var _ Manager = (*Arbiter)(nil)

// NewArbiter returns a ready Arbiter. Close it when done.
func NewArbiter() *Arbiter {
	return &Arbiter{
		channels: make(map[string]*channelSlot),
		deliver:  executor.New(),
	}
}

// Close stops the delivery goroutine after draining pending notifications.
func (a *Arbiter) Close() {
	a.deliver.Shutdown()
}

func (a *Arbiter) Acquire(channel string, priority int, o Observer) bool {
	if o == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deliver.IsShutdown() {
		return false
	}

	if prev, ok := a.channels[channel]; ok && prev.holder != o {
		a.notifyLocked(prev.holder, StateNone)
	}
	a.channels[channel] = &channelSlot{priority: priority, holder: o, lastState: StateNone}
	zlog.Debug().Msgf("focus: %s acquired (priority=%d)", channel, priority)
	a.recomputeLocked()
	return true
}

func (a *Arbiter) Release(channel string, o Observer) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.channels[channel]
	if !ok || slot.holder != o {
		return false
	}
	delete(a.channels, channel)
	a.notifyLocked(o, StateNone)
	zlog.Debug().Msgf("focus: %s released", channel)
	a.recomputeLocked()
	return true
}

// recomputeLocked pushes the derived state to every occupied channel whose
// state changed.
func (a *Arbiter) recomputeLocked() {
	top := 0
	first := true
	for _, slot := range a.channels {
		if first || slot.priority < top {
			top = slot.priority
			first = false
		}
	}
	for _, slot := range a.channels {
		state := StateBackground
		if slot.priority == top {
			state = StateForeground
		}
		if state != slot.lastState {
			slot.lastState = state
			a.notifyLocked(slot.holder, state)
		}
	}
}

func (a *Arbiter) notifyLocked(o Observer, state State) {
	if err := a.deliver.Submit(func() { o.OnFocusChanged(state) }); err != nil {
		zlog.Warn().Msgf("focus: dropping %v notification: %v", state, err)
	}
}
