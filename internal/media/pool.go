package media

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	ErrPoolExhausted = errors.New("no media player available")
	ErrNotAcquired   = errors.New("player was not acquired from this pool")
)

// FixedPool is a Factory over a fixed set of Players. Observers are notified
// synchronously from Release, so a caller releasing a Player sees the
// notification before Release returns.
type FixedPool struct {
	mu        sync.Mutex
	free      []Player
	inUse     map[Player]struct{}
	observers []FactoryObserver
}

var _ Factory = (*FixedPool)(nil)

// NewFixedPool returns a pool over the given players.
func NewFixedPool(players ...Player) *FixedPool {
	p := &FixedPool{inUse: make(map[Player]struct{})}
	p.free = append(p.free, players...)
	return p
}

func (p *FixedPool) Acquire() (Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	player := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[player] = struct{}{}
	return player, nil
}

func (p *FixedPool) Release(player Player) error {
	p.mu.Lock()
	if _, ok := p.inUse[player]; !ok {
		p.mu.Unlock()
		return ErrNotAcquired
	}
	delete(p.inUse, player)
	p.free = append(p.free, player)
	freeCount := len(p.free)
	observers := make([]FactoryObserver, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	zlog.Debug().Msgf("media pool: player released, %d free", freeCount)
	for _, o := range observers {
		o.OnReadyToProvideNextPlayer()
	}
	return nil
}

func (p *FixedPool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free) > 0
}

func (p *FixedPool) AddObserver(o FactoryObserver) {
	if o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *FixedPool) RemoveObserver(o FactoryObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.observers {
		if existing == o {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}
