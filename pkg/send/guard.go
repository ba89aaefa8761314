package send

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var (
	ErrEmptyInput   = errors.New("nothing to send")
	ErrSendInFlight = errors.New("a send is already in flight")
	ErrDebounced    = errors.New("send inside the debounce window")
)

// Guard admits at most one send at a time and enforces a minimum delay
// between two accepted sends. Check and set happen under one lock.
type Guard struct {
	mu           sync.Mutex
	clock        clock.Clock
	debounce     time.Duration
	inFlight     bool
	lastAccepted time.Time
}

func NewGuard(c clock.Clock, debounce time.Duration) *Guard {
	if c == nil {
		c = clock.New()
	}
	return &Guard{clock: c, debounce: debounce}
}

// TryAcquire marks a send as in flight, or returns why it may not start.
func (g *Guard) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return ErrSendInFlight
	}
	now := g.clock.Now()
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.debounce {
		return ErrDebounced
	}
	g.inFlight = true
	g.lastAccepted = now
	return nil
}

// Release clears the in-flight flag. The debounce timestamp is kept.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
}

func (g *Guard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Guard) LastAccepted() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAccepted
}
