// Package scroll decides, on every content size change of the message list,
// whether to follow the newest message or to restore the viewer's offset.
package scroll

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/settings"
)

// ListView is the mounted message list.
type ListView interface {
	ScrollToOffset(offset float64)
	ScrollToEnd()
}

type Manager struct {
	mu    sync.Mutex
	clock clock.Clock
	view  ListView

	offset    float64
	preserve  bool
	replaying bool
	// epoch invalidates scheduled replays on Reset and Detach
	epoch uint64

	retries int
	delay   time.Duration
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithSettings(s *settings.Settings) Option {
	return func(m *Manager) {
		m.retries = s.ScrollRetries
		m.delay = s.ScrollRetryDelay
	}
}

func New(options ...Option) *Manager {
	d := settings.Defaults()
	ret := &Manager{
		clock:   clock.New(),
		retries: d.ScrollRetries,
		delay:   d.ScrollRetryDelay,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (m *Manager) Attach(v ListView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = v
}

// Detach unmounts the list. Replays still scheduled become no-ops.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = nil
	m.replaying = false
	m.epoch++
}

// Capture records the viewer's current offset.
func (m *Manager) Capture(offset float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
}

// RequestPreserve makes the next content size change restore the captured offset.
func (m *Manager) RequestPreserve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preserve = true
}

func (m *Manager) Preserving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preserve
}

// Reset forgets the offset and any pending preserve request.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = 0
	m.preserve = false
	m.replaying = false
	m.epoch++
}

// OnContentSizeChange reacts to a layout change of the list.
func (m *Manager) OnContentSizeChange() {
	m.mu.Lock()
	view := m.view
	if view == nil || m.replaying {
		m.mu.Unlock()
		return
	}
	if !m.preserve {
		m.mu.Unlock()
		view.ScrollToEnd()
		return
	}
	offset, epoch := m.offset, m.epoch
	delays := m.schedule()
	if len(delays) == 0 {
		m.preserve = false
	} else {
		m.replaying = true
	}
	m.mu.Unlock()

	view.ScrollToOffset(offset)

	// the layout keeps settling for a while, replay the offset a few times
	var at time.Duration
	for i, d := range delays {
		at += d
		last := i == len(delays)-1
		m.clock.AfterFunc(at, func() {
			m.replay(epoch, offset, last)
		})
	}
}

func (m *Manager) schedule() []time.Duration {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(m.delay), uint64(max(m.retries, 0)))
	var ret []time.Duration
	for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
		ret = append(ret, d)
	}
	return ret
}

func (m *Manager) replay(epoch uint64, offset float64, last bool) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	view := m.view
	if last {
		m.preserve = false
		m.replaying = false
	}
	m.mu.Unlock()

	if view == nil {
		log.Debug().Msg("list view gone, skipping scroll replay")
		return
	}
	view.ScrollToOffset(offset)
}
