// Package conversation wires the engine together for one active conversation:
// the selector decides the scope, the loader fills the store, a send
// coordinator per scope drives sends and the scroll manager follows the store.
package conversation

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/events"
	"github.com/go-go-golems/chatsync/pkg/grouping"
	"github.com/go-go-golems/chatsync/pkg/history"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/scroll"
	"github.com/go-go-golems/chatsync/pkg/selector"
	"github.com/go-go-golems/chatsync/pkg/send"
	"github.com/go-go-golems/chatsync/pkg/settings"
	"github.com/go-go-golems/chatsync/pkg/store"
)

var ErrControllerNil = errors.New("conversation controller is nil")

type Controller struct {
	// SessionID identifies the controller in logs.
	SessionID string

	backend  backend.Backend
	userID   string
	settings *settings.Settings
	clock    clock.Clock
	notifier notify.Notifier
	metrics  *metrics.Metrics
	router   *events.EventRouter

	selector *selector.Selector
	loader   *history.Loader
	store    *store.Store
	scroll   *scroll.Manager

	// mu orders scope changes against store commits and guards coordinator
	mu          sync.Mutex
	coordinator *send.Coordinator
	opened      bool
	logger      zerolog.Logger
}

type Option func(*Controller)

func WithSettings(s *settings.Settings) Option {
	return func(c *Controller) {
		c.settings = s
	}
}

func WithClock(cl clock.Clock) Option {
	return func(c *Controller) {
		c.clock = cl
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithEventRouter publishes store changes on the router and feeds them to the
// scroll manager. The caller runs and closes the router.
func WithEventRouter(r *events.EventRouter) Option {
	return func(c *Controller) {
		c.router = r
	}
}

func New(b backend.Backend, userID string, options ...Option) *Controller {
	ret := &Controller{
		SessionID: uuid.NewString(),
		backend:   b,
		userID:    userID,
		settings:  settings.Defaults(),
		clock:     clock.New(),
	}
	for _, o := range options {
		o(ret)
	}
	ret.notifier = notify.OrLog(ret.notifier)
	ret.logger = log.With().Str("session_id", ret.SessionID).Logger()

	storeOptions := []store.Option{store.WithViewSize(ret.settings.ViewSize)}
	if ret.router != nil {
		pm := events.NewPublisherManager()
		pm.SubscribePublisher(events.TopicStore, ret.router.Publisher)
		storeOptions = append(storeOptions, store.WithPublisher(pm))
	}

	ret.store = store.New(storeOptions...)
	ret.selector = selector.New()
	ret.loader = history.NewLoader(b, userID,
		history.WithSettings(ret.settings),
		history.WithClock(ret.clock),
		history.WithNotifier(ret.notifier),
		history.WithMetrics(ret.metrics),
	)
	ret.scroll = scroll.New(scroll.WithClock(ret.clock), scroll.WithSettings(ret.settings))
	ret.coordinator = ret.newCoordinator(messages.General())

	ret.selector.OnChange(ret.onScopeChange)
	if ret.router != nil {
		ret.router.AddHandler("chatsync-scroll-"+ret.SessionID, events.TopicStore, ret.handleStoreChanged)
	}
	return ret
}

func (c *Controller) newCoordinator(scope messages.Scope) *send.Coordinator {
	return send.NewCoordinator(c.backend, c.store, scope, c.userID,
		send.WithSettings(c.settings),
		send.WithClock(c.clock),
		send.WithNotifier(c.notifier),
		send.WithMetrics(c.metrics),
	)
}

// onScopeChange drops everything tied to the previous scope.
func (c *Controller) onScopeChange(change selector.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coordinator.Retire()
	c.coordinator = c.newCoordinator(change.Next)
	c.scroll.Reset()
	c.store.Clear(change.Next)
	c.logger.Debug().
		Str("scope", change.Next.String()).
		Uint64("generation", change.Generation).
		Msg("opened conversation")
}

func (c *Controller) handleStoreChanged(msg *message.Message) error {
	e, err := events.NewStoreChangedFromJSON(msg.Payload)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping unreadable store event")
		return nil
	}
	if e.Kind == events.StoreCleared {
		return nil
	}
	c.scroll.OnContentSizeChange()
	return nil
}

// commit replaces the store with a loaded page, unless the selection moved
// on while the page was loading. preserve keeps the viewer's scroll offset.
func (c *Controller) commit(scope messages.Scope, generation uint64, records []messages.Message, preserve bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.selector.IsCurrent(scope, generation) {
		c.logger.Debug().
			Str("scope", scope.String()).
			Uint64("generation", generation).
			Msg("discarding history for an abandoned scope")
		c.metrics.ObserveStaleLoadDropped()
		return false
	}

	// a send in flight keeps its optimistic records across a reload
	if c.coordinator.Guard().InFlight() {
		for _, r := range c.store.All() {
			if r.Local {
				records = append(records, r)
			}
		}
	}
	if preserve {
		c.scroll.RequestPreserve()
	}
	c.store.Replace(scope, records)
	return true
}

// Open makes the intent's conversation active and loads its first page.
// Opening the active conversation again does nothing, except for the first
// Open which always loads.
func (c *Controller) Open(ctx context.Context, intent selector.Intent) error {
	if c == nil {
		return ErrControllerNil
	}
	change, err := c.selector.Apply(intent)
	if err != nil {
		return err
	}
	c.mu.Lock()
	first := !c.opened
	c.opened = true
	c.mu.Unlock()
	if !change.Changed && !first {
		return nil
	}
	records := c.loader.Load(ctx, change.Next, history.FirstPage(c.loader.PageSize()))
	c.commit(change.Next, change.Generation, records, false)
	return nil
}

// Refresh reloads the active conversation in the background of a viewer,
// keeping their scroll offset. It reports whether the reload was applied.
func (c *Controller) Refresh(ctx context.Context) bool {
	scope, generation := c.selector.Current()
	records := c.loader.Load(ctx, scope, history.FirstPage(c.loader.PageSize()))
	return c.commit(scope, generation, records, true)
}

func (c *Controller) Send(ctx context.Context, input send.Input, composer send.Composer) *send.Result {
	c.mu.Lock()
	co := c.coordinator
	c.mu.Unlock()
	return co.Send(ctx, input, composer)
}

// Delete removes a message on the backend and then from the store. On
// failure the record stays and the user is notified.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if _, ok := c.store.Get(id); !ok {
		return errors.Errorf("message %s is not in the active conversation", id)
	}
	if messages.IsLocalID(id) {
		c.store.Remove(id)
		return nil
	}
	if err := c.backend.DeleteMessage(ctx, id, c.userID); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("could not delete message")
		c.notifier.Notify(notify.New(notify.KindDeleteFailed, err))
		return errors.Wrapf(err, "could not delete message %s", id)
	}
	c.store.Remove(id)
	return nil
}

// Conversations loads the user's whole history and groups it into list rows.
func (c *Controller) Conversations(ctx context.Context) []grouping.Row {
	return grouping.Group(c.loader.LoadAll(ctx))
}

func (c *Controller) Scope() messages.Scope {
	scope, _ := c.selector.Current()
	return scope
}

func (c *Controller) Store() *store.Store {
	return c.store
}

func (c *Controller) Scroll() *scroll.Manager {
	return c.scroll
}

func (c *Controller) Loader() *history.Loader {
	return c.loader
}
