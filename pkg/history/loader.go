// Package history fetches a scope's messages and turns them into an ordered,
// deduplicated record list. Failures never reach the caller; they surface as
// notifications and an empty result.
package history

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/settings"
)

// Window is a paging window over a scope's history.
type Window struct {
	Offset int
	Limit  int
}

// FirstPage is the window loaded on scope entry.
func FirstPage(pageSize int) Window {
	return Window{Offset: 0, Limit: pageSize}
}

func (w Window) clamp(pageSize int) Window {
	if w.Offset < 0 {
		w.Offset = 0
	}
	if w.Limit <= 0 || w.Limit > pageSize {
		w.Limit = pageSize
	}
	return w
}

type Loader struct {
	fetcher         backend.Fetcher
	userID          string
	pageSize        int
	maxHistoryPages int
	notifier        notify.Notifier
	metrics         *metrics.Metrics
	clock           clock.Clock
}

type Option func(*Loader)

func WithSettings(s *settings.Settings) Option {
	return func(l *Loader) {
		l.pageSize = s.PageSize
		l.maxHistoryPages = s.MaxHistoryPages
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(l *Loader) {
		l.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(l *Loader) {
		l.clock = c
	}
}

func NewLoader(fetcher backend.Fetcher, userID string, options ...Option) *Loader {
	d := settings.Defaults()
	ret := &Loader{
		fetcher:         fetcher,
		userID:          userID,
		pageSize:        d.PageSize,
		maxHistoryPages: d.MaxHistoryPages,
		clock:           clock.New(),
	}
	for _, o := range options {
		o(ret)
	}
	ret.notifier = notify.OrLog(ret.notifier)
	return ret
}

func (l *Loader) PageSize() int {
	return l.pageSize
}

// fetch returns the normalized records of one page, unfiltered and unsorted.
func (l *Loader) fetch(ctx context.Context, filter backend.ScopeFilter, w Window) ([]messages.Message, int, error) {
	resp, err := l.fetcher.FetchMessages(ctx, l.userID, w.Offset, w.Limit, filter)
	if err != nil {
		return nil, 0, err
	}
	if resp == nil {
		return nil, 0, errors.Wrap(backend.ErrMalformedResponse, "empty history response")
	}
	now := l.clock.Now()
	ret := make([]messages.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		ret = append(ret, backend.Normalize(&resp.Messages[i], now))
	}
	return ret, len(resp.Messages), nil
}

// order drops records outside scope, dedupes by id and sorts by safe timestamp.
func order(records []messages.Message, keep func(*messages.Message) bool) []messages.Message {
	filtered := make([]messages.Message, 0, len(records))
	for i := range records {
		if keep == nil || keep(&records[i]) {
			filtered = append(filtered, records[i])
		}
	}
	ret := messages.DedupeByID(filtered)
	messages.SortByTimestamp(ret)
	return ret
}

func inScope(scope messages.Scope) func(*messages.Message) bool {
	return func(m *messages.Message) bool {
		return m.Scope.Equal(scope)
	}
}

func (l *Loader) failed(scope string, err error, start time.Time) {
	log.Warn().Err(err).Str("scope", scope).Msg("could not load history")
	l.metrics.ObserveHistoryLoad(scope, false, l.clock.Since(start))
	l.notifier.Notify(notify.New(notify.KindHistoryFailed, err))
}

// Load returns one page of the scope's history, ordered ascending by safe
// timestamp. On failure it returns an empty slice and notifies.
func (l *Loader) Load(ctx context.Context, scope messages.Scope, w Window) []messages.Message {
	start := l.clock.Now()
	w = w.clamp(l.pageSize)

	records, _, err := l.fetch(ctx, backend.FilterFor(scope), w)
	if err != nil {
		l.failed(string(scope.Kind), err, start)
		return []messages.Message{}
	}

	// the backend filter is not trusted, partition again
	ret := order(records, inScope(scope))
	if dropped := len(records) - len(ret); dropped > 0 {
		log.Debug().Str("scope", scope.String()).Int("dropped", dropped).Msg("dropped out of scope, stale or duplicate records")
	}
	l.metrics.ObserveHistoryLoad(string(scope.Kind), true, l.clock.Since(start))
	return ret
}

// LoadAll pages through the user's whole history, across scopes. It stops on
// a short page or after the configured number of pages.
func (l *Loader) LoadAll(ctx context.Context) []messages.Message {
	start := l.clock.Now()
	all := make([]messages.Message, 0)
	w := FirstPage(l.pageSize)
	for page := 0; page < l.maxHistoryPages; page++ {
		records, n, err := l.fetch(ctx, backend.ScopeFilter{}, w)
		if err != nil {
			l.failed("all", err, start)
			return []messages.Message{}
		}
		all = append(all, records...)
		if n < w.Limit {
			break
		}
		w.Offset += w.Limit
	}
	l.metrics.ObserveHistoryLoad("all", true, l.clock.Since(start))
	return order(all, nil)
}

// LoadScopes loads the first page of several scopes concurrently and merges
// them. A failing scope is notified and contributes nothing.
func (l *Loader) LoadScopes(ctx context.Context, scopes ...messages.Scope) []messages.Message {
	results := make([][]messages.Message, len(scopes))
	eg, ctx := errgroup.WithContext(ctx)
	for i, scope := range scopes {
		i, scope := i, scope
		eg.Go(func() error {
			results[i] = l.Load(ctx, scope, FirstPage(l.pageSize))
			return nil
		})
	}
	_ = eg.Wait()

	merged := make([]messages.Message, 0)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return order(merged, nil)
}
