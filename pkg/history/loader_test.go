package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/settings"
)

type fetchCall struct {
	offset, limit int
	filter        backend.ScopeFilter
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fetch func(offset, limit int, filter backend.ScopeFilter) (*backend.FetchResponse, error)
}

func (f *fakeFetcher) FetchMessages(_ context.Context, _ string, offset, limit int, filter backend.ScopeFilter) (*backend.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{offset, limit, filter})
	f.mu.Unlock()
	return f.fetch(offset, limit, filter)
}

func returning(dtos ...backend.MessageDTO) *fakeFetcher {
	return &fakeFetcher{fetch: func(int, int, backend.ScopeFilter) (*backend.FetchResponse, error) {
		return &backend.FetchResponse{Messages: dtos}, nil
	}}
}

func dto(id, created, text string) backend.MessageDTO {
	return backend.MessageDTO{ID: backend.FlexString(id), CreatedAt: backend.FlexString(created), Message: text, Response: "re " + text}
}

func newTestLoader(f backend.Fetcher, options ...Option) *Loader {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewLoader(f, "u1", append([]Option{WithClock(mock), WithNotifier(&notify.Recorder{})}, options...)...)
}

func ids(records []messages.Message) []string {
	ret := make([]string, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.ID)
	}
	return ret
}

func TestLoadDedupesAndOrders(t *testing.T) {
	f := returning(
		dto("3", "2024-01-03T00:00:00Z", "third"),
		dto("1", "2024-01-01T00:00:00Z", "first"),
		dto("2", "2024-01-02T00:00:00Z", "second"),
		dto("2", "2024-01-02T00:00:00Z", "second again"),
	)
	l := newTestLoader(f)

	got := l.Load(context.Background(), messages.General(), FirstPage(100))
	assert.Equal(t, []string{"1", "2", "3"}, ids(got))
	assert.Equal(t, "second", got[1].UserText)
}

func TestLoadSortsMalformedDatesFirst(t *testing.T) {
	f := returning(
		dto("1", "2024-01-01T00:00:00Z", "ok"),
		dto("2", "not a date", "broken"),
		dto("3", "1970-01-01T00:00:00Z", "too old"),
		dto("4", "2099-01-01T00:00:00Z", "future"),
	)
	got := newTestLoader(f).Load(context.Background(), messages.General(), FirstPage(100))
	assert.Equal(t, []string{"2", "3", "4", "1"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestLoadReappliesScopeFilter(t *testing.T) {
	agent := dto("1", "2024-01-01T00:00:00Z", "agent")
	agent.AgentID = "7"
	chatbox := dto("2", "2024-01-02T00:00:00Z", "chatbox")
	chatbox.ChatboxID = "4"
	general := dto("3", "2024-01-03T00:00:00Z", "general")
	stale := backend.MessageDTO{ID: "4"}

	// a drifting backend ignores the filter
	f := returning(agent, chatbox, general, stale)
	l := newTestLoader(f)
	ctx := context.Background()

	assert.Equal(t, []string{"3"}, ids(l.Load(ctx, messages.General(), FirstPage(100))))
	assert.Equal(t, []string{"1"}, ids(l.Load(ctx, messages.Agent("7"), FirstPage(100))))
	assert.Equal(t, []string{"2"}, ids(l.Load(ctx, messages.Chatbox("4"), FirstPage(100))))

	require.Len(t, f.calls, 3)
	assert.Equal(t, backend.ScopeFilter{GeneralOnly: true}, f.calls[0].filter)
	assert.Equal(t, backend.ScopeFilter{AgentID: "7"}, f.calls[1].filter)
	assert.Equal(t, backend.ScopeFilter{ChatboxID: "4"}, f.calls[2].filter)
}

func TestLoadIsIdempotent(t *testing.T) {
	f := returning(
		dto("5", "2024-01-01T00:00:00Z", "a"),
		dto("6", "2024-01-01T00:00:00Z", "b"),
		dto("7", "", "c"),
	)
	l := newTestLoader(f)
	first := l.Load(context.Background(), messages.General(), FirstPage(100))
	second := l.Load(context.Background(), messages.General(), FirstPage(100))
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"7", "5", "6"}, ids(first))
}

func TestLoadClampsWindow(t *testing.T) {
	f := returning()
	s := settings.Defaults()
	s.PageSize = 20
	l := newTestLoader(f, WithSettings(s))

	l.Load(context.Background(), messages.General(), Window{Offset: -5, Limit: 500})
	require.Len(t, f.calls, 1)
	assert.Equal(t, 0, f.calls[0].offset)
	assert.Equal(t, 20, f.calls[0].limit)
}

func TestLoadFailureNotifiesAndReturnsEmpty(t *testing.T) {
	f := &fakeFetcher{fetch: func(int, int, backend.ScopeFilter) (*backend.FetchResponse, error) {
		return nil, &backend.APIError{Status: 503, Message: "down"}
	}}
	rec := &notify.Recorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := newTestLoader(f, WithNotifier(rec), WithMetrics(m))

	got := l.Load(context.Background(), messages.Agent("7"), FirstPage(100))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	all := rec.All()
	require.Len(t, all, 1)
	assert.Equal(t, notify.KindHistoryFailed, all[0].Kind)
	assert.Contains(t, all[0].Detail, "down")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryLoads.WithLabelValues("agent", "error")))

	f.fetch = func(int, int, backend.ScopeFilter) (*backend.FetchResponse, error) {
		return nil, nil
	}
	assert.Empty(t, l.Load(context.Background(), messages.Agent("7"), FirstPage(100)))
	assert.Len(t, rec.All(), 2)
}

func TestLoadAllPages(t *testing.T) {
	var all []backend.MessageDTO
	for i := 1; i <= 5; i++ {
		all = append(all, dto(string(rune('0'+i)), "2024-01-0"+string(rune('0'+i))+"T00:00:00Z", "m"))
	}
	f := &fakeFetcher{fetch: func(offset, limit int, filter backend.ScopeFilter) (*backend.FetchResponse, error) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		if offset >= len(all) {
			return &backend.FetchResponse{}, nil
		}
		return &backend.FetchResponse{Messages: all[offset:end]}, nil
	}}
	s := settings.Defaults()
	s.PageSize = 2
	l := newTestLoader(f, WithSettings(s))

	got := l.LoadAll(context.Background())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(got))
	require.Len(t, f.calls, 3)
	assert.True(t, f.calls[0].filter.IsAll())
	assert.Equal(t, 4, f.calls[2].offset)

	s.MaxHistoryPages = 1
	f.calls = nil
	l = newTestLoader(f, WithSettings(s))
	assert.Len(t, l.LoadAll(context.Background()), 2)
	assert.Len(t, f.calls, 1)
}

func TestLoadScopesMerges(t *testing.T) {
	f := &fakeFetcher{fetch: func(_, _ int, filter backend.ScopeFilter) (*backend.FetchResponse, error) {
		switch {
		case filter.AgentID == "7":
			d := dto("2", "2024-01-02T00:00:00Z", "agent")
			d.AgentID = "7"
			return &backend.FetchResponse{Messages: []backend.MessageDTO{d}}, nil
		case filter.ChatboxID == "4":
			return nil, &backend.APIError{Status: 500}
		default:
			return &backend.FetchResponse{Messages: []backend.MessageDTO{dto("1", "2024-01-01T00:00:00Z", "general")}}, nil
		}
	}}
	rec := &notify.Recorder{}
	l := newTestLoader(f, WithNotifier(rec))

	got := l.LoadScopes(context.Background(), messages.Agent("7"), messages.Chatbox("4"), messages.General())
	assert.Equal(t, []string{"1", "2"}, ids(got))
	assert.Len(t, rec.All(), 1)
}
