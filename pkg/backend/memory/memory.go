// Package memory is an in-process chat backend. It keeps exchanges in memory,
// answers through a Responder and enforces the duplicate (409) and rate limit
// (429) rules a real backend applies.
package memory

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/backend"
)

type Backend struct {
	mu        sync.Mutex
	clock     clock.Clock
	responder Responder
	nextID    int64
	exchanges []backend.MessageDTO

	// sends per user, used for duplicate and rate limit checks
	recent map[string][]sendRecord

	duplicateWindow time.Duration
	rateLimit       int
	rateWindow      time.Duration
}

type sendRecord struct {
	at     time.Time
	text   string
	filter backend.ScopeFilter
}

var _ backend.Backend = (*Backend)(nil)

type Option func(*Backend)

func WithClock(c clock.Clock) Option {
	return func(b *Backend) {
		b.clock = c
	}
}

func WithResponder(r Responder) Option {
	return func(b *Backend) {
		b.responder = r
	}
}

// WithDuplicateWindow sets how long an identical send is answered with 409.
func WithDuplicateWindow(d time.Duration) Option {
	return func(b *Backend) {
		b.duplicateWindow = d
	}
}

// WithRateLimit allows n sends per window and user. n <= 0 disables it.
func WithRateLimit(n int, window time.Duration) Option {
	return func(b *Backend) {
		b.rateLimit = n
		b.rateWindow = window
	}
}

// WithMessages seeds the backend. Seeded ids must be numeric to keep the id
// sequence monotonic.
func WithMessages(dtos ...backend.MessageDTO) Option {
	return func(b *Backend) {
		for _, dto := range dtos {
			if id, err := strconv.ParseInt(dto.ID.String(), 10, 64); err == nil && id > b.nextID {
				b.nextID = id
			}
			b.exchanges = append(b.exchanges, dto)
		}
	}
}

func New(options ...Option) *Backend {
	ret := &Backend{
		clock:           clock.New(),
		responder:       EchoResponder{},
		recent:          make(map[string][]sendRecord),
		duplicateWindow: 2 * time.Second,
		rateLimit:       20,
		rateWindow:      time.Minute,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (b *Backend) FetchMessages(ctx context.Context, userID string, offset, limit int, filter backend.ScopeFilter) (*backend.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "invalid paging window"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	matching := make([]backend.MessageDTO, 0)
	for _, dto := range b.exchanges {
		if dto.UserID.String() != userID || !filter.Matches(&dto) {
			continue
		}
		matching = append(matching, dto)
	}

	if offset >= len(matching) {
		return &backend.FetchResponse{Messages: []backend.MessageDTO{}}, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	page := make([]backend.MessageDTO, end-offset)
	copy(page, matching[offset:end])
	return &backend.FetchResponse{Messages: page}, nil
}

// checkSend applies the duplicate and rate limit rules. Callers hold b.mu.
func (b *Backend) checkSend(userID, text string, filter backend.ScopeFilter, now time.Time) error {
	records := b.recent[userID]
	kept := records[:0]
	horizon := b.rateWindow
	if b.duplicateWindow > horizon {
		horizon = b.duplicateWindow
	}
	for _, r := range records {
		if now.Sub(r.at) < horizon {
			kept = append(kept, r)
		}
	}
	b.recent[userID] = kept

	for _, r := range kept {
		if r.text == text && r.filter == filter && now.Sub(r.at) < b.duplicateWindow {
			return &backend.APIError{Status: http.StatusConflict, Message: "message already accepted"}
		}
	}

	if b.rateLimit > 0 {
		n := 0
		for _, r := range kept {
			if now.Sub(r.at) < b.rateWindow {
				n++
			}
		}
		if n >= b.rateLimit {
			return &backend.APIError{Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
		}
	}
	return nil
}

func (b *Backend) SendMessage(ctx context.Context, userID string, text string, filter backend.ScopeFilter) (*backend.MessageDTO, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "message is empty"}
	}
	if filter.IsAll() {
		filter.GeneralOnly = true
	}

	b.mu.Lock()
	now := b.clock.Now()
	if err := b.checkSend(userID, text, filter, now); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.recent[userID] = append(b.recent[userID], sendRecord{at: now, text: text, filter: filter})
	history := b.historyLocked(userID, filter)
	b.mu.Unlock()

	// the responder may call out to a model, never hold the lock across it
	reply, err := b.responder.Respond(ctx, filter.Scope(), history, text)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("responder failed")
		return nil, &backend.APIError{Status: http.StatusBadGateway, Message: "assistant unavailable"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	dto := backend.MessageDTO{
		ID:        backend.FlexString(strconv.FormatInt(b.nextID, 10)),
		Message:   text,
		Response:  reply,
		UserID:    backend.FlexString(userID),
		AgentID:   backend.FlexString(filter.AgentID),
		ChatboxID: backend.FlexString(filter.ChatboxID),
		CreatedAt: backend.FlexString(b.clock.Now().UTC().Format(time.RFC3339Nano)),
	}
	b.exchanges = append(b.exchanges, dto)
	return &dto, nil
}

func (b *Backend) historyLocked(userID string, filter backend.ScopeFilter) []backend.MessageDTO {
	ret := make([]backend.MessageDTO, 0)
	for _, dto := range b.exchanges {
		if dto.UserID.String() == userID && filter.Matches(&dto) {
			ret = append(ret, dto)
		}
	}
	return ret
}

func (b *Backend) DeleteMessage(ctx context.Context, messageID string, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, dto := range b.exchanges {
		if dto.ID.String() == messageID && dto.UserID.String() == userID {
			b.exchanges = append(b.exchanges[:i:i], b.exchanges[i+1:]...)
			return nil
		}
	}
	return &backend.APIError{Status: http.StatusNotFound, Message: "message not found"}
}

// Len returns the number of stored exchanges.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.exchanges)
}
