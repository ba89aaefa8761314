// Package send drives one message send from user input to a reconciled,
// failed or duplicate-suppressed outcome, with an optimistic user record and
// a composing placeholder in the store while the backend answers.
package send

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/messages"
	"github.com/go-go-golems/chatsync/pkg/metrics"
	"github.com/go-go-golems/chatsync/pkg/notify"
	"github.com/go-go-golems/chatsync/pkg/settings"
	"github.com/go-go-golems/chatsync/pkg/store"
)

// DiagnosticText is shown in place of an assistant reply the engine could not read.
const DiagnosticText = "The assistant replied, but the reply could not be displayed."

type Outcome string

const (
	OutcomeRejected   Outcome = "rejected"
	OutcomeReconciled Outcome = "reconciled"
	OutcomeFailed     Outcome = "failed"
	OutcomeDuplicate  Outcome = "duplicate-suppressed"
)

// Input is what the user composed. Text is the caption when an attachment is set.
type Input struct {
	Text       string
	Attachment *messages.Attachment
}

func (i Input) IsEmpty() bool {
	return strings.TrimSpace(i.Text) == "" && i.Attachment == nil
}

// Composer is the text input the send was started from.
type Composer interface {
	Text() string
	SetText(text string)
}

type Result struct {
	Outcome Outcome
	// Reason is the guard error of a rejected send.
	Reason error
	// Err is the backend error of a failed or duplicate send, or the decode
	// error behind a diagnostic reply.
	Err error

	UserRecord      messages.Message
	AssistantRecord *messages.Message
}

type Coordinator struct {
	sender   backend.Sender
	store    *store.Store
	scope    messages.Scope
	userID   string
	guard    *Guard
	clock    clock.Clock
	timeout  time.Duration
	notifier notify.Notifier
	metrics  *metrics.Metrics
	retired  atomic.Bool
}

type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

func WithSettings(s *settings.Settings) Option {
	return func(co *Coordinator) {
		co.timeout = s.SafetyTimeout
		co.guard.debounce = s.Debounce
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(co *Coordinator) {
		co.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// NewCoordinator builds the coordinator of one conversation, with a fresh guard.
func NewCoordinator(sender backend.Sender, st *store.Store, scope messages.Scope, userID string, options ...Option) *Coordinator {
	d := settings.Defaults()
	ret := &Coordinator{
		sender:  sender,
		store:   st,
		scope:   scope,
		userID:  userID,
		guard:   NewGuard(nil, d.Debounce),
		clock:   clock.New(),
		timeout: d.SafetyTimeout,
	}
	for _, o := range options {
		o(ret)
	}
	ret.guard.clock = ret.clock
	ret.notifier = notify.OrLog(ret.notifier)
	return ret
}

func (c *Coordinator) Scope() messages.Scope {
	return c.scope
}

func (c *Coordinator) Guard() *Guard {
	return c.guard
}

// Retire detaches the coordinator from the store. A send still in flight
// finishes without touching the store, which now belongs to another scope.
func (c *Coordinator) Retire() {
	c.retired.Store(true)
}

func (c *Coordinator) reject(reason error) *Result {
	log.Debug().Err(reason).Str("scope", c.scope.String()).Msg("send rejected")
	c.metrics.ObserveSend(string(OutcomeRejected))
	return &Result{Outcome: OutcomeRejected, Reason: reason}
}

// Send runs one send. It never returns an error: every outcome, including
// rejection by the guard, is described by the Result. composer may be nil.
func (c *Coordinator) Send(ctx context.Context, input Input, composer Composer) *Result {
	if input.IsEmpty() {
		return c.reject(ErrEmptyInput)
	}
	caption := strings.TrimSpace(input.Text)
	wire, err := messages.EncodeWireText(caption, input.Attachment)
	if err != nil {
		return c.reject(err)
	}
	if c.retired.Load() {
		return c.reject(errors.New("conversation is no longer active"))
	}
	if err := c.guard.TryAcquire(); err != nil {
		return c.reject(err)
	}
	defer c.guard.Release()

	now := c.clock.Now()
	localID := messages.LocalID(now)
	user := messages.Message{
		ID:         localID,
		Scope:      c.scope,
		UserText:   caption,
		CreatedAt:  now.UTC().Format(time.RFC3339Nano),
		Timestamp:  now.UnixMilli(),
		Attachment: input.Attachment,
		Local:      true,
	}
	user.Kind = messages.DiscriminateKind(&user)
	placeholderID := messages.PlaceholderID(localID)
	c.store.Append(user, messages.NewPlaceholder(placeholderID, c.scope, now.UnixMilli()))
	if composer != nil {
		composer.SetText("")
	}

	logger := log.With().Str("scope", c.scope.String()).Str("local_id", localID).Logger()

	timer := c.clock.AfterFunc(c.timeout, func() {
		if c.retired.Load() {
			return
		}
		if removed := c.removePlaceholder(placeholderID); len(removed) > 0 {
			logger.Warn().Dur("timeout", c.timeout).Msg("no reply in time, removed composing placeholder")
			c.metrics.ObservePlaceholderTimeout()
		}
	})

	dto, err := c.sender.SendMessage(ctx, c.userID, wire, backend.FilterFor(c.scope))
	timer.Stop()

	result := &Result{UserRecord: user, Err: err}
	switch {
	case err == nil:
		result.Outcome = OutcomeReconciled
		result.AssistantRecord = c.reconcile(dto, localID, placeholderID, logger)

	case errors.Is(err, backend.ErrMalformedResponse):
		// the backend took the message, only its reply is unreadable
		result.Outcome = OutcomeReconciled
		result.AssistantRecord = c.reconcile(nil, localID, placeholderID, logger)

	case backend.IsDuplicate(err):
		result.Outcome = OutcomeDuplicate
		logger.Debug().Err(err).Msg("backend already accepted this message")
		c.removePlaceholder(placeholderID)

	default:
		result.Outcome = OutcomeFailed
		logger.Warn().Err(err).Msg("send failed, rolling back")
		if !c.retired.Load() {
			c.store.RemoveWhere(func(m *messages.Message) bool {
				return m.ID == localID || m.ID == placeholderID
			})
		}
		if composer != nil {
			composer.SetText(input.Text)
		}
		kind := notify.KindSendFailed
		if backend.IsRateLimited(err) {
			kind = notify.KindRateLimited
		}
		c.notifier.Notify(notify.New(kind, err))
	}

	c.metrics.ObserveSend(string(result.Outcome))
	return result
}

// removePlaceholder removes the placeholder by id, else by the composing pattern.
func (c *Coordinator) removePlaceholder(id string) []string {
	if c.retired.Load() {
		return nil
	}
	if c.store.Remove(id) {
		return []string{id}
	}
	return c.store.RemoveWhere(func(m *messages.Message) bool {
		return m.IsPlaceholder() && m.Scope.Equal(c.scope)
	})
}

func (c *Coordinator) reconcile(dto *backend.MessageDTO, localID, placeholderID string, logger zerolog.Logger) *messages.Message {
	c.removePlaceholder(placeholderID)

	now := c.clock.Now()
	var reply messages.Message
	if err := backend.ValidateSendResponse(dto); err != nil {
		logger.Warn().Err(err).Msg("unusable reply, showing a diagnostic record")
		reply = messages.Message{
			ID:            messages.DiagnosticID(localID),
			Scope:         c.scope,
			AssistantText: DiagnosticText,
			Timestamp:     now.UnixMilli(),
			Kind:          messages.KindPlain,
			Local:         true,
			Diagnostic:    true,
		}
	} else {
		reply = backend.AssistantRecord(dto, c.scope, now)
	}

	if c.retired.Load() {
		return &reply
	}
	if stored, ok := c.store.Get(reply.ID); ok {
		// a reload already brought the exchange, it supersedes the optimistic user record
		c.store.Remove(localID)
		return &stored
	}
	c.store.Append(reply)
	return &reply
}
