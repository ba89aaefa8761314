package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindHistoryFailed Kind = "history-failed"
	KindSendFailed    Kind = "send-failed"
	KindRateLimited   Kind = "rate-limited"
	KindDeleteFailed  Kind = "delete-failed"
)

// Notification is a user-visible failure. Key selects the localized text in
// the renderer's tables, Text is the English fallback.
type Notification struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
	Text string `json:"text"`
	// Detail is the underlying error message, for logs and debugging UIs.
	Detail string `json:"detail,omitempty"`
}

var defaults = map[Kind]Notification{
	KindHistoryFailed: {Key: "chat.error.history", Text: "Could not load messages. Pull to retry."},
	KindSendFailed:    {Key: "chat.error.send", Text: "Your message could not be sent. Please try again."},
	KindRateLimited:   {Key: "chat.error.rate_limited", Text: "You are sending messages too quickly. Please wait a moment and try again."},
	KindDeleteFailed:  {Key: "chat.error.delete", Text: "The message could not be deleted. Please try again."},
}

// New builds the notification for kind, attaching err as detail.
func New(kind Kind, err error) Notification {
	n := defaults[kind]
	n.Kind = kind
	if err != nil {
		n.Detail = err.Error()
	}
	return n
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	log.Warn().
		Str("kind", string(n.Kind)).
		Str("key", n.Key).
		Str("detail", n.Detail).
		Msg(n.Text)
}

// Recorder keeps every notification it receives. It is used by headless
// drivers and tests to inspect what a user would have seen.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]Notification, len(r.seen))
	copy(ret, r.seen)
	return ret
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = nil
}

// OrLog returns n, or a LogNotifier when n is nil.
func OrLog(n Notifier) Notifier {
	if n == nil {
		return LogNotifier{}
	}
	return n
}
