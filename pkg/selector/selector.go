// Package selector maps navigation intents to the single active conversation scope.
package selector

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

var ErrInvalidIntent = errors.New("invalid conversation intent")

type IntentKind string

const (
	OpenAgent   IntentKind = "open-agent"
	OpenChatbox IntentKind = "open-chatbox"
	OpenGeneral IntentKind = "open-general"
)

// Intent is a request to make a conversation active. ID is ignored for OpenGeneral.
type Intent struct {
	Kind IntentKind
	ID   string
}

func IntentFor(s messages.Scope) Intent {
	switch s.Kind {
	case messages.ScopeAgent:
		return Intent{Kind: OpenAgent, ID: s.ID}
	case messages.ScopeChatbox:
		return Intent{Kind: OpenChatbox, ID: s.ID}
	default:
		return Intent{Kind: OpenGeneral}
	}
}

func (i Intent) Scope() (messages.Scope, error) {
	var ret messages.Scope
	switch i.Kind {
	case OpenAgent:
		ret = messages.Agent(i.ID)
	case OpenChatbox:
		ret = messages.Chatbox(i.ID)
	case OpenGeneral:
		return messages.General(), nil
	default:
		return messages.Scope{}, errors.Wrapf(ErrInvalidIntent, "unknown kind %q", i.Kind)
	}
	if err := ret.Validate(); err != nil {
		return messages.Scope{}, errors.Wrap(ErrInvalidIntent, err.Error())
	}
	return ret, nil
}

// Change describes the outcome of applying an intent. Generation is the
// selector generation after the apply.
type Change struct {
	Prev       messages.Scope
	Next       messages.Scope
	Changed    bool
	Generation uint64
}

type ResetHook func(Change)

// Selector holds the active scope. The zero value is not usable, use New.
type Selector struct {
	// applyMu orders whole Apply calls, hooks included.
	applyMu    sync.Mutex
	mu         sync.Mutex
	current    messages.Scope
	generation uint64
	hooks      []ResetHook
}

func New() *Selector {
	return &Selector{current: messages.General()}
}

// OnChange registers a hook run after every scope change, in registration order.
func (s *Selector) OnChange(h ResetHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Current returns the active scope and its generation.
func (s *Selector) Current() (messages.Scope, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.generation
}

// IsCurrent reports whether a load issued for (scope, generation) is still wanted.
func (s *Selector) IsCurrent(scope messages.Scope, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == generation && s.current.Equal(scope)
}

// Apply makes the intent's scope active. Applying the active scope again is a no-op.
// Hooks of concurrent Apply calls run in generation order. A hook must not call Apply.
func (s *Selector) Apply(intent Intent) (Change, error) {
	next, err := intent.Scope()
	if err != nil {
		return Change{}, err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	change := Change{Prev: s.current, Next: next, Generation: s.generation}
	if s.current.Equal(next) {
		s.mu.Unlock()
		return change, nil
	}
	s.generation++
	s.current = next
	change.Changed = true
	change.Generation = s.generation
	hooks := make([]ResetHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	log.Debug().
		Str("from", change.Prev.String()).
		Str("to", change.Next.String()).
		Uint64("generation", change.Generation).
		Msg("conversation scope changed")

	for _, h := range hooks {
		h(change)
	}
	return change, nil
}
