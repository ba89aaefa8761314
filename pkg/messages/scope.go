package messages

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type ScopeKind string

const (
	ScopeGeneral ScopeKind = "general"
	ScopeAgent   ScopeKind = "agent"
	ScopeChatbox ScopeKind = "chatbox"
)

var ErrInvalidScope = errors.New("invalid scope")

// Scope selects one conversation partition. The zero value is the general scope.
type Scope struct {
	Kind ScopeKind `json:"kind" yaml:"kind"`
	ID   string    `json:"id,omitempty" yaml:"id,omitempty"`
}

func General() Scope {
	return Scope{Kind: ScopeGeneral}
}

func Agent(id string) Scope {
	return Scope{Kind: ScopeAgent, ID: id}
}

func Chatbox(id string) Scope {
	return Scope{Kind: ScopeChatbox, ID: id}
}

func (s Scope) normalized() Scope {
	if s.Kind == "" {
		return General()
	}
	if s.Kind == ScopeGeneral {
		s.ID = ""
	}
	return s
}

func (s Scope) IsGeneral() bool {
	return s.normalized().Kind == ScopeGeneral
}

func (s Scope) Equal(o Scope) bool {
	return s.normalized() == o.normalized()
}

// AgentID returns the agent id, or "" when the scope is not agent bound.
func (s Scope) AgentID() string {
	if s.Kind == ScopeAgent {
		return s.ID
	}
	return ""
}

func (s Scope) ChatboxID() string {
	if s.Kind == ScopeChatbox {
		return s.ID
	}
	return ""
}

// Matches reports whether a record with the given owner ids belongs to the
// scope. It agrees with ScopeOf.
func (s Scope) Matches(agentID, chatboxID string) bool {
	return ScopeOf(agentID, chatboxID).Equal(s)
}

// ScopeOf derives the scope of a record from its owner ids. A record naming
// both an agent and a chatbox is attributed to the agent.
func ScopeOf(agentID, chatboxID string) Scope {
	switch {
	case agentID != "":
		return Agent(agentID)
	case chatboxID != "":
		return Chatbox(chatboxID)
	default:
		return General()
	}
}

func (s Scope) Validate() error {
	switch s.normalized().Kind {
	case ScopeGeneral:
		return nil
	case ScopeAgent, ScopeChatbox:
		if strings.TrimSpace(s.ID) == "" {
			return errors.Wrapf(ErrInvalidScope, "%s scope needs an id", s.Kind)
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidScope, "unknown kind %q", s.Kind)
	}
}

func (s Scope) String() string {
	s = s.normalized()
	if s.Kind == ScopeGeneral {
		return string(ScopeGeneral)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// ParseScope parses "general", "agent:<id>" or "chatbox:<id>".
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(ScopeGeneral) {
		return General(), nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, errors.Wrapf(ErrInvalidScope, "cannot parse %q", s)
	}
	ret := Scope{Kind: ScopeKind(kind), ID: strings.TrimSpace(id)}
	if ret.Kind != ScopeAgent && ret.Kind != ScopeChatbox {
		return Scope{}, errors.Wrapf(ErrInvalidScope, "cannot parse %q", s)
	}
	if err := ret.Validate(); err != nil {
		return Scope{}, err
	}
	return ret, nil
}
