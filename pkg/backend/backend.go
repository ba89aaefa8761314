// Package backend describes the chat backend contract consumed by the engine:
// fetching a page of history, sending a message and deleting one.
//
// Implementations live in the httpapi (HTTP client) and memory (in-process
// fake) subpackages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

// FlexString decodes JSON strings, numbers and null into a string. Backends
// are not consistent about the type of ids and dates.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrapf(err, "expected string or number, got %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// MessageDTO is one exchange as the backend stores it: the user message and
// the assistant response, with optional voice fields on both sides.
type MessageDTO struct {
	ID        FlexString `json:"id"`
	Message   string     `json:"message"`
	Response  string     `json:"response,omitempty"`
	UserID    FlexString `json:"user_id,omitempty"`
	AgentID   FlexString `json:"agent_id,omitempty"`
	ChatboxID FlexString `json:"chatbox_id,omitempty"`
	CreatedAt FlexString `json:"created_at,omitempty"`

	AudioID     FlexString `json:"audio_id,omitempty"`
	AudioData   string     `json:"audio_data,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	AudioFormat string     `json:"audio_format,omitempty"`

	AudioResponseID       FlexString `json:"audio_response_id,omitempty"`
	AudioResponseData     string     `json:"audio_response_data,omitempty"`
	AudioResponseDuration float64    `json:"audio_response_duration,omitempty"`
	AudioResponseFormat   string     `json:"audio_response_format,omitempty"`
}

type FetchResponse struct {
	Messages []MessageDTO `json:"messages"`
}

// ScopeFilter is the backend side of a scope key. The zero value asks for
// every message of the user.
type ScopeFilter struct {
	AgentID     string
	ChatboxID   string
	GeneralOnly bool
}

func FilterFor(s messages.Scope) ScopeFilter {
	switch {
	case s.AgentID() != "":
		return ScopeFilter{AgentID: s.AgentID()}
	case s.ChatboxID() != "":
		return ScopeFilter{ChatboxID: s.ChatboxID()}
	default:
		return ScopeFilter{GeneralOnly: true}
	}
}

func (f ScopeFilter) IsAll() bool {
	return f == ScopeFilter{}
}

// Scope is the scope a send with this filter lands in.
func (f ScopeFilter) Scope() messages.Scope {
	return messages.ScopeOf(f.AgentID, f.ChatboxID)
}

// Matches reports whether a DTO belongs to the filter.
func (f ScopeFilter) Matches(dto *MessageDTO) bool {
	if f.IsAll() {
		return true
	}
	return f.Scope().Matches(dto.AgentID.String(), dto.ChatboxID.String())
}

type Fetcher interface {
	FetchMessages(ctx context.Context, userID string, offset, limit int, filter ScopeFilter) (*FetchResponse, error)
}

type Sender interface {
	SendMessage(ctx context.Context, userID string, text string, filter ScopeFilter) (*MessageDTO, error)
}

type Deleter interface {
	DeleteMessage(ctx context.Context, messageID string, userID string) error
}

type Backend interface {
	Fetcher
	Sender
	Deleter
}
