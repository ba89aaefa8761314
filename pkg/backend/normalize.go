package backend

import (
	"strings"
	"time"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

func audio(id FlexString, data string, duration float64, format string) *messages.Audio {
	a := &messages.Audio{
		AudioID:  id.String(),
		Data:     data,
		Duration: duration,
		Format:   format,
	}
	if a.IsZero() {
		return nil
	}
	return a
}

// Normalize turns a history DTO into a message record. The attachment tag is
// split from the user text and the kind is decided here, once.
func Normalize(dto *MessageDTO, now time.Time) messages.Message {
	caption, att := messages.DecodeWireText(dto.Message)
	m := messages.Message{
		ID:            dto.ID.String(),
		Scope:         messages.ScopeOf(dto.AgentID.String(), dto.ChatboxID.String()),
		UserText:      caption,
		AssistantText: dto.Response,
		CreatedAt:     dto.CreatedAt.String(),
		Timestamp:     messages.SafeTimestamp(dto.CreatedAt.String(), now),
		Attachment:    att,
		VoiceInput:    audio(dto.AudioID, dto.AudioData, dto.Duration, dto.AudioFormat),
		VoiceResponse: audio(dto.AudioResponseID, dto.AudioResponseData, dto.AudioResponseDuration, dto.AudioResponseFormat),
	}
	m.Kind = messages.DiscriminateKind(&m)
	return m
}

// AssistantRecord builds the record appended after a successful send. It only
// carries the assistant side; the user side is already in the store.
func AssistantRecord(dto *MessageDTO, scope messages.Scope, now time.Time) messages.Message {
	ts := messages.SafeTimestamp(dto.CreatedAt.String(), now)
	if ts == 0 {
		ts = now.UnixMilli()
	}
	m := messages.Message{
		ID:            dto.ID.String(),
		Scope:         scope,
		AssistantText: strings.TrimSpace(dto.Response),
		CreatedAt:     dto.CreatedAt.String(),
		Timestamp:     ts,
		VoiceResponse: audio(dto.AudioResponseID, dto.AudioResponseData, dto.AudioResponseDuration, dto.AudioResponseFormat),
	}
	m.Kind = messages.DiscriminateKind(&m)
	return m
}
