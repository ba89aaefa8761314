package messages

import (
	"strings"
)

// Kind discriminates the shape of a message. It is decided once, when a record
// enters the engine, so renderers never have to sniff the text.
type Kind string

const (
	KindPlain              Kind = "plain"
	KindImageAttachment    Kind = "image"
	KindDocumentAttachment Kind = "document"
	KindVoiceOriginal      Kind = "voice-original"
	KindVoiceResponse      Kind = "voice-response"
	KindPlaceholder        Kind = "placeholder"
)

// ComposingSentinel is the assistant text of a placeholder record.
const ComposingSentinel = "…composing…"

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentVoice    AttachmentKind = "voice"
)

// Attachment is the structured form of the bracket-tag sentinels used on the wire.
type Attachment struct {
	Kind      AttachmentKind `json:"kind" yaml:"kind"`
	FileName  string         `json:"fileName,omitempty" yaml:"fileName,omitempty"`
	MediaType string         `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
	// Payload is the encoded (base64 or URL) content, carried opaquely.
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
}

type Audio struct {
	AudioID  string  `json:"audioID,omitempty" yaml:"audioID,omitempty"`
	Data     string  `json:"data,omitempty" yaml:"data,omitempty"`
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Format   string  `json:"format,omitempty" yaml:"format,omitempty"`
}

func (a *Audio) IsZero() bool {
	return a == nil || (a.AudioID == "" && a.Data == "")
}

// Message is one record of a conversation. A record coming from the backend
// carries both sides of an exchange; optimistic records carry one side.
type Message struct {
	ID            string `json:"id" yaml:"id"`
	Scope         Scope  `json:"scope" yaml:"scope"`
	UserText      string `json:"userText,omitempty" yaml:"userText,omitempty"`
	AssistantText string `json:"assistantText,omitempty" yaml:"assistantText,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	// Timestamp is the safe timestamp in unix milliseconds, 0 when CreatedAt was unusable.
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`
	Kind      Kind  `json:"kind" yaml:"kind"`

	Attachment    *Attachment `json:"attachment,omitempty" yaml:"attachment,omitempty"`
	VoiceInput    *Audio      `json:"voiceInput,omitempty" yaml:"voiceInput,omitempty"`
	VoiceResponse *Audio      `json:"voiceResponse,omitempty" yaml:"voiceResponse,omitempty"`

	Local      bool `json:"local,omitempty" yaml:"local,omitempty"`
	Diagnostic bool `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
}

// IsStale reports whether the record has nothing to show.
func (m *Message) IsStale() bool {
	return strings.TrimSpace(m.UserText) == "" &&
		strings.TrimSpace(m.AssistantText) == "" &&
		m.Attachment == nil &&
		m.VoiceInput.IsZero() &&
		m.VoiceResponse.IsZero()
}

// IsPlaceholder matches the composing pattern, independent of the id.
func (m *Message) IsPlaceholder() bool {
	return m.UserText == "" && m.AssistantText == ComposingSentinel
}

// DiscriminateKind picks the variant of a record from its populated fields.
func DiscriminateKind(m *Message) Kind {
	switch {
	case m.IsPlaceholder():
		return KindPlaceholder
	case m.Attachment != nil && m.Attachment.Kind == AttachmentImage:
		return KindImageAttachment
	case m.Attachment != nil && m.Attachment.Kind == AttachmentDocument:
		return KindDocumentAttachment
	case !m.VoiceInput.IsZero() || (m.Attachment != nil && m.Attachment.Kind == AttachmentVoice):
		return KindVoiceOriginal
	case !m.VoiceResponse.IsZero():
		return KindVoiceResponse
	default:
		return KindPlain
	}
}

func NewPlaceholder(id string, scope Scope, timestamp int64) Message {
	return Message{
		ID:            id,
		Scope:         scope,
		AssistantText: ComposingSentinel,
		Timestamp:     timestamp,
		Kind:          KindPlaceholder,
		Local:         true,
	}
}

// DedupeByID keeps the first occurrence of every id and drops stale records.
func DedupeByID(records []Message) []Message {
	seen := make(map[string]struct{}, len(records))
	ret := make([]Message, 0, len(records))
	for _, r := range records {
		if r.IsStale() {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		ret = append(ret, r)
	}
	return ret
}
