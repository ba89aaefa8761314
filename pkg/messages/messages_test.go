package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestSafeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"rfc3339", "2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{"rfc3339 nano", "2024-05-01T10:00:00.250+02:00", time.Date(2024, 5, 1, 8, 0, 0, 250_000_000, time.UTC).UnixMilli()},
		{"sql", "2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{"no zone", "2024-05-01T10:00:00.123456", time.Date(2024, 5, 1, 10, 0, 0, 123_456_000, time.UTC).UnixMilli()},
		{"unix seconds", "1714557600", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{"unix millis", "1714557600000", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{"empty", "", 0},
		{"garbage", "yesterday-ish", 0},
		{"before 1990", "1989-12-31T23:59:59Z", 0},
		{"far future", "2030-01-01T00:00:00Z", 0},
		{"near future", "2026-03-01T00:00:00Z", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeTimestamp(tt.raw, testNow))
		})
	}
}

func TestSortByTimestampIsStable(t *testing.T) {
	records := []Message{
		{ID: "a", Timestamp: 20},
		{ID: "b", Timestamp: 0},
		{ID: "c", Timestamp: 10},
		{ID: "d", Timestamp: 0},
	}
	SortByTimestamp(records)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []string{"b", "d", "c", "a"}, ids)
}

func TestDedupeByIDFirstWinsAndDropsStale(t *testing.T) {
	records := []Message{
		{ID: "1", UserText: "first"},
		{ID: "2", AssistantText: "x"},
		{ID: "1", UserText: "second"},
		{ID: "3"},
		{ID: "4", UserText: "  ", AssistantText: ""},
	}
	out := DedupeByID(records)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].UserText)
	assert.Equal(t, "2", out[1].ID)
}

func TestScopeParseAndMatch(t *testing.T) {
	s, err := ParseScope("agent:7")
	require.NoError(t, err)
	assert.Equal(t, Agent("7"), s)
	assert.Equal(t, "agent:7", s.String())
	assert.True(t, s.Matches("7", ""))
	assert.True(t, s.Matches("7", "4"))
	assert.False(t, Chatbox("4").Matches("7", "4"))
	assert.False(t, s.Matches("", ""))

	s, err = ParseScope("general")
	require.NoError(t, err)
	assert.True(t, s.IsGeneral())
	assert.True(t, s.Matches("", ""))
	assert.False(t, s.Matches("", "4"))
	assert.True(t, Scope{}.Equal(General()))

	_, err = ParseScope("chatbox:")
	require.True(t, errors.Is(err, ErrInvalidScope))
	_, err = ParseScope("room:1")
	require.True(t, errors.Is(err, ErrInvalidScope))
}

func TestCompareIDs(t *testing.T) {
	assert.Equal(t, 1, CompareIDs("10", "9"))
	assert.Equal(t, -1, CompareIDs("abc", "abd"))
	assert.Equal(t, 0, CompareIDs("42", "42"))
	// mixed falls back to lexicographic
	assert.Equal(t, 1, CompareIDs("local-1", "10"))
}

func TestWireTextRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		att     *Attachment
		wire    string
	}{
		{"plain", " hello ", nil, "hello"},
		{"image", "look", &Attachment{Kind: AttachmentImage, Payload: "aGVsbG8="}, "[IMAGE:aGVsbG8=] look"},
		{"document", "", &Attachment{Kind: AttachmentDocument, FileName: "report.pdf", Payload: "UEQ="}, "[DOCUMENT:report.pdf|UEQ=]"},
		{"voice", "hi", &Attachment{Kind: AttachmentVoice, MediaType: "audio/m4a", Payload: "QQ=="}, "[VOICE:m4a|QQ==] hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := EncodeWireText(tt.caption, tt.att)
			require.NoError(t, err)
			assert.Equal(t, tt.wire, wire)

			caption, att := DecodeWireText(wire)
			assert.Equal(t, strings.TrimSpace(tt.caption), caption)
			if tt.att == nil {
				assert.Nil(t, att)
				return
			}
			require.NotNil(t, att)
			assert.Equal(t, tt.att.Kind, att.Kind)
			assert.Equal(t, tt.att.Payload, att.Payload)
			assert.Equal(t, tt.att.FileName, att.FileName)
		})
	}
}

func TestEncodeRejectsReservedCharacters(t *testing.T) {
	_, err := EncodeWireText("x", &Attachment{Kind: AttachmentImage, Payload: "ab]cd"})
	require.True(t, errors.Is(err, ErrInvalidAttachment))
	_, err = EncodeWireText("x", &Attachment{Kind: AttachmentDocument, FileName: "a|b", Payload: "cd"})
	require.True(t, errors.Is(err, ErrInvalidAttachment))
	_, err = EncodeWireText("x", &Attachment{Kind: AttachmentImage})
	require.True(t, errors.Is(err, ErrInvalidAttachment))
}

func TestDecodeMalformedTagIsPlainText(t *testing.T) {
	caption, att := DecodeWireText("[IMAGE:no closing bracket")
	assert.Nil(t, att)
	assert.Equal(t, "[IMAGE:no closing bracket", caption)

	caption, att = DecodeWireText("[DOCUMENT:nopipe] text")
	assert.Nil(t, att)
	assert.Equal(t, "[DOCUMENT:nopipe] text", caption)
}

func TestDiscriminateKind(t *testing.T) {
	assert.Equal(t, KindPlain, DiscriminateKind(&Message{UserText: "x"}))
	assert.Equal(t, KindImageAttachment, DiscriminateKind(&Message{Attachment: &Attachment{Kind: AttachmentImage, Payload: "p"}}))
	assert.Equal(t, KindDocumentAttachment, DiscriminateKind(&Message{Attachment: &Attachment{Kind: AttachmentDocument, Payload: "p"}}))
	assert.Equal(t, KindVoiceOriginal, DiscriminateKind(&Message{VoiceInput: &Audio{AudioID: "a1"}}))
	assert.Equal(t, KindVoiceResponse, DiscriminateKind(&Message{AssistantText: "hi", VoiceResponse: &Audio{Data: "QQ=="}}))

	ph := NewPlaceholder(PlaceholderID(LocalID(testNow)), General(), 1)
	assert.Equal(t, KindPlaceholder, DiscriminateKind(&ph))
	assert.True(t, ph.IsPlaceholder())
	assert.False(t, ph.IsStale())
}

func TestNewFileAttachment(t *testing.T) {
	att := NewFileAttachment(AttachmentDocument, "/tmp/reports/q1.pdf", []byte("%PDF"))
	assert.Equal(t, "q1.pdf", att.FileName)
	assert.Equal(t, "application/pdf", att.MediaType)
	assert.Equal(t, "JVBERg==", att.Payload)

	wire, err := EncodeWireText("numbers", att)
	require.NoError(t, err)
	assert.Equal(t, "[DOCUMENT:q1.pdf|JVBERg==] numbers", wire)

	voice := NewFileAttachment(AttachmentVoice, "note.wav", []byte{1, 2})
	assert.Equal(t, "AQI=", voice.Payload)
	assert.NotEmpty(t, voice.Format())
}
