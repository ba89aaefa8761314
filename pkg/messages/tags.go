package messages

import (
	"encoding/base64"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// The backend carries attachments inside the message text as reserved bracket
// tags followed by the caption:
//
//	[IMAGE:<payload>] caption
//	[DOCUMENT:<fileName>|<payload>] caption
//	[VOICE:<format>|<payload>] caption
//
// The tag ends at the first ']', so no field may contain ']' or '|'.

const (
	tagImage    = "[IMAGE:"
	tagDocument = "[DOCUMENT:"
	tagVoice    = "[VOICE:"
)

var ErrInvalidAttachment = errors.New("invalid attachment")

func checkTagField(name, v string, required bool) error {
	if required && v == "" {
		return errors.Wrapf(ErrInvalidAttachment, "%s is empty", name)
	}
	if strings.ContainsAny(v, "]|") {
		return errors.Wrapf(ErrInvalidAttachment, "%s contains a reserved character", name)
	}
	return nil
}

// EncodeWireText renders an outgoing message. Without an attachment the
// caption is sent as is.
func EncodeWireText(caption string, att *Attachment) (string, error) {
	caption = strings.TrimSpace(caption)
	if att == nil {
		return caption, nil
	}
	if err := checkTagField("payload", att.Payload, true); err != nil {
		return "", err
	}

	var b strings.Builder
	switch att.Kind {
	case AttachmentImage:
		b.WriteString(tagImage)
		b.WriteString(att.Payload)
	case AttachmentDocument:
		if err := checkTagField("file name", att.FileName, true); err != nil {
			return "", err
		}
		b.WriteString(tagDocument)
		b.WriteString(att.FileName)
		b.WriteString("|")
		b.WriteString(att.Payload)
	case AttachmentVoice:
		if err := checkTagField("format", att.Format(), false); err != nil {
			return "", err
		}
		b.WriteString(tagVoice)
		b.WriteString(att.Format())
		b.WriteString("|")
		b.WriteString(att.Payload)
	default:
		return "", errors.Wrapf(ErrInvalidAttachment, "unknown kind %q", att.Kind)
	}
	b.WriteString("]")
	if caption != "" {
		b.WriteString(" ")
		b.WriteString(caption)
	}
	return b.String(), nil
}

// NewFileAttachment wraps file content as a base64 payload. The media type is
// guessed from the file extension.
func NewFileAttachment(kind AttachmentKind, path string, content []byte) *Attachment {
	ext := filepath.Ext(path)
	mediaType := mime.TypeByExtension(ext)
	if mt, _, ok := strings.Cut(mediaType, ";"); ok {
		mediaType = mt
	}
	if mediaType == "" && kind == AttachmentVoice {
		mediaType = "audio/" + strings.TrimPrefix(ext, ".")
	}
	return &Attachment{
		Kind:      kind,
		FileName:  filepath.Base(path),
		MediaType: mediaType,
		Payload:   base64.StdEncoding.EncodeToString(content),
	}
}

// Format is the audio format of a voice attachment, taken from its media type.
func (a *Attachment) Format() string {
	_, format, ok := strings.Cut(a.MediaType, "/")
	if !ok {
		return a.MediaType
	}
	return format
}

// DecodeWireText splits a leading attachment tag from the caption. Text
// without a well formed tag is returned unchanged with a nil attachment.
func DecodeWireText(text string) (string, *Attachment) {
	trimmed := strings.TrimLeft(text, " \t\n")
	var kind AttachmentKind
	var prefix string
	switch {
	case strings.HasPrefix(trimmed, tagImage):
		kind, prefix = AttachmentImage, tagImage
	case strings.HasPrefix(trimmed, tagDocument):
		kind, prefix = AttachmentDocument, tagDocument
	case strings.HasPrefix(trimmed, tagVoice):
		kind, prefix = AttachmentVoice, tagVoice
	default:
		return text, nil
	}

	body := trimmed[len(prefix):]
	end := strings.IndexByte(body, ']')
	if end < 0 {
		return text, nil
	}
	caption := strings.TrimSpace(body[end+1:])
	body = body[:end]

	att := &Attachment{Kind: kind, Caption: caption}
	switch kind {
	case AttachmentImage:
		att.Payload = body
	case AttachmentDocument:
		name, payload, ok := cutLast(body, "|")
		if !ok {
			return text, nil
		}
		att.FileName, att.Payload = name, payload
	case AttachmentVoice:
		format, payload, ok := cutLast(body, "|")
		if !ok {
			return text, nil
		}
		att.Payload = payload
		if format != "" {
			att.MediaType = "audio/" + format
		}
	}
	if att.Payload == "" {
		return text, nil
	}
	return caption, att
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}
