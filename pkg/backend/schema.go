package backend

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema lets the reflector describe ids the way they arrive on the wire.
func (FlexString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "integer"},
		},
	}
}

// sendResponse is the part of a send response the engine cannot do without.
// A reply carries text, a voice response, or both.
type sendResponse struct {
	ID                FlexString `json:"id"`
	Response          string     `json:"response,omitempty"`
	AudioResponseID   FlexString `json:"audio_response_id,omitempty"`
	AudioResponseData string     `json:"audio_response_data,omitempty"`
}

var (
	sendSchemaOnce sync.Once
	sendSchema     *gojsonschema.Schema
	sendSchemaErr  error
)

func compiledSendSchema() (*gojsonschema.Schema, error) {
	sendSchemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			Anonymous:                 true,
			DoNotReference:            true,
			ExpandedStruct:            true,
			AllowAdditionalProperties: true,
		}
		s := r.Reflect(&sendResponse{})
		// gojsonschema does not know the 2020-12 draft the reflector announces
		s.Version = ""
		b, err := json.Marshal(s)
		if err != nil {
			sendSchemaErr = errors.Wrap(err, "could not marshal send response schema")
			return
		}
		sendSchema, sendSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	})
	return sendSchema, sendSchemaErr
}

// ValidateSendResponse checks that a send response can be turned into an
// assistant record. The error wraps ErrMalformedResponse.
func ValidateSendResponse(dto *MessageDTO) error {
	if dto == nil {
		return errors.Wrap(ErrMalformedResponse, "empty body")
	}
	if strings.TrimSpace(dto.ID.String()) == "" {
		return errors.Wrap(ErrMalformedResponse, "missing id")
	}

	schema, err := compiledSendSchema()
	if err != nil {
		return err
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(dto))
	if err != nil {
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}
	if !res.Valid() {
		descs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			descs = append(descs, e.String())
		}
		return errors.Wrap(ErrMalformedResponse, strings.Join(descs, "; "))
	}
	hasVoice := strings.TrimSpace(dto.AudioResponseID.String()) != "" || dto.AudioResponseData != ""
	if strings.TrimSpace(dto.Response) == "" && !hasVoice {
		return errors.Wrap(ErrMalformedResponse, "response has neither text nor voice")
	}
	return nil
}
