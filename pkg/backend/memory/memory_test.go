package memory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/messages"
)

func newTestBackend(options ...Option) (*Backend, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return New(append([]Option{WithClock(mock)}, options...)...), mock
}

func TestSendAndFetchByScope(t *testing.T) {
	ctx := context.Background()
	b, mock := newTestBackend()

	_, err := b.SendMessage(ctx, "u1", "hello general", backend.ScopeFilter{})
	require.NoError(t, err)
	mock.Add(time.Second)
	agentDTO, err := b.SendMessage(ctx, "u1", "hello agent", backend.ScopeFilter{AgentID: "7"})
	require.NoError(t, err)
	assert.Equal(t, "2", agentDTO.ID.String())
	assert.Equal(t, "[agent:7] hello agent", agentDTO.Response)
	assert.Equal(t, "7", agentDTO.AgentID.String())

	_, err = b.SendMessage(ctx, "u2", "other user", backend.ScopeFilter{AgentID: "7"})
	require.NoError(t, err)

	resp, err := b.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{AgentID: "7"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello agent", resp.Messages[0].Message)

	resp, err = b.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{GeneralOnly: true})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello general", resp.Messages[0].Message)

	resp, err = b.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 2)
}

func TestFetchPaging(t *testing.T) {
	ctx := context.Background()
	var seed []backend.MessageDTO
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		seed = append(seed, backend.MessageDTO{ID: backend.FlexString(id), UserID: "u1", Message: "m" + id})
	}
	b, _ := newTestBackend(WithMessages(seed...))

	resp, err := b.FetchMessages(ctx, "u1", 2, 2, backend.ScopeFilter{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "3", resp.Messages[0].ID.String())

	resp, err = b.FetchMessages(ctx, "u1", 10, 2, backend.ScopeFilter{})
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)

	_, err = b.FetchMessages(ctx, "u1", 0, 0, backend.ScopeFilter{})
	assert.Equal(t, http.StatusBadRequest, backend.StatusOf(err))

	dto, err := b.SendMessage(ctx, "u1", "next", backend.ScopeFilter{})
	require.NoError(t, err)
	assert.Equal(t, "6", dto.ID.String())
}

func TestDuplicateSendIsRejectedWithinWindow(t *testing.T) {
	ctx := context.Background()
	b, mock := newTestBackend(WithDuplicateWindow(2 * time.Second))

	_, err := b.SendMessage(ctx, "u1", "same", backend.ScopeFilter{})
	require.NoError(t, err)

	_, err = b.SendMessage(ctx, "u1", "same", backend.ScopeFilter{})
	require.Error(t, err)
	assert.True(t, backend.IsDuplicate(err))

	// same text in another conversation is fine
	_, err = b.SendMessage(ctx, "u1", "same", backend.ScopeFilter{ChatboxID: "3"})
	require.NoError(t, err)

	mock.Add(3 * time.Second)
	_, err = b.SendMessage(ctx, "u1", "same", backend.ScopeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	b, mock := newTestBackend(WithRateLimit(2, time.Minute))

	_, err := b.SendMessage(ctx, "u1", "one", backend.ScopeFilter{})
	require.NoError(t, err)
	_, err = b.SendMessage(ctx, "u1", "two", backend.ScopeFilter{})
	require.NoError(t, err)
	_, err = b.SendMessage(ctx, "u1", "three", backend.ScopeFilter{})
	require.Error(t, err)
	assert.True(t, backend.IsRateLimited(err))

	mock.Add(time.Minute)
	_, err = b.SendMessage(ctx, "u1", "three", backend.ScopeFilter{})
	require.NoError(t, err)
}

func TestEmptySendIsBadRequest(t *testing.T) {
	b, _ := newTestBackend()
	_, err := b.SendMessage(context.Background(), "u1", "   ", backend.ScopeFilter{})
	assert.Equal(t, http.StatusBadRequest, backend.StatusOf(err))
}

func TestResponderFailureIsBadGateway(t *testing.T) {
	b, _ := newTestBackend(WithResponder(ResponderFunc(
		func(context.Context, messages.Scope, []backend.MessageDTO, string) (string, error) {
			return "", assert.AnError
		})))
	_, err := b.SendMessage(context.Background(), "u1", "hi", backend.ScopeFilter{})
	assert.Equal(t, http.StatusBadGateway, backend.StatusOf(err))
	assert.Equal(t, 0, b.Len())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend()
	dto, err := b.SendMessage(ctx, "u1", "bye", backend.ScopeFilter{})
	require.NoError(t, err)

	err = b.DeleteMessage(ctx, dto.ID.String(), "u2")
	assert.Equal(t, http.StatusNotFound, backend.StatusOf(err))

	require.NoError(t, b.DeleteMessage(ctx, dto.ID.String(), "u1"))
	assert.Equal(t, 0, b.Len())
}

func TestEchoResponderDescribesAttachments(t *testing.T) {
	text, err := messages.EncodeWireText("look", &messages.Attachment{Kind: messages.AttachmentImage, Payload: "abc"})
	require.NoError(t, err)
	reply, err := EchoResponder{}.Respond(context.Background(), messages.Chatbox("3"), nil, text)
	require.NoError(t, err)
	assert.Equal(t, "[chatbox:3] received image attachment: look", reply)
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "hi from the model"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
}`

func TestOpenAIResponder(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	r := NewOpenAIResponder("test-key", srv.URL+"/v1", "test-model", WithHistoryTurns(1))
	history := []backend.MessageDTO{
		{Message: "old", Response: "older answer"},
		{Message: "recent", Response: "recent answer"},
	}
	reply, err := r.Respond(context.Background(), messages.General(), history, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi from the model", reply)
	assert.Equal(t, "/v1/chat/completions", gotPath)
}
