package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/backend/memory"
)

func newTestServer(t *testing.T, b backend.Backend) *Client {
	srv := httptest.NewServer(NewHandler(b, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t, memory.New())

	dto, err := c.SendMessage(ctx, "u1", "hello", backend.ScopeFilter{AgentID: "7"})
	require.NoError(t, err)
	assert.Equal(t, "1", dto.ID.String())
	assert.Equal(t, "[agent:7] hello", dto.Response)
	assert.NoError(t, backend.ValidateSendResponse(dto))

	_, err = c.SendMessage(ctx, "u1", "general", backend.ScopeFilter{})
	require.NoError(t, err)

	resp, err := c.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{AgentID: "7"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Message)

	resp, err = c.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{GeneralOnly: true})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "general", resp.Messages[0].Message)

	require.NoError(t, c.DeleteMessage(ctx, dto.ID.String(), "u1"))
	resp, err = c.FetchMessages(ctx, "u1", 0, 10, backend.ScopeFilter{})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 1)
}

func TestClientErrorMapping(t *testing.T) {
	ctx := context.Background()
	c := newTestServer(t, memory.New(memory.WithRateLimit(1, time.Minute)))

	_, err := c.SendMessage(ctx, "u1", "once", backend.ScopeFilter{})
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, "u1", "once", backend.ScopeFilter{})
	require.Error(t, err)
	assert.True(t, backend.IsDuplicate(err))

	_, err = c.SendMessage(ctx, "u1", "twice", backend.ScopeFilter{})
	require.Error(t, err)
	assert.True(t, backend.IsRateLimited(err))

	err = c.DeleteMessage(ctx, "404", "u1")
	assert.Equal(t, http.StatusNotFound, backend.StatusOf(err))

	_, err = c.FetchMessages(ctx, "", 0, 10, backend.ScopeFilter{})
	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "user_id is required", apiErr.Message)
}

func TestClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages": [{"id": }`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchMessages(context.Background(), "u1", 0, 10, backend.ScopeFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrMalformedResponse))
}

func TestClientQueryParameters(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{"messages": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchMessages(context.Background(), "u1", 100, 50, backend.ScopeFilter{ChatboxID: "3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"user_id":    "u1",
		"offset":     "100",
		"limit":      "50",
		"chatbox_id": "3",
	}, got)
}
