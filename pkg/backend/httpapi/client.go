// Package httpapi speaks the chat backend contract over HTTP. Client is the
// engine side; NewHandler exposes any backend.Backend with the same routes.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatsync/pkg/backend"
)

const messagesPath = "/api/messages"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ backend.Backend = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	AgentID   string `json:"agent_id,omitempty"`
	ChatboxID string `json:"chatbox_id,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func filterQuery(q url.Values, filter backend.ScopeFilter) {
	switch {
	case filter.AgentID != "":
		q.Set("agent_id", filter.AgentID)
	case filter.ChatboxID != "":
		q.Set("chatbox_id", filter.ChatboxID)
	case filter.GeneralOnly:
		q.Set("general", "true")
	}
}

// doRequest performs a JSON request. Non-2xx answers become *backend.APIError,
// undecodable 2xx bodies wrap backend.ErrMalformedResponse.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		body = bytes.NewReader(b)
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func(b io.ReadCloser) {
		_ = b.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read response")
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		return &backend.APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(backend.ErrMalformedResponse, err.Error())
	}
	return nil
}

func (c *Client) FetchMessages(ctx context.Context, userID string, offset, limit int, filter backend.ScopeFilter) (*backend.FetchResponse, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	filterQuery(q, filter)

	ret := &backend.FetchResponse{}
	if err := c.doRequest(ctx, http.MethodGet, messagesPath, q, nil, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) SendMessage(ctx context.Context, userID string, text string, filter backend.ScopeFilter) (*backend.MessageDTO, error) {
	req := sendRequest{
		UserID:    userID,
		Message:   text,
		AgentID:   filter.AgentID,
		ChatboxID: filter.ChatboxID,
	}
	ret := &backend.MessageDTO{}
	if err := c.doRequest(ctx, http.MethodPost, messagesPath, nil, req, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string, userID string) error {
	q := url.Values{}
	q.Set("user_id", userID)
	return c.doRequest(ctx, http.MethodDelete, messagesPath+"/"+url.PathEscape(messageID), q, nil, nil)
}
