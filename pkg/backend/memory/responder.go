package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/chatsync/pkg/backend"
	"github.com/go-go-golems/chatsync/pkg/messages"
)

// Responder produces the assistant side of an exchange.
type Responder interface {
	Respond(ctx context.Context, scope messages.Scope, history []backend.MessageDTO, text string) (string, error)
}

type ResponderFunc func(ctx context.Context, scope messages.Scope, history []backend.MessageDTO, text string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, scope messages.Scope, history []backend.MessageDTO, text string) (string, error) {
	return f(ctx, scope, history, text)
}

// EchoResponder answers with the caption of the user message.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, scope messages.Scope, _ []backend.MessageDTO, text string) (string, error) {
	caption, att := messages.DecodeWireText(text)
	if att != nil {
		return fmt.Sprintf("[%s] received %s attachment: %s", scope, att.Kind, caption), nil
	}
	return fmt.Sprintf("[%s] %s", scope, caption), nil
}

// OpenAIResponder answers through an OpenAI compatible chat completion API.
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	systemPrompt string
	// historyTurns bounds how many previous exchanges are sent as context.
	historyTurns int
}

type OpenAIOption func(*OpenAIResponder)

func WithSystemPrompt(prompt string) OpenAIOption {
	return func(r *OpenAIResponder) {
		r.systemPrompt = prompt
	}
}

func WithHistoryTurns(n int) OpenAIOption {
	return func(r *OpenAIResponder) {
		r.historyTurns = n
	}
}

func NewOpenAIResponder(apiKey, baseURL, model string, options ...OpenAIOption) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	ret := &OpenAIResponder{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: "You are a helpful assistant.",
		historyTurns: 10,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (r *OpenAIResponder) Respond(ctx context.Context, scope messages.Scope, history []backend.MessageDTO, text string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("%s Conversation: %s.", r.systemPrompt, scope),
	}}

	if len(history) > r.historyTurns {
		history = history[len(history)-r.historyTurns:]
	}
	for _, h := range history {
		caption, _ := messages.DecodeWireText(h.Message)
		if caption != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: caption})
		}
		if h.Response != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: h.Response})
		}
	}

	caption, att := messages.DecodeWireText(text)
	if att != nil {
		caption = strings.TrimSpace(fmt.Sprintf("(the user attached a %s) %s", att.Kind, caption))
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: caption})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
