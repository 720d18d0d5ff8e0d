package llm

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxchat/internal/session"
)

const DefaultModel = "gpt-3.5-turbo"

type Config struct {
	APIKey  string
	BaseURL string // any OpenAI-compatible endpoint; empty means api.openai.com

	// HTTPClient overrides the transport, e.g. a SOCKS client.
	HTTPClient *http.Client

	// SystemPrompt, when set, is sent ahead of the history on every request.
	SystemPrompt string
}

// Client is the completion service backed by the chat completions API.
type Client struct {
	api    openai.Client
	system string
}

func New(cfg Config, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	opts = append(opts, extra...)

	return &Client{
		api:    openai.NewClient(opts...),
		system: cfg.SystemPrompt,
	}
}

// Complete sends the whole history to model and returns the first choice.
func (c *Client) Complete(ctx context.Context, model string, history []session.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if c.system != "" {
		msgs = append(msgs, openai.SystemMessage(c.system))
	}
	for _, t := range history {
		switch t.Role {
		case session.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	log.Debug("Completion", "model", resp.Model, "tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}

// Models lists the identifiers offered in the language-model picker.
func Models() []string {
	return []string{
		DefaultModel,
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		openai.ChatModelGPT5Nano,
		"gpt-5-mini",
		"gpt-5",
	}
}
