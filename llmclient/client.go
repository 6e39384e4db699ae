package llmclient

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/smallnest/rlmcore/rlmerrors"
	"github.com/smallnest/rlmcore/rlmlog"
)

// Message is one turn of a dialogue, independent of go-openai's wire type
// so callers (rlmengine) don't need to import it directly.
type Message struct {
	Role    string // "system", "user", "assistant", "tool"
	Content string
}

// backoffSchedule is the retry budget of spec §7: 3 attempts at
// 250ms -> 1s -> 4s.
var backoffSchedule = []time.Duration{250 * time.Millisecond, 1 * time.Second, 4 * time.Second}

// Client drives chat completions against a single OpenAI-style endpoint.
// RlmEngine holds two instances: one for the primary model, one for the
// sub-model llm_query() calls.
type Client struct {
	oai   *openai.Client
	model string
	log   rlmlog.Logger
}

// New creates a Client against baseURL (empty uses the default OpenAI
// endpoint) authenticating with apiKey, targeting model.
func New(baseURL, apiKey, model string, log rlmlog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{oai: openai.NewClientWithConfig(cfg), model: model, log: log}
}

// Complete requests a chat completion for the given dialogue, retrying
// transient failures per the spec §7 backoff schedule before surfacing
// rlmerrors.LlmUnavailable.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	}

	var lastErr error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		resp, err := c.oai.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &rlmerrors.LlmUnavailable{Model: c.model, Err: errNoChoices}
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err

		if attempt == len(backoffSchedule) {
			break
		}
		c.log.Warn("llmclient: completion attempt %d against %q failed: %v; retrying in %s", attempt+1, c.model, err, backoffSchedule[attempt])

		select {
		case <-ctx.Done():
			return "", &rlmerrors.LlmUnavailable{Model: c.model, Err: ctx.Err()}
		case <-time.After(backoffSchedule[attempt]):
		}
	}

	return "", &rlmerrors.LlmUnavailable{Model: c.model, Err: lastErr}
}

// QueryOnce is a single-shot completion for the sandbox's llm_query()
// primitive: one system turn plus one user turn, a fixed low token cap,
// no tools.
func (c *Client) QueryOnce(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: subModelMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Answer briefly and directly. No tools are available."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := c.oai.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &rlmerrors.LlmUnavailable{Model: c.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &rlmerrors.LlmUnavailable{Model: c.model, Err: errNoChoices}
	}
	return resp.Choices[0].Message.Content, nil
}

// subModelMaxTokens is the fixed, low token cap spec §4.5 names for
// llm_query: summarization/classification, not open-ended generation.
const subModelMaxTokens = 512

var errNoChoices = noChoicesError{}

type noChoicesError struct{}

func (noChoicesError) Error() string { return "llm response contained no choices" }

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
