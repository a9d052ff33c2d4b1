package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// ErrCheckFailed wraps every transient failure of an essay check.
var ErrCheckFailed = errors.New("checker: essay check failed")

type Client struct {
	api             openai.Client
	Model           string
	MaxOutputTokens int64
	Instructions    string
}

// NewClient builds a Responses API client. An empty baseURL keeps the SDK
// default endpoint.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &Client{
		api:             openai.NewClient(append(base, opts...)...),
		Model:           model,
		MaxOutputTokens: 3800,
		Instructions:    RubricPrompt,
	}
}

func userPrompt(topic, essay string) string {
	return fmt.Sprintf("TOPIC:\n%s\n\nESSAY:\n%s\n", topic, essay)
}

// reportText collects every output_text and refusal block of message items.
func reportText(resp *responses.Response) string {
	var parts []string
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, block := range item.AsMessage().Content {
			switch block.Type {
			case "output_text":
				if strings.TrimSpace(block.Text) != "" {
					parts = append(parts, block.Text)
				}
			case "refusal":
				if strings.TrimSpace(block.Refusal) != "" {
					parts = append(parts, block.Refusal)
				}
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Check sends topic and essay for grading and returns the score report.
func (c *Client) Check(ctx context.Context, topic, essay string) (string, error) {
	resp, err := c.api.Responses.New(ctx, responses.ResponseNewParams{
		Model:           shared.ResponsesModel(c.Model),
		Instructions:    openai.String(c.Instructions),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(userPrompt(topic, essay))},
		Reasoning:       shared.ReasoningParam{Effort: shared.ReasoningEffortLow},
		MaxOutputTokens: openai.Int(c.MaxOutputTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	text := reportText(resp)
	if text == "" {
		if resp.Error.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrCheckFailed, resp.Error.Message)
		}
		return "", fmt.Errorf("%w: empty report (status %q)", ErrCheckFailed, resp.Status)
	}
	return text, nil
}
