package reasoning

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic calls the Claude Messages API at temperature 0.
type Anthropic struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

func NewAnthropic(cfg *AnthropicConfig) *Anthropic {
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return NewAnthropicWithClient(&client.Messages, cfg)
}

func NewAnthropicWithClient(msg MessagesClient, cfg *AnthropicConfig) *Anthropic {
	return &Anthropic{
		msg:       msg,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

func (a *Anthropic) Chat(ctx context.Context, prompt string) (string, error) {
	return a.send(ctx, sdk.NewTextBlock(prompt))
}

// Vision sends each data URI as a base64 image block ahead of the prompt.
func (a *Anthropic) Vision(ctx context.Context, prompt string, images []string) (string, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(images)+1)
	for _, uri := range images {
		mediaType, data, err := splitDataURI(uri)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, sdk.NewImageBlockBase64(mediaType, data))
	}
	blocks = append(blocks, sdk.NewTextBlock(prompt))
	return a.send(ctx, blocks...)
}

func (a *Anthropic) send(ctx context.Context, blocks ...sdk.ContentBlockParamUnion) (string, error) {
	msg, err := a.msg.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: sdk.Float(0),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return content(b.String())
}

// splitDataURI returns the media type and base64 payload of a data URI.
func splitDataURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", fmt.Errorf("invalid data uri")
	}
	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("invalid data uri")
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("data uri is not base64 encoded")
	}
	return mediaType, data, nil
}
