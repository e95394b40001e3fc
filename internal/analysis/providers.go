package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"

	"tapline/internal/config"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// chatModel adapts a langchaingo model to Model.
type chatModel struct {
	llm llms.Model
}

func (m chatModel) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	var opts []llms.CallOption
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	resp, err := m.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// NewAnthropic returns a Model backed by the Anthropic messages API.
func NewAnthropic(apiKey, model string) (Model, error) {
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("anthropic client: %w", err)
	}
	return chatModel{llm: llm}, nil
}

// NewBedrock returns a Model backed by AWS Bedrock. Empty static keys fall
// back to the default credential chain.
func NewBedrock(ctx context.Context, region, model, accessKey, secretKey string) (Model, error) {
	if !strings.HasPrefix(model, "anthropic.") && !strings.Contains(model, ".anthropic.") {
		model = defaultBedrockModel
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	llm, err := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("bedrock client: %w", err)
	}
	return chatModel{llm: llm}, nil
}

// NewModel selects the provider named in the config. It returns a nil Model
// when the provider is skip or the Anthropic key is the skip sentinel.
func NewModel(ctx context.Context, cfg config.ModelConfig, secrets config.Secrets) (Model, error) {
	switch cfg.Provider {
	case config.Skip:
		return nil, nil
	case "bedrock":
		region := cfg.BedrockRegion
		if secrets.AWSRegion != "" {
			region = secrets.AWSRegion
		}
		return NewBedrock(ctx, region, cfg.Name, secrets.BedrockAccessKeyID, secrets.BedrockSecretAccessKey)
	default:
		if config.Skipped(secrets.AnthropicAPIKey) {
			return nil, nil
		}
		return NewAnthropic(secrets.AnthropicAPIKey, cfg.Name)
	}
}
