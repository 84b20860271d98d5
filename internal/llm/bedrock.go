package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConfig configures a BedrockClient. Explicit credentials are
// optional; when empty the AWS SDK's default credential chain applies, the
// same convention the model-discovery helper this client's construction is
// grounded on uses.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	MaxRetries      int
	RetryDelay      time.Duration
	DefaultModel    string
}

// BedrockClient is a non-streaming Client backed by the Bedrock Runtime
// Converse API, which unifies Anthropic/Meta/Amazon model families behind
// one request shape.
type BedrockClient struct {
	client       *bedrockruntime.Client
	retry        retrier
	defaultModel string
}

var _ Client = (*BedrockClient)(nil)

// NewBedrockClient builds a BedrockClient from config.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("llm: bedrock: loading aws config: %w", err)
	}

	return &BedrockClient{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the provider identifier used for routing and logging.
func (c *BedrockClient) Name() string { return "bedrock" }

// Complete sends req through the Converse API and returns the full
// response, retrying transient failures with linear backoff.
func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	return c.retry.Do(ctx, func() (Response, error) {
		return c.complete(ctx, req)
	})
}

func (c *BedrockClient) complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &types.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		if req.Temperature > 0 {
			cfg.Temperature = aws.Float32(float32(req.Temperature))
		}
		input.InferenceConfig = cfg
	}

	out, err := c.client.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock: %w", err)
	}

	var text string
	if msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text += textBlock.Value
			}
		}
	}

	var inputTokens, outputTokens int
	if out.Usage != nil {
		inputTokens = int(out.Usage.InputTokens)
		outputTokens = int(out.Usage.OutputTokens)
	}

	return Response{Text: text, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
}
