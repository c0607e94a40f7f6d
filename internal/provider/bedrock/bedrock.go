// Package bedrock implements a high-reasoning rewrite backend on AWS
// Bedrock, for deployments that keep model traffic inside AWS.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const maxOutputTokens = 8192

type Provider struct {
	client *bedrockruntime.Client
	region string
}

func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

func NewWithConfig(cfg aws.Config) *Provider {
	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: cfg.Region,
	}
}

func (p *Provider) ID() string {
	return "bedrock"
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Type  string `json:"type"`
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta,omitempty"`
}

// Bedrock exposes Anthropic models under ARNs of its own; callers keep
// using the plain model identifier and we translate here.
var modelIDMap = map[string]string{
	"claude-3-5-sonnet-20241022": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku-20241022":  "anthropic.claude-3-5-haiku-20241022-v1:0",
}

func mapModelID(modelID string) string {
	if mapped, ok := modelIDMap[modelID]; ok {
		return mapped
	}
	return modelID
}

// Generate streams the model's output for prompt via
// InvokeModelWithResponseStream.
func (p *Provider) Generate(ctx context.Context, prompt, modelID string) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		body, err := json.Marshal(invokeRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        maxOutputTokens,
			Messages:         []message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			errs <- fmt.Errorf("marshal request: %w", err)
			return
		}

		input := &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(mapModelID(modelID)),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		}

		output, err := p.client.InvokeModelWithResponseStream(ctx, input)
		if err != nil {
			errs <- fmt.Errorf("invoke model stream: %w", err)
			return
		}

		stream := output.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}

			var parsed streamChunk
			if err := json.Unmarshal(chunk.Value.Bytes, &parsed); err != nil {
				continue
			}

			switch parsed.Type {
			case "content_block_delta":
				if parsed.Delta == nil || parsed.Delta.Text == "" {
					continue
				}
				select {
				case chunks <- parsed.Delta.Text:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			}
		}

		if err := stream.Err(); err != nil {
			errs <- fmt.Errorf("stream error: %w", err)
		}
	}()

	return chunks, errs
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	return nil
}
