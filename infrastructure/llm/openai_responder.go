package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"loom-backend/application/ports"
	pkgerrors "loom-backend/pkg/errors"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIResponder implements ports.Responder against any OpenAI-compatible
// chat completion endpoint. Local inference servers that speak the same
// protocol work through the BaseURL override.
type OpenAIResponder struct {
	client       *openai.Client
	defaultModel string
	logger       *zap.Logger
}

// NewOpenAIResponder creates a responder. baseURL may be empty for the
// hosted API.
func NewOpenAIResponder(apiKey, baseURL, defaultModel string, logger *zap.Logger) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, pkgerrors.NewValidationError("responder API key required")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	logger.Info("Initializing responder client",
		zap.String("model", defaultModel),
		zap.Bool("customEndpoint", baseURL != ""),
	)
	return &OpenAIResponder{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
		logger:       logger,
	}, nil
}

// Stream submits the transcript and returns an incremental delta stream
func (r *OpenAIResponder) Stream(ctx context.Context, messages []ports.ContextMessage, opts ports.ReplyOptions) (ports.ReplyStream, error) {
	req := r.buildRequest(messages, opts)
	req.Stream = true

	stream, err := r.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		r.logger.Error("Responder stream request failed", zap.Error(err))
		return nil, pkgerrors.NewExternalError("responder request failed", err)
	}
	return &openaiStream{inner: stream}, nil
}

// Complete submits the transcript and waits for the full reply text
func (r *OpenAIResponder) Complete(ctx context.Context, messages []ports.ContextMessage, opts ports.ReplyOptions) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, r.buildRequest(messages, opts))
	if err != nil {
		r.logger.Error("Responder completion failed", zap.Error(err))
		return "", pkgerrors.NewExternalError("responder request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.NewExternalError("responder returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func (r *OpenAIResponder) buildRequest(messages []ports.ContextMessage, opts ports.ReplyOptions) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = r.defaultModel
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		chat = append(chat, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:    model,
		Messages: chat,
	}
}

// openaiStream adapts the SDK stream to ports.ReplyStream
type openaiStream struct {
	inner *openai.ChatCompletionStream
}

// Recv returns the next text delta; io.EOF after the end marker
func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("responder stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

// Close releases the underlying connection
func (s *openaiStream) Close() error {
	s.inner.Close()
	return nil
}

var _ ports.Responder = (*OpenAIResponder)(nil)
