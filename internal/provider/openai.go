package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const openaiBackend = "openai"

// OpenAIConfig contains configuration for creating an OpenAI provider.
type OpenAIConfig struct {
	// Model is the model name (e.g. "gpt-4o").
	Model string
	// APIKey is the OpenAI API key. If empty, uses OPENAI_API_KEY.
	APIKey string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
	// MaxTokens is the default response bound when a request sets none.
	MaxTokens int
}

// OpenAI calls an OpenAI-compatible chat completion API through langchaingo.
type OpenAI struct {
	llm       *openai.LLM
	maxTokens int
	tracker   *TokenTracker
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &OpenAI{llm: llm, maxTokens: maxTokens, tracker: NewTokenTracker()}, nil
}

// Name identifies the backend.
func (o *OpenAI) Name() string {
	return openaiBackend
}

// Tracker returns the token tracker for this provider.
func (o *OpenAI) Tracker() *TokenTracker {
	return o.tracker
}

// Infer runs one completion call and classifies any failure.
func (o *OpenAI) Infer(ctx context.Context, req Request) (Response, error) {
	prompt := req.Instruction
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	if req.Schema != "" {
		prompt = fmt.Sprintf("%s\n\nYour output must be a single JSON document conforming to this schema:\n%s", prompt, req.Schema)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, llms.WithMaxTokens(maxTokens))
	if err != nil {
		if ctxErr := classifyContext(ctx, openaiBackend); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, classifyOpenAIError(err)
	}

	// langchaingo does not surface token usage through this call path.
	o.tracker.Add(0, 0)

	return Response{Text: text}, nil
}

// classifyOpenAIError maps langchaingo errors onto the provider taxonomy.
// langchaingo surfaces HTTP failures as opaque strings, so classification
// falls back to status-code substrings.
func classifyOpenAIError(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Backend: openaiBackend, Cause: err}
		}
		return &Error{Kind: KindConnection, Backend: openaiBackend, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &Error{Kind: KindRateLimited, Backend: openaiBackend, Cause: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "503") || strings.Contains(msg, "502") || strings.Contains(msg, "500"):
		return &Error{Kind: KindTimeout, Backend: openaiBackend, Cause: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "incorrect api key"):
		return &Error{Kind: KindAuth, Backend: openaiBackend, Cause: err}
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request"):
		return &Error{Kind: KindBadRequest, Backend: openaiBackend, Cause: err}
	default:
		return &Error{Kind: KindUnknown, Backend: openaiBackend, Cause: err}
	}
}
