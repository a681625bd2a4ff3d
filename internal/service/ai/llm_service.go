package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/zhouzirui/callsim/backend/internal/config"
)

var (
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrBackendTimeout     = errors.New("generation backend timeout")
	ErrBackendRejected    = errors.New("generation backend rejected request")
)

// Request is one completion request: a system instruction plus the ordered history.
type Request struct {
	System    string
	Messages  []*schema.Message
	MaxTokens int
}

// Generator returns a single completion string for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Service encapsulates the persona reply chain.
type Service struct {
	chain     compose.Runnable[map[string]any, *schema.Message]
	maxTokens int
	timeout   time.Duration
}

// Options tunes a Service.
type Options struct {
	MaxTokens int
	Timeout   time.Duration
}

// NewService creates a new AI service instance backed by the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewServiceWithModel(ctx, chatModel, Options{MaxTokens: cfg.MaxTokens, Timeout: cfg.Timeout})
}

// NewServiceWithModel compiles the reply chain around an arbitrary chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chain:     runnable,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
	}, nil
}

// Generate runs the chain once and returns the trimmed completion.
func (s *Service) Generate(ctx context.Context, req Request) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	var opts []compose.Option
	if maxTokens > 0 {
		opts = append(opts, compose.WithChatModelOption(model.WithMaxTokens(maxTokens)))
	}

	input := map[string]any{
		"system":  req.System,
		"history": req.Messages,
	}

	start := time.Now()
	response, err := s.chain.Invoke(ctx, input, opts...)
	if err != nil {
		return "", classifyError(ctx, err)
	}

	text := ""
	if response != nil {
		text = strings.TrimSpace(response.Content)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrBackendRejected)
	}

	log.Printf("[ai] generated reply in %s, history=%d, length=%d", time.Since(start).Round(time.Millisecond), len(req.Messages), len(text))
	return text, nil
}

// classifyError folds backend failures into the three generation error kinds.
func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	}

	if status := httpStatus(err); status != 0 {
		switch {
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		case status >= 400 && status < 500:
			return fmt.Errorf("%w: %w", ErrBackendRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

func httpStatus(err error) int {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}

	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}

	return 0
}
