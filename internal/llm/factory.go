package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// NewProvider creates a Provider from configuration, wrapped as
// caller → timeout → retry (only when MaxAttempts > 1) → logging → base.
func NewProvider(ctx context.Context, cfg Config, recorder CallRecorder, log *zap.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base, err = newConfiguredMock(cfg.Mock)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	p := WithLogging(base, cfg.Provider, recorder, log)
	if cfg.Retry.MaxAttempts > 1 {
		r := WithRetry(p, cfg.Retry)
		r.OnRetry = func(attempt int, wait time.Duration, err error) {
			log.Warn("retrying generation call",
				zap.String("provider", cfg.Provider),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
		p = r
	}
	if cfg.Timeout > 0 {
		p = WithTimeout(p, cfg.Timeout)
	}
	return p, nil
}

func newConfiguredMock(cfg MockConfig) (*MockProvider, error) {
	m := NewMockProvider()
	if cfg.ResponseFile == "" {
		return m, nil
	}
	text, err := os.ReadFile(cfg.ResponseFile)
	if err != nil {
		return nil, fmt.Errorf("read mock response: %w", err)
	}
	m.SetFallback(MockText(string(text)))
	return m, nil
}

// TimeoutProvider bounds each Generate call with a deadline.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps a Provider so every call gets at most d.
func WithTimeout(p Provider, d time.Duration) Provider {
	return &TimeoutProvider{inner: p, timeout: d}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, req)
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}
