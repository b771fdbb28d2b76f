package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/assessgen/internal/llm"
	"go.uber.org/zap"
)

// Generator runs one request through prompt building, a single
// generation call and extraction.
type Generator struct {
	provider llm.Provider
	config   Config
	log      *zap.Logger
}

// NewGenerator creates a Generator backed by provider.
func NewGenerator(provider llm.Provider, cfg Config, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{provider: provider, config: cfg, log: log}
}

// Generate produces a validated assessment. Invalid requests fail before
// the provider is called. The generator is not asked again on failure.
func (g *Generator) Generate(ctx context.Context, req Request) (*Assessment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	g.log.Debug("generating assessment", zap.String("prompt", prompt))

	llmReq := llm.UserPrompt(prompt, g.config.MaxTokens, g.config.Temperature)
	if g.config.Structured {
		schema, err := StructuredSchema(req.AssessmentType)
		if err != nil {
			return nil, err
		}
		llmReq.Schema = schema
	}

	ctx = llm.WithPurpose(ctx, llm.PurposeAssessment)
	resp, err := g.provider.Generate(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	raw := resp.Text()
	g.log.Debug("raw generator response", zap.String("text", raw))

	questions, err := Extract(raw, req.AssessmentType)
	if err != nil {
		switch resp.StopReason {
		case llm.StopMaxTokens:
			err = errors.Join(err, &llm.ErrMaxTokensExceeded{Content: resp.Content})
		case llm.StopRefused:
			err = errors.Join(err, &llm.ErrRefused{Content: resp.Content})
		}
		return nil, err
	}

	g.log.Info("parsed assessment",
		zap.String("type", string(req.AssessmentType)),
		zap.Int("requested", req.QuestionCount),
		zap.Int("received", len(questions)))

	return &Assessment{Type: req.AssessmentType, Questions: questions}, nil
}
