package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CallRecord captures one generation call for the audit log.
type CallRecord struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	StopReason   string
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// CallRecorder persists CallRecords. internal/store implements it.
type CallRecorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

// LoggingProvider records every generation call and logs it through zap.
type LoggingProvider struct {
	inner    Provider
	provider string
	recorder CallRecorder
	log      *zap.Logger
}

// WithLogging wraps a Provider with call recording. recorder may be nil.
func WithLogging(p Provider, provider string, recorder CallRecorder, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingProvider{inner: p, provider: provider, recorder: recorder, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	rec := CallRecord{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		rec.InputTokens = resp.Usage.InputTokens
		rec.OutputTokens = resp.Usage.OutputTokens
		rec.StopReason = resp.StopReason
		rec.ResponseBody = resp.Text()
		if resp.Model != "" {
			rec.Model = resp.Model
		}
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}

	fields := []zap.Field{
		zap.String("provider", rec.Provider),
		zap.String("model", rec.Model),
		zap.String("purpose", purpose),
		zap.Int64("latency_ms", rec.LatencyMs),
		zap.Int("input_tokens", rec.InputTokens),
		zap.Int("output_tokens", rec.OutputTokens),
	}
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if err != nil {
		l.log.Warn("generation call failed", append(fields, zap.Error(err))...)
	} else {
		l.log.Info("generation call", append(fields, zap.String("stop_reason", rec.StopReason))...)
	}

	// Recording is best effort; the generation result stands regardless.
	if l.recorder != nil {
		if recErr := l.recorder.RecordCall(ctx, rec); recErr != nil {
			l.log.Warn("failed to record generation call", zap.Error(recErr))
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "[params] temperature=%.2f max_tokens=%d\n", req.Temperature, req.MaxTokens)

	if req.Schema != nil {
		if def, err := json.Marshal(req.Schema.Definition); err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n%s\n", req.Schema.Name, def)
		}
	}
	return b.String()
}
