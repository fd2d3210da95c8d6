package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/metrics"
)

// ErrUnknownModel is returned for a model outside the enumerated set.
var ErrUnknownModel = errors.New("unknown model")

// Completer is a hosted completion model.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// CompletionError reports a failed call to the completion collaborator.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion with %q failed: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// CompletionResult holds the escaped answer text.
type CompletionResult struct {
	Text    string
	Latency time.Duration
}

// CompletionService forwards prompts to the configured Completer. One call
// per request, no retries.
type CompletionService struct {
	completer Completer
	provider  string
	models    map[string]bool
}

// NewCompletionService creates a CompletionService restricted to models.
func NewCompletionService(completer Completer, provider string, models []string) *CompletionService {
	allowed := make(map[string]bool, len(models))
	for _, m := range models {
		allowed[m] = true
	}
	return &CompletionService{
		completer: completer,
		provider:  provider,
		models:    allowed,
	}
}

// Provider returns the configured LLM provider name.
func (s *CompletionService) Provider() string {
	return s.provider
}

// Allowed reports whether model is in the enumerated set.
func (s *CompletionService) Allowed(model string) bool {
	return s.models[model]
}

// Complete runs prompt through model and returns the reply with `$` escaped.
func (s *CompletionService) Complete(ctx context.Context, model, prompt string) (*CompletionResult, error) {
	if !s.Allowed(model) {
		return nil, &CompletionError{Model: model, Err: ErrUnknownModel}
	}

	start := time.Now()
	text, err := s.completer.Complete(ctx, model, prompt)
	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("complete").Observe(latency.Seconds())

	if err != nil {
		metrics.Errors.WithLabelValues("complete").Inc()
		return nil, &CompletionError{Model: model, Err: err}
	}

	return &CompletionResult{
		Text:    EscapeDollars(text),
		Latency: latency,
	}, nil
}

// EscapeDollars escapes every `$` so the rendering layer does not treat it as
// a math/template delimiter.
func EscapeDollars(s string) string {
	return strings.ReplaceAll(s, "$", `\$`)
}
