// Package ollama implements the generation interfaces against a local or
// remote Ollama endpoint using the official client. It is the only
// adapter that supports fragment streaming.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/generation"
)

const defaultTimeout = 5 * time.Minute

// Generator implements generation.StreamGenerator over the Ollama API.
type Generator struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

var (
	_ generation.StreamGenerator = (*Generator)(nil)
	_ generation.HealthChecker   = (*Generator)(nil)
)

// NewGenerator creates an Ollama-backed generator from the LLM
// configuration. The base URL and model name must be set.
func NewGenerator(cfg config.LLMConfig, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OllamaBaseURL == "" {
		return nil, fmt.Errorf("%w: ollama base URL cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.OllamaModel == "" {
		return nil, fmt.Errorf("%w: ollama model cannot be empty", generation.ErrInvalidConfig)
	}

	base, err := url.Parse(cfg.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama base URL: %v", generation.ErrInvalidConfig, err)
	}

	client := api.NewClient(base, &http.Client{Timeout: defaultTimeout})

	return &Generator{
		client: client,
		model:  cfg.OllamaModel,
		logger: logger.With("component", "ollama_generator", "model", cfg.OllamaModel),
	}, nil
}

// Generate produces the complete text for the prompt in one call.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrGenerationFailed)
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var builder strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		builder.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "generate call failed", "error", err)
		return "", fmt.Errorf("%w: %v", generation.ErrUpstreamUnavailable, err)
	}

	return builder.String(), nil
}

// GenerateStream opens a streaming generation and relays each response
// fragment onto the returned channel in generation order. The channel is
// closed when the model finishes; a mid-stream failure is delivered as a
// final fragment carrying the error.
func (g *Generator) GenerateStream(ctx context.Context, prompt string) (<-chan generation.Fragment, error) {
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", generation.ErrGenerationFailed)
	}

	stream := true
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: &stream,
	}

	out := make(chan generation.Fragment)

	go func() {
		defer close(out)

		err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
			if resp.Response == "" && !resp.Done {
				return nil
			}
			if resp.Response != "" {
				select {
				case out <- generation.Fragment{Text: resp.Response}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger.ErrorContext(ctx, "streaming generate failed", "error", err)
			select {
			case out <- generation.Fragment{Err: fmt.Errorf("%w: %v", generation.ErrUpstreamUnavailable, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// Healthy reports whether the Ollama endpoint responds to a heartbeat.
func (g *Generator) Healthy(ctx context.Context) bool {
	if err := g.client.Heartbeat(ctx); err != nil {
		g.logger.DebugContext(ctx, "heartbeat failed", "error", err)
		return false
	}
	return true
}
