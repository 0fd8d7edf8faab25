package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/task"
	"google.golang.org/genai"
)

// ContentGenerator is the part of the Gemini client the executor uses.
// *genai.Models implements it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Executor implements task.Executor with a Gemini model.
type Executor struct {
	models     ContentGenerator
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Ensure Executor implements task.Executor interface
var _ task.Executor = (*Executor)(nil)

// New creates an Executor backed by the Gemini API.
func New(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (*Executor, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return NewWithGenerator(client.Models, cfg, logger)
}

// NewWithGenerator creates an Executor on an existing content generator.
func NewWithGenerator(models ContentGenerator, cfg config.AgentConfig, logger *slog.Logger) (*Executor, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		models:     models,
		model:      cfg.ModelName,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: cfg.RetryDelay,
		logger:     logger.With(slog.String("component", "agent"), slog.String("model", cfg.ModelName)),
	}, nil
}

// Plan implements task.Executor.
func (e *Executor) Plan(ctx context.Context, t *domain.Task) (json.RawMessage, error) {
	return e.run(ctx, planTemplate, t, nil)
}

// Execute implements task.Executor.
func (e *Executor) Execute(ctx context.Context, t *domain.Task, plan json.RawMessage) (json.RawMessage, error) {
	return e.run(ctx, executeTemplate, t, plan)
}

func (e *Executor) run(
	ctx context.Context,
	tmpl *template.Template,
	t *domain.Task,
	plan json.RawMessage,
) (json.RawMessage, error) {
	prompt, err := render(tmpl, t, plan)
	if err != nil {
		return nil, err
	}
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		slog.String("task_id", t.ID.String()),
		slog.String("step", tmpl.Name()))

	text, err := e.generateWithRetry(ctx, log, prompt)
	if err != nil {
		return nil, err
	}

	doc := strings.TrimSpace(stripFence(text))
	if !json.Valid([]byte(doc)) {
		return nil, fmt.Errorf("%w: %s reply is not JSON", ErrInvalidResponse, tmpl.Name())
	}
	return json.RawMessage(doc), nil
}

// generateWithRetry calls the model, retrying transient failures with
// exponential backoff: delay = retryDelay * 2^attempt * [0.5, 1.0).
func (e *Executor) generateWithRetry(ctx context.Context, log *slog.Logger, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(prompt), cfg)
		if err == nil {
			text, perr := responseText(resp)
			if perr != nil {
				log.Warn("unusable model response", slog.String("error", perr.Error()))
				return "", perr
			}
			log.Debug("model call succeeded", slog.Int("attempt", attempt+1))
			return text, nil
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
		log.Error("model call failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		if attempt >= e.maxRetries {
			return "", fmt.Errorf("%w: %d attempts: %v", ErrTransientFailure, attempt+1, err)
		}

		backoff := float64(e.retryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts", ErrInvalidResponse)
	}
	return b.String(), nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
