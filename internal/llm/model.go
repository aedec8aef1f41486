package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"time"

	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/metrics"
	"github.com/tla-bot/tla-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrFatalAPI marks provider errors that retrying cannot fix: bad
// credentials, exhausted quota, billing problems.
var ErrFatalAPI = errors.New("fatal API error")

// Model wraps a langchaingo LLM used as the generative answer fallback.
type Model struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector
}

// SetMetrics attaches a collector recording call timings and token usage.
func (m *Model) SetMetrics(c *metrics.Collector) {
	m.collector = c
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		m.collector.RecordGenerativeUsage(time.Since(start), 0, 0)
		return "", wrapFatalError(fmt.Errorf("generate with system: %w", err))
	}

	if len(response.Choices) == 0 {
		m.collector.RecordGenerativeUsage(time.Since(start), 0, 0)
		return "", fmt.Errorf("no response choices")
	}

	in, out := tokenUsage(response.Choices[0].GenerationInfo)
	m.collector.RecordGenerativeUsage(time.Since(start), in, out)
	return response.Choices[0].Content, nil
}

// tokenUsage pulls prompt/completion token counts out of a provider's
// generation info. Providers disagree on key names; missing counts are zero.
func tokenUsage(info map[string]any) (in, out int64) {
	return tokenCount(info, "PromptTokens", "InputTokens"),
		tokenCount(info, "CompletionTokens", "OutputTokens")
}

func tokenCount(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

const answerSystemPrompt = `You are filling out a job application form on behalf of a candidate.
Answer the screening question with the single value that goes into the form field.
Rules:
- Reply with the bare value only: no explanation, no punctuation around it, no quotes.
- For choice questions, reply with EXACTLY one of the allowed options, verbatim.
- For numeric questions, reply with a single number.
- For yes/no questions, reply "Yes" or "No".
- Answer favourably but truthfully for a qualified candidate.`

const answerStrictSuffix = `
Your previous reply did not satisfy the field constraints. This time the reply
MUST be valid for the field or the application fails. Output the value and
nothing else.`

// GenerateAnswer asks the model for a form-field value for one screening
// question. The strict flag tightens the prompt after a validation failure.
func (m *Model) GenerateAnswer(ctx context.Context, q models.Question, strict bool) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", q.Text)
	fmt.Fprintf(&b, "Field kind: %s\n", q.Kind)
	if len(q.Options) > 0 {
		fmt.Fprintf(&b, "Allowed options: %s\n", strings.Join(q.Options, " | "))
	}
	if q.Required {
		b.WriteString("The question is required.\n")
	}
	b.WriteString("Value:")

	system := answerSystemPrompt
	if strict {
		system += answerStrictSuffix
	}

	value, err := m.GenerateWithSystem(ctx, system, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"'`)), nil
}

// isFatalAPIError reports whether a provider error cannot be fixed by
// retrying.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	fatal := []string{
		"credit balance",
		"rate limit",
		"quota",
		"billing",
		"invalid api key",
		"authentication",
		"unauthorized",
		"401",
		"403",
	}
	for _, marker := range fatal {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI so callers can
// stop retrying.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %v", ErrFatalAPI, err)
	}
	return err
}
