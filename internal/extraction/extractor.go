// Package extraction asks an LLM to split the raw text of a document into
// person names and their component words. The matcher consumes the output as
// plain target strings; nothing downstream depends on the model behaving.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/OCR-Coordinate-Match-Platform/pkg/resilience"
)

// Person is one extracted name: the complete name and its individual words
// in document order. Each part becomes a match target, with the remaining
// parts as its context words.
type Person struct {
	FullName  string   `json:"full_name"`
	NameParts []string `json:"name_parts"`
}

const systemPrompt = `You are a document analysis expert. The user will give you raw text extracted from a scanned document that contains people's names.

YOUR TASK:
1. Identify ALL person names in the text, in the order they appear
2. For EACH complete name, split it into its individual words

IMPORTANT RULES:
- A complete name consists of all words belonging to one person
- Preserve the exact spelling of each word
- Maintain the order of words as they appear

Return ONLY this JSON:
{
  "names": [
    {"full_name": "Bayly Francis Wilson", "name_parts": ["Bayly", "Francis", "Wilson"]},
    {"full_name": "Goodman Timothy", "name_parts": ["Goodman", "Timothy"]}
  ]
}

No markdown, no explanation.`

// Extractor calls the OpenAI chat completion API with a JSON response format.
type Extractor struct {
	client  *openai.Client
	cfg     config.ExtractionConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Extractor. When extraction is disabled or no API key is
// configured, the returned Extractor rejects every call with
// ErrExtractionDisabled instead of failing at startup.
func New(cfg config.ExtractionConfig, m *metrics.Metrics) *Extractor {
	e := &Extractor{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "name-extractor"),
	}
	if cfg.Enabled && cfg.APIKey != "" {
		client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
		e.client = &client
		e.breaker = resilience.NewCircuitBreaker("openai", resilience.CircuitBreakerConfig{})
	}
	return e
}

// Enabled reports whether the extractor can serve calls.
func (e *Extractor) Enabled() bool {
	return e.client != nil
}

// ExtractNames sends the document text to the model and returns the parsed
// people. Transient API failures are retried; a tripped circuit breaker
// fails fast.
func (e *Extractor) ExtractNames(ctx context.Context, documentText string) ([]Person, error) {
	if e.client == nil {
		return nil, apperrors.ErrExtractionDisabled
	}
	if strings.TrimSpace(documentText) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "document text is empty")
	}

	var people []Person
	err := resilience.WithTimeout(ctx, e.cfg.Timeout, "extract-names", func(ctx context.Context) error {
		return resilience.Retry(ctx, "extract-names", resilience.RetryConfig{MaxAttempts: e.cfg.MaxAttempts}, func() error {
			return e.breaker.Execute(func() error {
				parsed, err := e.callModel(ctx, documentText)
				if err != nil {
					return err
				}
				people = parsed
				return nil
			})
		})
	})
	if e.metrics != nil {
		if err != nil {
			e.metrics.ExtractionCallsTotal.WithLabelValues("error").Inc()
		} else {
			e.metrics.ExtractionCallsTotal.WithLabelValues("ok").Inc()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extracting names: %w", err)
	}
	e.logger.Info("names extracted", "count", len(people))
	return people, nil
}

func (e *Extractor) callModel(ctx context.Context, documentText string) ([]Person, error) {
	jsonObjectFormat := shared.NewResponseFormatJSONObjectParam()
	completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Extract the names from this document text:\n\n" + documentText),
		},
		Model:       shared.ChatModel(e.cfg.Model),
		Temperature: param.NewOpt(0.1),
		MaxTokens:   param.NewOpt[int64](2000),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &jsonObjectFormat,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}
	return ParseResponse(completion.Choices[0].Message.Content)
}

// ParseResponse decodes the model's JSON payload into people, tolerating
// markdown code fences and skipping entries with a blank full_name or no
// parts.
func ParseResponse(content string) ([]Person, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload struct {
		Names []Person `json:"names"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("parsing model response: %w", err)
	}

	people := make([]Person, 0, len(payload.Names))
	for _, p := range payload.Names {
		p.FullName = strings.TrimSpace(p.FullName)
		parts := make([]string, 0, len(p.NameParts))
		for _, part := range p.NameParts {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if p.FullName == "" || len(parts) == 0 {
			continue
		}
		p.NameParts = parts
		people = append(people, p)
	}
	return people, nil
}
