package mitigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"resilience/internal/types"
)

// AIProvider generates recommendations with a language model.
type AIProvider interface {
	Generate(ctx context.Context, in Input) ([]types.Recommendation, error)
	Tag() types.AIProviderTag
}

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey    types.SecretString
	Model     string
	BaseURL   string
	MaxTokens int64
	Timeout   time.Duration
	// MaxRetries is passed to the SDK; nil keeps the SDK default.
	MaxRetries *int
}

// AnthropicProvider calls the Messages API and parses a JSON recommendation
// list out of the reply.
type AnthropicProvider struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider builds a provider. It fails when no API key is
// configured so callers can fall back to rules at composition time.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("anthropic API key is not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey.Unmask())}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Tag implements AIProvider.
func (p *AnthropicProvider) Tag() types.AIProviderTag { return types.AIProviderAnthropic }

var promptTemplate = template.Must(template.New("mitigation").Parse(`You are an expert disaster mitigation engineer.
Generate mitigation recommendations for a construction project based on the risk analysis below.

Return ONLY JSON in this exact format:

{
  "recommendations": [
    {
      "title": "...",
      "details": "...",
      "category": "FLOOD|EARTHQUAKE|WEATHER|GENERAL"
    }
  ]
}

Risk data:
- riskLevel: {{.RiskLevel}}
- riskScore: {{.RiskScore}}
- floodScore: {{.FloodScore}}
- earthquakeScore: {{.EarthquakeScore}}
- weatherScore: {{.WeatherScore}}
`))

func buildPrompt(in Input) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, in); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Generate implements AIProvider.
func (p *AnthropicProvider) Generate(ctx context.Context, in Input) ([]types.Recommendation, error) {
	prompt, err := buildPrompt(in)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	msg, err := p.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAI, "anthropic: create message", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseRecommendations(text.String())
}

// extractJSON strips markdown fences and returns the outermost {...} span.
func extractJSON(text string) (string, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last < first {
		return "", errors.New("no JSON object in model reply")
	}
	return text[first : last+1], nil
}

type aiReply struct {
	Recommendations []types.Recommendation `json:"recommendations"`
}

// parseRecommendations decodes and validates a model reply. Any unknown
// category, blank title or empty list rejects the whole reply.
func parseRecommendations(text string) ([]types.Recommendation, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var reply aiReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	if len(reply.Recommendations) == 0 {
		return nil, errors.New("model returned no recommendations")
	}
	for i, r := range reply.Recommendations {
		if strings.TrimSpace(r.Title) == "" {
			return nil, fmt.Errorf("recommendation %d has no title", i)
		}
		if !r.Category.Valid() {
			return nil, fmt.Errorf("recommendation %d has unknown category %q", i, r.Category)
		}
	}
	return markPending(reply.Recommendations), nil
}
