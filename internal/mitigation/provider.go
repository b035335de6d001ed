package mitigation

import (
	"log/slog"

	"resilience/internal/config"
)

// ProviderFromConfig returns the AI provider selected by
// MITIGATION_AI_PROVIDER, or nil for rule-based generation. A misconfigured
// provider is logged and degrades to rules rather than failing startup.
func ProviderFromConfig(cfg config.MitigationConfig, logger *slog.Logger) AIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.AIProvider {
	case "anthropic":
		p, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			BaseURL:   cfg.AnthropicBaseURL,
			MaxTokens: cfg.AIMaxTokens,
			Timeout:   cfg.AITimeout,
		})
		if err != nil {
			logger.Warn("anthropic provider unavailable, using rule-based mitigation", "error", err)
			return nil
		}
		logger.Info("mitigation AI provider enabled", "provider", p.Tag(), "model", cfg.AnthropicModel)
		return p
	default:
		return nil
	}
}
