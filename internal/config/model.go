package config

import "resilience/internal/scoring"

// LoadModel returns the scoring model this deployment runs: the built-in
// model, or ModelFile layered over it, with ModelVersion applied last.
func (c ScoringConfig) LoadModel() (scoring.Model, error) {
	m := scoring.DefaultModel()
	if c.ModelFile != "" {
		var err error
		if m, err = scoring.LoadModelFile(c.ModelFile); err != nil {
			return scoring.Model{}, &ConfigError{Type: ErrParsing, Message: "failed to load scoring model", Err: err}
		}
	}
	if c.ModelVersion != "" {
		m.Version = c.ModelVersion
	}
	return m, nil
}
