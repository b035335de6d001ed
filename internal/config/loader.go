// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC.
//  2. Load .env via godotenv (non-fatal if absent).
//  3. Resolve *_SECRET_REF indirections through the SecretProvider.
//  4. Populate Config through envconfig.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate struct tags, then cross-field rules.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretRefSuffix marks an environment variable whose value is a reference
// to resolve through the SecretProvider. ANTHROPIC_API_KEY_SECRET_REF=/run/secrets/anthropic
// fills ANTHROPIC_API_KEY unless it is already set.
const secretRefSuffix = "_SECRET_REF"

// loaderDeps holds injectable OS dependencies so tests can run without
// mutating the process environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the configuration. provider may be nil when
// no *_SECRET_REF variables are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = deps.dotenv()

	if err := resolveSecretRefs(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := cfg.validateCrossField(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateCrossField enforces rules struct tags cannot express.
func (c *Config) validateCrossField() error {
	if c.Feature.AssessmentEvents {
		switch c.Feature.EventTransport {
		case "sqs":
			if c.AWS.AssessmentQueueURL == "" {
				return &ConfigError{Type: ErrMissingEnv, Message: "SQS_ASSESSMENT_EVENTS is required when FEATURE_ASSESSMENT_EVENTS uses sqs"}
			}
		case "kafka":
			if len(c.Kafka.Brokers) == 0 {
				return &ConfigError{Type: ErrMissingEnv, Message: "KAFKA_BROKERS is required when FEATURE_ASSESSMENT_EVENTS uses kafka"}
			}
		}
	}
	return nil
}

// resolveSecretRefs fetches every *_SECRET_REF reference in one batch and
// injects the values under the stripped name.
func resolveSecretRefs(provider SecretProvider, deps loaderDeps) error {
	refToTarget := make(map[string]string)
	for _, entry := range deps.environ() {
		key, ref, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, secretRefSuffix) || ref == "" {
			continue
		}
		target := strings.TrimSuffix(key, secretRefSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		refToTarget[ref] = target
	}
	if len(refToTarget) == 0 {
		return nil
	}

	refs := make([]string, 0, len(refToTarget))
	for ref := range refToTarget {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	if provider == nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve %d secret references", len(refs)),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, refs)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret references", len(refs)),
			Err:     err,
		}
	}

	var missing []string
	for _, ref := range refs {
		target := refToTarget[ref]
		value, ok := resolved[ref]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: "failed to set resolved value for " + target,
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: "secret references not found for: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
