package config

import "context"

// SecretProvider resolves secret references to plaintext values. Keys that
// cannot be resolved are omitted from the result rather than reported as an
// error, so the loader can name every missing variable at once.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
