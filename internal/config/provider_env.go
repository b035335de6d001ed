package config

import (
	"context"
	"os"
	"strings"
)

// EnvVarProvider resolves a reference by reading the environment variable it
// names. Useful when a platform injects secrets under vendor-specific names.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch implements SecretProvider.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

// FileProvider resolves a reference by reading the file it names, as with
// Docker and Kubernetes mounted secrets. Trailing newlines are trimmed.
type FileProvider struct {
	readFile func(string) ([]byte, error)
}

// NewFileProvider creates a FileProvider.
func NewFileProvider() *FileProvider {
	return &FileProvider{readFile: os.ReadFile}
}

// GetParametersBatch implements SecretProvider. Unreadable files are omitted.
func (p *FileProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.readFile(key)
		if err != nil {
			continue
		}
		result[key] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}

// ChainProvider asks each provider in turn for the keys still unresolved.
type ChainProvider []SecretProvider

// GetParametersBatch implements SecretProvider.
func (c ChainProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	pending := keys
	for _, p := range c {
		if len(pending) == 0 {
			break
		}
		got, err := p.GetParametersBatch(ctx, pending)
		if err != nil {
			return nil, err
		}
		next := pending[:0:0]
		for _, k := range pending {
			if v, ok := got[k]; ok {
				result[k] = v
			} else {
				next = append(next, k)
			}
		}
		pending = next
	}
	return result, nil
}
