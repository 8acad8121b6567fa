// Package secrets resolves provider credentials at call time so they never
// sit in pipeline state or configuration files. Values fetched here must not
// be logged; the observability layer redacts known secret-shaped fields as a
// second line of defense.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Store resolves named secrets. Names are logical ("anthropic-api-key"),
// not transport-specific.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// ErrNotFound wraps the secret name that could not be resolved.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("secret %q not found", e.Name)
}

// EnvStore resolves secrets from environment variables. A logical name like
// "anthropic-api-key" maps to NEXUS_SECRET_ANTHROPIC_API_KEY.
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an environment-backed store. An empty prefix defaults
// to "NEXUS_SECRET_".
func NewEnvStore(prefix string) *EnvStore {
	if prefix == "" {
		prefix = "NEXUS_SECRET_"
	}
	return &EnvStore{prefix: prefix}
}

// Get implements Store.
func (s *EnvStore) Get(_ context.Context, name string) (string, error) {
	key := s.prefix + envSuffix(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", &ErrNotFound{Name: name}
	}
	return value, nil
}

func envSuffix(name string) string {
	upper := strings.ToUpper(name)
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(upper)
}

var _ Store = (*EnvStore)(nil)

// StaticStore resolves secrets from a fixed map. Intended for tests and
// local development.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore copies the given values into a new store.
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

// Get implements Store.
func (s *StaticStore) Get(_ context.Context, name string) (string, error) {
	value, ok := s.values[name]
	if !ok || value == "" {
		return "", &ErrNotFound{Name: name}
	}
	return value, nil
}

var _ Store = (*StaticStore)(nil)
