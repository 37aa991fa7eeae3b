package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SecretStore retrieves named secret bundles (flat JSON objects). Values are
// cached per process; Invalidate forces a re-read on the next Get, which the
// mail transport uses after an SMTP auth failure.
type SecretStore interface {
	Get(ctx context.Context, name string) (map[string]string, error)
	Invalidate(name string)
}

// fileSecretStore reads bundles from a single JSON document mapping secret
// names to objects. When no file is configured, a bundle can be supplied via
// an environment variable named after the secret (slashes and dashes become
// underscores, uppercased) holding the JSON object.
type fileSecretStore struct {
	path  string
	mu    sync.RWMutex
	cache map[string]map[string]string
}

func InitSecretStore() SecretStore {
	return &fileSecretStore{
		path:  os.Getenv("SECRETS_FILE"),
		cache: make(map[string]map[string]string),
	}
}

func NewFileSecretStore(path string) SecretStore {
	return &fileSecretStore{
		path:  path,
		cache: make(map[string]map[string]string),
	}
}

func (s *fileSecretStore) Get(ctx context.Context, name string) (map[string]string, error) {
	s.mu.RLock()
	if bundle, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return bundle, nil
	}
	s.mu.RUnlock()

	bundle, err := s.load(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = bundle
	s.mu.Unlock()

	return bundle, nil
}

func (s *fileSecretStore) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

func (s *fileSecretStore) load(name string) (map[string]string, error) {
	if s.path != "" {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}

		var doc map[string]map[string]string
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}

		bundle, ok := doc[name]
		if !ok {
			return nil, fmt.Errorf("secret %q not found", name)
		}
		return bundle, nil
	}

	envName := strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(name))
	raw := os.Getenv(envName)
	if raw == "" {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	var bundle map[string]string
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, fmt.Errorf("parse secret %q: %w", name, err)
	}
	return bundle, nil
}
