package httpapi

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAPIKey marks a key entry that cannot be used.
var ErrInvalidAPIKey = errors.New("invalid api key entry")

// APIKey is one entry of the keys file. Permissions are stored lowercased,
// deduplicated and sorted once the entry has been normalized.
type APIKey struct {
	ID          string   `yaml:"id"`
	Key         string   `yaml:"key"`
	Permissions []string `yaml:"permissions"`
}

func (k *APIKey) normalize() error {
	k.ID = strings.TrimSpace(k.ID)
	k.Key = strings.TrimSpace(k.Key)
	if k.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidAPIKey)
	}
	if k.Key == "" {
		return fmt.Errorf("%w: %q has no secret", ErrInvalidAPIKey, k.ID)
	}
	perms := make([]string, 0, len(k.Permissions))
	for _, p := range k.Permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, ok := knownPermissions[p]; !ok {
			return fmt.Errorf("%w: %q has unknown permission %q", ErrInvalidAPIKey, k.ID, p)
		}
		perms = append(perms, p)
	}
	slices.Sort(perms)
	k.Permissions = slices.Compact(perms)
	if len(k.Permissions) == 0 {
		return fmt.Errorf("%w: %q has no permissions", ErrInvalidAPIKey, k.ID)
	}
	return nil
}

type APIKeyStore struct {
	byKey map[string]*APIKey
}

// LoadAPIKeys reads a YAML list of keys. Each key needs an id, a secret and
// at least one of can_classify, can_read or can_admin. Ids and secrets must
// be unique. Every invalid entry is reported, not just the first.
func LoadAPIKeys(path string) (*APIKeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api keys file: %w", err)
	}

	var entries []APIKey
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse api keys file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("api keys file %s is empty", path)
	}

	store := &APIKeyStore{byKey: make(map[string]*APIKey, len(entries))}
	ids := make(map[string]struct{}, len(entries))
	var errs []error
	for i := range entries {
		entry := &entries[i]
		if err := entry.normalize(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if _, dup := ids[entry.ID]; dup {
			errs = append(errs, fmt.Errorf("entry %d: %w: duplicate id %q", i, ErrInvalidAPIKey, entry.ID))
			continue
		}
		if _, dup := store.byKey[entry.Key]; dup {
			errs = append(errs, fmt.Errorf("entry %d: %w: %q reuses another key's secret", i, ErrInvalidAPIKey, entry.ID))
			continue
		}
		ids[entry.ID] = struct{}{}
		store.byKey[entry.Key] = entry
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("api keys file %s: %w", path, errors.Join(errs...))
	}
	return store, nil
}

// Len reports how many keys are loaded.
func (s *APIKeyStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byKey)
}

func (s *APIKeyStore) Lookup(key string) (*APIKey, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.byKey[key]
	return k, ok
}
