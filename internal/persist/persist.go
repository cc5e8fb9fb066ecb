// Package persist is the key/value storage behind the synchronizers.
// A Store survives restarts of the session (the equivalent of a page reload)
// and is scoped to one local profile. Each synchronizer is handed its own
// Namespace and never addresses another synchronizer's keys.
package persist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Store is a synchronous string key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)
	// Set stores value under key, durably before returning.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// namespaced prefixes every key with "<prefix>:".
type namespaced struct {
	inner  Store
	prefix string
}

// Namespace returns a Store that can only address keys under prefix.
func Namespace(s Store, prefix string) Store {
	return &namespaced{inner: s, prefix: strings.TrimSuffix(prefix, ":") + ":"}
}

func (n *namespaced) Get(key string) (string, bool) { return n.inner.Get(n.prefix + key) }
func (n *namespaced) Set(key, value string) error   { return n.inner.Set(n.prefix+key, value) }
func (n *namespaced) Remove(key string) error       { return n.inner.Remove(n.prefix + key) }

// GetJSON decodes the value under key into v.
// Returns false when the key is absent. A corrupt value is reported as an error.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(key, string(data))
}
