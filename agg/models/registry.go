// Package models holds the static catalog of chat models the gateway knows about.
//
// The catalog is embedded at build time and parsed once. Lookups are pure: a key that isn't in
// the catalog is assumed to already be an upstream identifier.
package models

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-yaml"
)

type Provider string

const (
	ProviderVolcengine Provider = "volcengine"
	ProviderOpenAI     Provider = "openai"
	ProviderAzure      Provider = "azure"
	ProviderCustom     Provider = "custom"
)

// Descriptor describes one model. Values are immutable once the registry is built.
type Descriptor struct {
	Key               string   `yaml:"key"`
	UpstreamID        string   `yaml:"upstream_id"`
	Name              string   `yaml:"name"`
	Description       string   `yaml:"description"`
	Provider          Provider `yaml:"provider"`
	MaxTokens         int      `yaml:"max_tokens"`
	SupportsStream    bool     `yaml:"supports_stream"`
	SupportsReasoning bool     `yaml:"supports_reasoning"`
}

type Registry struct {
	byKey map[string]Descriptor
	keys  []string
}

// New builds a registry from descriptors. Keys must be unique and non-empty, upstream ids
// non-empty and token limits positive.
func New(descs []Descriptor) (*Registry, error) {
	r := &Registry{
		byKey: make(map[string]Descriptor, len(descs)),
		keys:  make([]string, 0, len(descs)),
	}

	for _, d := range descs {
		if d.Key == "" {
			return nil, fmt.Errorf("models.New: descriptor with empty key")
		}
		if d.UpstreamID == "" {
			return nil, fmt.Errorf("models.New: %s: empty upstream id", d.Key)
		}
		if d.MaxTokens <= 0 {
			return nil, fmt.Errorf("models.New: %s: max tokens must be positive, got %d", d.Key, d.MaxTokens)
		}
		if _, ok := r.byKey[d.Key]; ok {
			return nil, fmt.Errorf("models.New: duplicate key %s", d.Key)
		}

		r.byKey[d.Key] = d
		r.keys = append(r.keys, d.Key)
	}

	return r, nil
}

// Parse builds a registry from a YAML list of descriptors.
func Parse(data []byte) (*Registry, error) {
	var descs []Descriptor
	if err := yaml.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("models.Parse: %w", err)
	}
	return New(descs)
}

// Resolve returns the upstream identifier for key, or key itself when it's unknown.
func (r *Registry) Resolve(key string) string {
	if d, ok := r.Lookup(key); ok {
		return d.UpstreamID
	}
	return key
}

func (r *Registry) Lookup(key string) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.byKey[key]
	return d, ok
}

// List returns the descriptors in catalog order, filtered by provider when one is given.
func (r *Registry) List(provider Provider) []Descriptor {
	out := make([]Descriptor, 0, len(r.keys))
	for _, k := range r.keys {
		d := r.byKey[k]
		if provider != "" && d.Provider != provider {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Keys returns every known key, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	sort.Strings(keys)
	return keys
}

//go:embed catalog.yaml
var catalog []byte

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded catalog. The catalog ships with the
// binary, so failing to parse it is a programming error.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(catalog)
		if err != nil {
			panic(err)
		}
		defaultReg = r
	})
	return defaultReg
}
