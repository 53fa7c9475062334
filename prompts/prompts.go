package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

// Default is the prompt a new conversation starts with unless configured otherwise.
const Default = "customer_service"

//go:embed catalog.yaml
var catalogData []byte

//go:embed system/*.txt
var systemPrompts embed.FS

// Spec describes one embedded system prompt.
type Spec struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	File        string `yaml:"file"`
}

var (
	catalogOnce sync.Once
	catalog     []Spec
	catalogErr  error
)

// Catalog returns the specs of every embedded system prompt, in catalog order.
func Catalog() ([]Spec, error) {
	catalogOnce.Do(func() {
		if err := yaml.Unmarshal(catalogData, &catalog); err != nil {
			catalogErr = fmt.Errorf("failed to unmarshal prompt catalog: %w", err)
		}
	})

	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out, catalogErr
}

// Names lists the prompt names, in catalog order.
func Names() []string {
	specs, _ := Catalog()
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

// SystemPrompt loads the text of the named system prompt.
// Returns an error if the name isn't in the catalog or its file is missing.
func SystemPrompt(name string) (string, error) {
	specs, err := Catalog()
	if err != nil {
		return "", err
	}

	for _, s := range specs {
		if s.Name != name {
			continue
		}

		data, err := systemPrompts.ReadFile(s.File)
		if err != nil {
			return "", fmt.Errorf("failed to read system prompt %s: %w", s.File, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return "", fmt.Errorf("unknown system prompt %q", name)
}

// Resolve returns the named prompt when value is a catalog name, and value itself otherwise,
// so configuration can hold either a name or literal prompt text.
func Resolve(value string) string {
	if text, err := SystemPrompt(value); err == nil {
		return text
	}
	return value
}
