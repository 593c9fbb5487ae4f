// Package channels loads the channel layout: which converter family sits on
// which chip select line.
package channels

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/ThermoWatch/internal/types"
	"gopkg.in/yaml.v3"
)

var layoutExtensions = []string{".yaml", ".yml", ".json"}

type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load finds name in the search paths, validates it and caches the result.
func (l *Loader) Load(name string) (*types.ChannelLayout, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.ChannelLayout), nil
	}

	data, foundPath := l.find(name)
	if data == nil {
		return nil, fmt.Errorf("layout not found: %s (searched in: %v)", name, l.searchPaths)
	}

	layout, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", foundPath, err)
	}

	l.cache.Store(name, layout)

	return layout, nil
}

// Parse validates and decodes a YAML (or JSON) layout document.
func (l *Loader) Parse(data []byte) (*types.ChannelLayout, error) {
	// Schema prüft JSON, daher YAML erst generisch dekodieren
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert layout: %w", err)
	}

	if err := l.validator.ValidateLayout(raw); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var layout types.ChannelLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
	}

	if err := l.validator.CheckChannels(layout.Channels); err != nil {
		return nil, err
	}

	return &layout, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

func (l *Loader) find(name string) ([]byte, string) {
	for _, searchPath := range l.searchPaths {
		for _, ext := range layoutExtensions {
			fullPath := filepath.Join(searchPath, name+ext)
			data, err := os.ReadFile(fullPath)
			if err == nil {
				return data, fullPath
			}
		}
	}
	return nil, ""
}
