package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceKindHTML = "html"
	SourceKindAPI  = "api"
	SourceKindMock = "mock"
)

// Source describes one marketplace client.
type Source struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources is used when no sources file exists.
func DefaultSources() []Source {
	return []Source{{Name: "olx", Kind: SourceKindHTML, BaseURL: "https://www.olx.ua"}}
}

// LoadSources reads the marketplace list. A missing file yields DefaultSources.
// Sources without a timeout inherit defaultTimeout.
func LoadSources(path string, defaultTimeout time.Duration) ([]Source, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return withTimeout(DefaultSources(), defaultTimeout), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		src := &file.Sources[i]
		src.Name = strings.ToLower(strings.TrimSpace(src.Name))
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))

		if src.Name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		seen[src.Name] = true

		switch src.Kind {
		case SourceKindHTML, SourceKindAPI:
			if src.BaseURL == "" {
				return nil, fmt.Errorf("source %q needs base_url", src.Name)
			}
		case SourceKindMock:
		default:
			return nil, fmt.Errorf("source %q has unknown kind %q", src.Name, src.Kind)
		}
	}

	return withTimeout(file.Sources, defaultTimeout), nil
}

func withTimeout(sources []Source, timeout time.Duration) []Source {
	for i := range sources {
		if sources[i].Timeout <= 0 {
			sources[i].Timeout = timeout
		}
	}
	return sources
}
