package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// sourcesFile is the on-disk shape of the sources file.
type sourcesFile struct {
	Sources []*models.Source `yaml:"sources"`
}

// envRef matches ${NAME} references in string values.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadSources reads and validates the sources file. String values in each
// source's config may reference environment variables as ${NAME}; an unset
// variable is an error so a crawl never runs with an empty password.
func LoadSources(path string) ([]*models.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a sources document. See LoadSources.
func ParseSources(data []byte) ([]*models.Source, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i, src := range file.Sources {
		if src == nil {
			return nil, fmt.Errorf("sources[%d] is empty", i)
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("sources[%d]: duplicate source id %q", i, src.ID)
		}
		seen[src.ID] = true

		expanded, err := expandEnv(src.Config)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		src.Config = expanded.(map[string]any)
	}
	return file.Sources, nil
}

// FindSource returns the source with the given id, or an error wrapping
// apperrors.ErrNotFound.
func FindSource(sources []*models.Source, id string) (*models.Source, error) {
	for _, s := range sources {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown source %q: %w", id, apperrors.ErrNotFound)
}

func expandEnv(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			expanded, err := expandValue(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = expanded
		}
		return out, nil
	}
	return expandValue(v)
}

func expandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		var missing string
		out := envRef.ReplaceAllStringFunc(val, func(ref string) string {
			name := envRef.FindStringSubmatch(ref)[1]
			value, ok := os.LookupEnv(name)
			if !ok && missing == "" {
				missing = name
			}
			return value
		})
		if missing != "" {
			return nil, fmt.Errorf("environment variable %s is not set", missing)
		}
		return out, nil
	case map[string]any:
		return expandEnv(val)
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			expanded, err := expandValue(child)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	}
	return v, nil
}
