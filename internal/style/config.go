// Package style narrows query results by tag rules loaded from YAML.
package style

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config holds separate rules for point and area POIs. A nil section lets
// every POI of that kind through.
type Config struct {
	Points *FilterConfig `yaml:"points,omitempty"`
	Areas  *FilterConfig `yaml:"areas,omitempty"`
}

// FilterConfig defines tag rules. An empty value list matches any value of
// the key; "*" in a list does the same.
type FilterConfig struct {
	// At least one include rule must match, if any are given
	Include map[string][]string `yaml:"include,omitempty"`
	// No exclude rule may match
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// At least one of these keys must be present
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads a style configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}
	return &cfg, nil
}

// Match applies the points or areas rules to tags.
func (c *Config) Match(area bool, tags map[string]string) bool {
	if c == nil {
		return true
	}
	if area {
		return NewFilter(c.Areas).Match(tags)
	}
	return NewFilter(c.Points).Match(tags)
}

// Filter checks tags against one FilterConfig
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration; nil matches everything
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		cfg = &FilterConfig{}
	}
	return &Filter{cfg: cfg}
}

// Match reports whether the tags pass every rule
func (f *Filter) Match(tags map[string]string) bool {
	if len(f.cfg.RequireAny) > 0 && !slices.ContainsFunc(f.cfg.RequireAny, func(k string) bool {
		_, ok := tags[k]
		return ok
	}) {
		return false
	}

	if len(f.cfg.Include) > 0 && !anyRule(f.cfg.Include, tags) {
		return false
	}

	return !anyRule(f.cfg.Exclude, tags)
}

func anyRule(rules map[string][]string, tags map[string]string) bool {
	for key, values := range rules {
		v, ok := tags[key]
		if !ok {
			continue
		}
		if len(values) == 0 || slices.Contains(values, v) || slices.Contains(values, "*") {
			return true
		}
	}
	return false
}
