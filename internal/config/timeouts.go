package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlerTimeouts holds per-source overrides of the crawler timeout.
// Sources without an entry use the global default.
type CrawlerTimeouts struct {
	perSource map[string]time.Duration
	fallback  time.Duration
}

type timeoutsYAML struct {
	Timeouts map[string]string `yaml:"timeouts"`
}

// LoadCrawlerTimeouts reads a YAML file of the form
//
//	timeouts:
//	  leetcode: 10m
//	  atcoder: 45m
//
// Durations use Go syntax. An empty path yields only the fallback.
func LoadCrawlerTimeouts(path string, fallback time.Duration) (CrawlerTimeouts, error) {
	ct := CrawlerTimeouts{perSource: map[string]time.Duration{}, fallback: fallback}
	if path == "" {
		return ct, nil
	}
	content, err := os.ReadFile(path) // #nosec G304 -- operator-provided config path
	if err != nil {
		return ct, fmt.Errorf("op=config.LoadCrawlerTimeouts: %w", err)
	}
	var raw timeoutsYAML
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return ct, fmt.Errorf("op=config.LoadCrawlerTimeouts: %w", err)
	}
	for source, val := range raw.Timeouts {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return ct, fmt.Errorf("op=config.LoadCrawlerTimeouts: source %q: %w", source, err)
		}
		if d <= 0 {
			return ct, fmt.Errorf("op=config.LoadCrawlerTimeouts: source %q: timeout must be positive", source)
		}
		ct.perSource[strings.ToLower(strings.TrimSpace(source))] = d
	}
	return ct, nil
}

// For returns the timeout for a source.
func (ct CrawlerTimeouts) For(source string) time.Duration {
	if d, ok := ct.perSource[strings.ToLower(source)]; ok {
		return d
	}
	return ct.fallback
}
