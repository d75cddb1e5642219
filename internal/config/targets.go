package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TargetConfig describes one advisor directory site.
type TargetConfig struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	Verified    bool   `yaml:"verified"`
	SearchTerms string `yaml:"search_terms"`
}

// TargetsDocument is the on-disk layout of TARGETS_FILE.
type TargetsDocument struct {
	Targets []TargetConfig `yaml:"targets"`
	Filters []string       `yaml:"filters"`
}

// DefaultTargets returns the built-in directory sites.
func DefaultTargets() []TargetConfig {
	return []TargetConfig{
		{
			Name:        "UBS",
			BaseURL:     "https://www.ubs.com/us/en/wealth-management/find-an-advisor.html",
			SearchTerms: "UBS financial advisor directory United States",
		},
		{
			Name:        "Morgan Stanley",
			BaseURL:     "https://advisor.morganstanley.com/search",
			SearchTerms: "Morgan Stanley financial advisor directory search",
		},
		{
			Name:        "Merrill Lynch",
			BaseURL:     "https://advisor.ml.com/search?bylocation=true",
			SearchTerms: "Merrill Lynch financial advisor directory search location",
		},
	}
}

// DefaultFilters returns the built-in list of states.
func DefaultFilters() []string {
	return []string{
		"New York", "New Jersey", "Florida", "Texas", "California", "Illinois",
		"Massachusetts", "Georgia", "Washington", "Washington DC", "Virginia",
		"Maryland", "Michigan", "Connecticut", "Pennsylvania", "North Carolina",
		"Ohio", "Rhode Island", "Minnesota",
	}
}

// loadTargets fills Targets and Filters from TARGETS_FILE (if set) or the defaults,
// then narrows them with TARGET_COMPANIES and TARGET_STATES.
func (c *Config) loadTargets() error {
	c.Targets = DefaultTargets()
	c.Filters = DefaultFilters()

	if c.TargetsFile != "" {
		tf, err := ReadTargetsFile(c.TargetsFile)
		if err != nil {
			return err
		}
		if len(tf.Targets) > 0 {
			c.Targets = tf.Targets
		}
		if len(tf.Filters) > 0 {
			c.Filters = tf.Filters
		}
	}

	c.Filters = getEnvAsList("TARGET_STATES", c.Filters)

	if names := getEnvAsList("TARGET_COMPANIES", nil); len(names) > 0 {
		c.Targets = SelectTargets(c.Targets, names)
	}

	return nil
}

// ReadTargetsFile parses a YAML targets file.
func ReadTargetsFile(path string) (*TargetsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var tf TargetsDocument
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}

	for i, t := range tf.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("targets file %s: target %d has no name", path, i)
		}
	}

	return &tf, nil
}

// SelectTargets keeps the named targets in the order given by names. Names are
// matched case-insensitively; an unknown name becomes an unverified target with
// no entry URL so that discovery can find one.
func SelectTargets(all []TargetConfig, names []string) []TargetConfig {
	byName := make(map[string]TargetConfig, len(all))
	for _, t := range all {
		byName[strings.ToLower(t.Name)] = t
	}

	out := make([]TargetConfig, 0, len(names))
	for _, name := range names {
		if t, ok := byName[strings.ToLower(name)]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, TargetConfig{
			Name:        name,
			SearchTerms: name + " financial advisor directory",
		})
	}
	return out
}
