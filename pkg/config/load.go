package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// LoadFile reads and unmarshals a YAML config file. It does not validate.
func LoadFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config file '%s': %w", utils.ErrConfigValidation, path, err)
	}
	return &cfg, nil
}

// SiteKeys returns the configured site keys in sorted order
func (c *AppConfig) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for k := range c.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
