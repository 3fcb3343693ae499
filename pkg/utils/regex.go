package utils

import (
	"fmt"
	"regexp"
)

// CompilePathPatterns compiles the regexes of a list-valued config key.
// Blank entries are skipped. An invalid entry is reported as key[#n] with its 1-based position.
func CompilePathPatterns(key string, patterns []string) ([]*regexp.Regexp, error) {
	var compiled []*regexp.Regexp
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[#%d] '%s': %w", ErrConfigValidation, key, i+1, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
