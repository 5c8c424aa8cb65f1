package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Dictionary is a compiled keyword-to-category lookup built from JSON keyword
// files. It is constructed once and read-only afterwards, so concurrent
// readers need no locking.
type Dictionary struct {
	rules []keywordRule
}

// LoadDictionary merges keyword files into one dictionary. Each file maps a
// category name to a list of trigger substrings. On keyword collision the
// first file wins. Missing or invalid files are skipped with a warning; an
// empty dictionary is a valid result.
func LoadDictionary(paths ...string) *Dictionary {
	compiled := map[string]Category{}
	var used []string

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("Skipping status keyword file")
			continue
		}

		var mapping map[string][]string
		if err := json.Unmarshal(data, &mapping); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("Invalid status keyword file")
			continue
		}

		for status, keywords := range mapping {
			for _, kw := range keywords {
				key := strings.ToLower(strings.TrimSpace(kw))
				if key == "" {
					continue
				}
				if _, exists := compiled[key]; !exists {
					compiled[key] = strings.ToUpper(strings.TrimSpace(status))
				}
			}
		}
		used = append(used, path)
	}

	if len(used) > 0 {
		log.Info().Strs("paths", used).Int("keywords", len(compiled)).Msg("Status keyword dictionary loaded")
	} else {
		log.Warn().Msg("No status keyword files found, using heuristics and overrides only")
	}

	// Sorted keyword order keeps ties reproducible across runs.
	rules := make([]keywordRule, 0, len(compiled))
	for kw, status := range compiled {
		rules = append(rules, keywordRule{Keyword: kw, Status: status})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Keyword < rules[j].Keyword })

	return &Dictionary{rules: rules}
}

// NewDictionary builds a dictionary directly from a category-to-keywords map.
// Intended for tests and programmatic use.
func NewDictionary(mapping map[string][]string) *Dictionary {
	compiled := map[string]Category{}
	for status, keywords := range mapping {
		for _, kw := range keywords {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" {
				continue
			}
			if _, exists := compiled[key]; !exists {
				compiled[key] = strings.ToUpper(strings.TrimSpace(status))
			}
		}
	}

	rules := make([]keywordRule, 0, len(compiled))
	for kw, status := range compiled {
		rules = append(rules, keywordRule{Keyword: kw, Status: status})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Keyword < rules[j].Keyword })

	return &Dictionary{rules: rules}
}

// Lookup returns the category of the first keyword contained in text.
func (d *Dictionary) Lookup(text string) (Category, string, bool) {
	for _, rule := range d.rules {
		if strings.Contains(text, rule.Keyword) {
			return rule.Status, rule.Keyword, true
		}
	}
	return "", "", false
}

// Len returns the number of compiled keywords.
func (d *Dictionary) Len() int {
	return len(d.rules)
}

// String describes the dictionary for diagnostics.
func (d *Dictionary) String() string {
	return fmt.Sprintf("Dictionary(%d keywords)", len(d.rules))
}
