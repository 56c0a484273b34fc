package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each config section to its valid keys. The empty section
// is the top level; "ipfs.nodes" is the node array-of-tables.
var knownKeys = map[string]map[string]bool{
	"":           {"backend": true},
	"onedrive":   {"client_id": true, "tenant": true, "drive_id": true, "token_file": true},
	"ipfs":       {"uid": true, "publish_key": true, "nodes": true},
	"ipfs.nodes": {"ipv4": true, "ipv6": true, "port": true},
	"jobs":       {"poll_interval": true, "max_wait": true},
	"logging":    {"log_level": true, "log_format": true},
	"network":    {"connect_timeout": true, "user_agent": true},
	"journal":    {"path": true},
	"metrics":    {"textfile": true},
}

// knownSectionsList is the sorted list of top-level table names, used for
// suggestions when a whole section is misspelled.
var knownSectionsList = []string{"ipfs", "journal", "jobs", "logging", "metrics", "network", "onedrive"}

// sortedKeys returns the keys of a known section in sorted order so that
// suggestions are deterministic when two candidates tie.
func sortedKeys(section string) []string {
	keys := make([]string, 0, len(knownKeys[section]))
	for k := range knownKeys[section] {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. Keys
// under an unknown section are reported once, as the section.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		if reported[key[0]] {
			continue
		}

		section := strings.Join(key[:len(key)-1], ".")
		leaf := key[len(key)-1]

		if _, ok := knownKeys[section]; !ok {
			reported[key[0]] = true
			errs = append(errs, unknownKeyError(key[0], "", knownSectionsList))

			continue
		}

		if section == "" {
			reported[leaf] = true
			candidates := append(sortedKeys(""), knownSectionsList...)
			errs = append(errs, unknownKeyError(leaf, "", candidates))

			continue
		}

		errs = append(errs, unknownKeyError(leaf, section, sortedKeys(section)))
	}

	return errors.Join(errs...)
}

// unknownKeyError builds a descriptive error for one unknown key,
// suggesting the closest known key when one is near enough.
func unknownKeyError(key, section string, candidates []string) error {
	where := ""
	if section != "" {
		where = fmt.Sprintf(" in [%s]", section)
	}

	if suggestion := closestMatch(key, candidates); suggestion != "" {
		return fmt.Errorf("unknown config key %q%s (did you mean %q?)", key, where, suggestion)
	}

	return fmt.Errorf("unknown config key %q%s", key, where)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
