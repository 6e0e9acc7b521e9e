package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashConfig fingerprints the decoded config, so formatting-only edits and
// YAML/JSON rewrites of the same values hash equal. Zero means "no hash".
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	h := fnv.New64a()
	if err := json.NewEncoder(h).Encode(cfg); err != nil {
		return 0
	}
	return h.Sum64()
}
