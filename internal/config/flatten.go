package config

import (
	"fmt"
	"sort"
	"strings"
)

var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"telegram.token": true,
}

// IsSecretKey reports whether a dotted key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns {"capture": {"clip_seconds": 3}} into
// {"capture.clip_seconds": 3}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(k, child)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar in the way of a nested key
// is replaced by a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		section := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := section[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				section[part] = next
			}
			section = next
		}
		section[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets copies flat with credentials reduced to their last four
// characters, e.g. "***abcd". Empty secrets stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			continue
		}
		if len(s) > 4 {
			s = s[len(s)-4:]
		}
		out[k] = "***" + s
	}
	return out
}

// KnownKeys lists every dotted key the daemon reads, sorted.
func KnownKeys() []string {
	m, err := ToMap(defaults())
	if err != nil {
		return nil
	}
	keys := make([]string, 0)
	for k := range Flatten(m) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// checkKey rejects keys the Config struct does not define, so a typo in
// `config set` does not silently do nothing.
func checkKey(key string) error {
	for _, k := range KnownKeys() {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown config key: %s", key)
}
