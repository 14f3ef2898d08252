// Package expr expands ${env.KEY} references in configuration text.
package expr

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// ExpandEnv replaces every ${env.KEY} in value with the environment variable
// KEY, or "" when it is unset. A reference without a closing brace is kept
// verbatim, as is one whose key is not made of letters, digits and '_'.
func ExpandEnv(value string) string {
	return expand(value, os.Getenv)
}

func expand(value string, lookup func(string) string) string {
	var b strings.Builder
	for {
		start := strings.Index(value, envPrefix)
		if start < 0 {
			b.WriteString(value)
			return b.String()
		}
		b.WriteString(value[:start])
		rest := value[start+len(envPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(value[start:])
			return b.String()
		}
		key := rest[:end]
		if !validKey(key) {
			b.WriteString(envPrefix)
			value = rest
			continue
		}
		b.WriteString(lookup(key))
		value = rest[end+1:]
	}
}

func validKey(key string) bool {
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
