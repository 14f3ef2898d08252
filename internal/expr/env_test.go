package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	env := map[string]string{"HZ": "100", "A": "1", "B": "2", "X": "x"}
	lookup := func(key string) string { return env[key] }

	testCases := []struct {
		description string
		input       string
		expect      string
	}{
		{description: "plain", input: "hz: 50", expect: "hz: 50"},
		{description: "single", input: "hz: ${env.HZ}", expect: "hz: 100"},
		{description: "repeated", input: "${env.A}-${env.B}-${env.A}", expect: "1-2-1"},
		{description: "unset", input: "v=${env.NOTSET}-end", expect: "v=-end"},
		{description: "unterminated", input: "start ${env.X and ${env.Y} end", expect: "start ${env.X and  end"},
		{description: "empty key", input: "[${env.}]", expect: "[]"},
		{description: "no closing brace", input: "tail ${env.X", expect: "tail ${env.X"},
		{description: "invalid then valid", input: "${env.A-${env.B}}", expect: "${env.A-2}"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expect, expand(tc.input, lookup), tc.description)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VALEN_EXPR_TEST", "on")
	assert.Equal(t, "tracing: on", ExpandEnv("tracing: ${env.VALEN_EXPR_TEST}"))
}
