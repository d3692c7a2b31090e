package codeblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"python fence", "```python\nX\n```", "X"},
		{"plain", "plain code", "plain code"},
		{"first of two", "```python\nA\n```\n```python\nB\n```", "A"},
		{"plain trimmed", "\n  fig = 1  \n\n", "fig = 1"},
		{"untagged fence", "Here:\n```\nfig, ax = plt.subplots()\n```\nDone.", "fig, ax = plt.subplots()"},
		{"py tag", "```py\na = 1\nb = 2\n```", "a = 1\nb = 2"},
		{"python3 tag", "```python3\nz = 3\n```", "z = 3"},
		{"starlark tag", "```starlark\ns = 1\n```", "s = 1"},
		{"crlf", "```python\r\nX\r\n```", "X"},
		{"close without newline", "```python\nX```", "X"},
		{"unterminated", "```python\nX", "```python\nX"},
		{"interior kept verbatim", "```python\n  indented\n\n```", "  indented\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.in))
		})
	}
}

func TestFenced(t *testing.T) {
	assert.True(t, Fenced("```python\nX\n```"))
	assert.False(t, Fenced("X"))
}
