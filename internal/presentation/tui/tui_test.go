package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	lines := strings.Split(strings.Trim(buf.String(), "\n"), "\n")
	assert.Len(t, lines, len(bannerLines))
	assert.NotContains(t, buf.String(), "\x1b[", "no color for a non-terminal writer")
}

func TestRenderer(t *testing.T) {
	render, err := NewRenderer()
	require.NoError(t, err)
	out, err := render("# Title\n\nSome *text*.")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
}
