package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBannerColors(t *testing.T) {
	colored := Banner("cr", "Blue", "collector v1.0.0")
	assert.True(t, strings.HasPrefix(colored, ColorBlue))
	assert.Contains(t, colored, ColorReset)
	assert.True(t, strings.HasSuffix(colored, "collector v1.0.0\n"))

	plain := Banner("cr", "magenta", "")
	assert.NotContains(t, plain, "\x1b[")
	assert.NotEmpty(t, strings.TrimSpace(plain))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "cr", "green", "manager")
	assert.Equal(t, Banner("cr", "green", "manager"), buf.String())
}
