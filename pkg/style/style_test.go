package style

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStyleRegistry(t *testing.T) {
	for _, name := range []string{"Header", "Success", "Error", "Warning", "Info", "Muted", "Bold", "Package", "Marker", "Path", "DryRunBanner"} {
		_, ok := StyleRegistry[name]
		assert.True(t, ok, "style %s should be registered", name)
	}
}

func TestLoadStylesFromData_Invalid(t *testing.T) {
	saved := StyleRegistry
	t.Cleanup(func() { StyleRegistry = saved })

	err := LoadStylesFromData([]byte("styles: [not, a, map"))
	require.Error(t, err)
	assert.Equal(t, saved, StyleRegistry, "a failed load keeps the previous registry")
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":     FormatAuto,
		"auto": FormatAuto,
		"term": FormatTerminal,
		"TEXT": FormatText,
		"yaml": FormatYAML,
		"yml":  FormatYAML,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDetectFormat_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, FormatText, DetectFormat(f))
	assert.Equal(t, FormatText, FormatAuto.Resolve(f))
	assert.Equal(t, FormatYAML, FormatYAML.Resolve(f))
}

func TestRenderer_Plain(t *testing.T) {
	r := NewRenderer(FormatText)
	assert.True(t, r.Plain())
	assert.Equal(t, "name", r.Style("Package", "name"))
	assert.Equal(t, "[ok] updated gaia", r.Line(StatusSuccess, "updated %s", "gaia"))
	assert.Equal(t, "[-]", r.Indicator(Status("unknown")))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "    a\n\n    b", Indent("a\n\nb", 2))
}
