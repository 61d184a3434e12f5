package material

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "materials.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadConfig_NotExists(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, `presets:
  - id: red
    baseColor: "#ff0000"
    roughness: 0.4
  - id: grey
    baseColor: [0.5, 0.5, 0.5]
categories:
  Chair:
    - id: seat
      targets: [seat_mat]
      allowed: [red, grey]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Presets, 2)
	assert.Equal(t, RGB{1, 0, 0}, *cfg.Presets[0].BaseColor)
	assert.Equal(t, RGB{0.5, 0.5, 0.5}, *cfg.Presets[1].BaseColor)

	lib, slots, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Len())
	assert.Len(t, slots.SlotsFor("Chair"), 1)
}

func TestParseConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no presets", yaml: "presets: []\n"},
		{name: "roughness out of range", yaml: "presets:\n  - id: a\n    roughness: 1.5\n"},
		{name: "metallic negative", yaml: "presets:\n  - id: a\n    metallic: -0.1\n"},
		{name: "missing preset id", yaml: "presets:\n  - label: x\n"},
		{name: "bad color", yaml: "presets:\n  - id: a\n    baseColor: \"#12\"\n"},
		{name: "short color list", yaml: "presets:\n  - id: a\n    baseColor: [1, 0]\n"},
		{name: "slot without targets", yaml: "presets:\n  - id: a\ncategories:\n  Chair:\n    - id: seat\n      allowed: [a]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfigBuild_UnknownPreset(t *testing.T) {
	cfg, err := ParseConfig([]byte(`presets:
  - id: a
categories:
  Chair:
    - id: seat
      targets: [seat_mat]
      allowed: [a, b]
`))
	require.NoError(t, err)
	_, _, err = cfg.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown preset "b"`)
}

func TestDefaultConfig_Barhocker(t *testing.T) {
	lib, slots, err := DefaultConfig().Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"aluminium", "leather-black", "wood-eiche", "plastic-blue", "Wood-eich"}, lib.IDs())

	bar := slots.SlotsFor("Barhocker")
	require.Len(t, bar, 3)
	assert.Equal(t, "Sitze innere", bar[0].ID)
	assert.Equal(t, []string{"seat_cover"}, bar[0].Targets)
	assert.Equal(t, []string{"plastic-blue", "leather-black"}, bar[0].Allowed)
	assert.Equal(t, "Sitze äußere", bar[1].ID)
	assert.Equal(t, []string{"seat_back"}, bar[1].Targets)
	assert.Equal(t, []string{"wood-eiche", "aluminium"}, bar[1].Allowed)
	assert.Equal(t, "Beine", bar[2].ID)
	assert.Equal(t, []string{"Leg_frame"}, bar[2].Targets)
	assert.Equal(t, []string{"wood-eiche", "aluminium", "Wood-eich"}, bar[2].Allowed)

	blue, ok := lib.Get("plastic-blue")
	require.True(t, ok)
	assert.Equal(t, "#084de2", blue.BaseColor.Hex())
	assert.Equal(t, 0.7, *blue.Roughness)

	oak, ok := lib.Get("wood-eiche")
	require.True(t, ok)
	assert.Equal(t, "/maps/Material/wood-eiche.png", oak.BaseColorMap)
	assert.Equal(t, 1.0, *oak.NormalScale)
	assert.Nil(t, oak.BaseColor)
}
