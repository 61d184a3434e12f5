package material

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

// ---------------------------------------------------------------------------
// ParseHexColor
// ---------------------------------------------------------------------------

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    RGB
		wantErr bool
	}{
		{in: "#000000", want: RGB{0, 0, 0}},
		{in: "#ffffff", want: RGB{1, 1, 1}},
		{in: "FF0000", want: RGB{1, 0, 0}},
		{in: "#084de2ff", want: RGB{8.0 / 255, 77.0 / 255, 226.0 / 255}},
		{in: "#084de200", want: RGB{8.0 / 255, 77.0 / 255, 226.0 / 255}},
		{in: "#fff", wantErr: true},
		{in: "#gg0000", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestRGB_Hex(t *testing.T) {
	c, err := ParseHexColor("#0B0B0B")
	require.NoError(t, err)
	assert.Equal(t, "#0b0b0b", c.Hex())
	assert.Equal(t, "#ffffff", RGB{2, 1, 1}.Hex())
}

// ---------------------------------------------------------------------------
// Library
// ---------------------------------------------------------------------------

func TestNewLibrary_DuplicateID(t *testing.T) {
	_, err := NewLibrary([]MaterialPreset{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T", err)
	assert.Equal(t, "preset a", cfgErr.Entry)
}

func TestNewLibrary_RejectsEmptyID(t *testing.T) {
	_, err := NewLibrary([]MaterialPreset{{Label: "nameless"}})
	assert.Error(t, err)
}

func TestNewLibrary_RejectsOutOfRangeColor(t *testing.T) {
	_, err := NewLibrary([]MaterialPreset{{ID: "hot", BaseColor: &RGB{1.5, 0, 0}}})
	assert.Error(t, err)
}

func TestLibrary_Get(t *testing.T) {
	lib, err := NewLibrary([]MaterialPreset{
		{ID: "steel", Metallic: floatPtr(1)},
		{ID: "oak", BaseColorMap: "/maps/oak.png"},
	})
	require.NoError(t, err)

	p, ok := lib.Get("steel")
	require.True(t, ok)
	assert.Equal(t, 1.0, *p.Metallic)

	_, ok = lib.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"steel", "oak"}, lib.IDs())
	assert.Equal(t, 2, lib.Len())
}

func TestLibrary_GetReturnsCopy(t *testing.T) {
	lib, err := NewLibrary([]MaterialPreset{{ID: "steel", Metallic: floatPtr(0.5), BaseColor: &RGB{0.1, 0.2, 0.3}}})
	require.NoError(t, err)

	p, _ := lib.Get("steel")
	*p.Metallic = 0
	p.BaseColor[0] = 1

	again, _ := lib.Get("steel")
	assert.Equal(t, 0.5, *again.Metallic)
	assert.Equal(t, 0.1, again.BaseColor[0])
}

// ---------------------------------------------------------------------------
// SlotCatalog
// ---------------------------------------------------------------------------

func testLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := NewLibrary([]MaterialPreset{{ID: "red"}, {ID: "blue"}, {ID: "oak"}})
	require.NoError(t, err)
	return lib
}

func TestNewSlotCatalog_Validation(t *testing.T) {
	tests := []struct {
		name  string
		slots []SlotSpec
	}{
		{name: "empty targets", slots: []SlotSpec{{ID: "seat", Allowed: []string{"red"}}}},
		{name: "blank target", slots: []SlotSpec{{ID: "seat", Targets: []string{""}, Allowed: []string{"red"}}}},
		{name: "unknown preset", slots: []SlotSpec{{ID: "seat", Targets: []string{"seat_mat"}, Allowed: []string{"gold"}}}},
		{name: "empty allowed", slots: []SlotSpec{{ID: "seat", Targets: []string{"seat_mat"}}}},
		{name: "missing id", slots: []SlotSpec{{Targets: []string{"seat_mat"}, Allowed: []string{"red"}}}},
		{name: "duplicate id", slots: []SlotSpec{
			{ID: "seat", Targets: []string{"a"}, Allowed: []string{"red"}},
			{ID: "seat", Targets: []string{"b"}, Allowed: []string{"blue"}},
		}},
	}
	lib := testLibrary(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSlotCatalog(map[string][]SlotSpec{"Chair": tt.slots}, lib)
			require.Error(t, err)
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T", err)
		})
	}
}

func TestSlotCatalog_UnknownCategoryIsEmpty(t *testing.T) {
	sc, err := NewSlotCatalog(map[string][]SlotSpec{
		"Chair": {{ID: "seat", Targets: []string{"seat_mat"}, Allowed: []string{"red"}}},
	}, testLibrary(t))
	require.NoError(t, err)

	for _, category := range []string{"", "Sofa", "chair", "Barhocker"} {
		got := sc.SlotsFor(category)
		assert.NotNil(t, got, "SlotsFor(%q)", category)
		assert.Empty(t, got, "SlotsFor(%q)", category)
	}
}

func TestSlotCatalog_PreservesOrder(t *testing.T) {
	sc, err := NewSlotCatalog(map[string][]SlotSpec{
		"Chair": {
			{ID: "seat", Targets: []string{"seat_mat"}, Allowed: []string{"red", "blue"}},
			{ID: "legs", Targets: []string{"leg_mat"}, Allowed: []string{"oak"}},
			{ID: "back", Targets: []string{"back_mat"}, Allowed: []string{"blue"}},
		},
	}, testLibrary(t))
	require.NoError(t, err)

	slots := sc.SlotsFor("Chair")
	require.Len(t, slots, 3)
	assert.Equal(t, "seat", slots[0].ID)
	assert.Equal(t, "legs", slots[1].ID)
	assert.Equal(t, "back", slots[2].ID)

	slots[0].Allowed[0] = "oak"
	again, ok := sc.Slot("Chair", "seat")
	require.True(t, ok)
	assert.Equal(t, "red", again.Default())
	assert.True(t, again.Allows("blue"))
	assert.False(t, again.Allows("oak"))

	_, ok = sc.Slot("Chair", "arm")
	assert.False(t, ok)
	assert.Equal(t, []string{"Chair"}, sc.Categories())
}
