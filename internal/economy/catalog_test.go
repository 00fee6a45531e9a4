package economy

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.Greater(t, c.Len(), 10)

	market, err := c.Get(Marketplace)
	require.NoError(t, err)
	assert.True(t, market.Municipal)
	assert.False(t, market.IsProduction())

	house, err := c.Get("house1")
	require.NoError(t, err)
	assert.True(t, house.IsHousing())
	assert.Equal(t, MaterialsFixed, house.Materials.Kind)

	bakery, err := c.Get("bakery")
	require.NoError(t, err)
	assert.True(t, bakery.IsProduction())
	require.Equal(t, MaterialsAlternatives, bakery.Materials.Kind)
	assert.Equal(t, []Bundle{
		{{Resource: "flour", Amount: 2}},
		{{Resource: "wood", Amount: 1}, {Resource: "coal", Amount: 1}},
	}, bakery.Materials.Alternatives)

	_, err = c.Get("spaceport")
	assert.True(t, errors.Is(err, ErrUnknownBuilding))
}

func TestParseCatalogDefaults(t *testing.T) {
	c, err := ParseCatalog([]byte(`
hut:
  production: {wood: 1}
`))
	require.NoError(t, err)
	hut, err := c.Get("hut")
	require.NoError(t, err)
	assert.Equal(t, "hut", hut.Kind)
	assert.Equal(t, "hut", hut.Name)
	assert.Equal(t, "hut", hut.Handle)
	assert.Equal(t, 1, hut.Levels)
	assert.Equal(t, 1, hut.Level)
	assert.True(t, hut.Materials.IsZero())
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown requirement", "a:\n  requires:\n    buildings: {b: 1}\n"},
		{"level above cap", "a:\n  levels: 2\n  level: 3\n"},
		{"scalar materials", "a:\n  materials: 5\n"},
		{"alternative not a mapping", "a:\n  materials: [wood]\n"},
		{"bad amount", "a:\n  materials: [{wood: lots}]\n"},
		{"not yaml", "a: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("well:\n  production: {water: 3}\n  levels: 2\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"well"}, c.Kinds())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMaterialsJSON(t *testing.T) {
	fixed, err := json.Marshal(FixedMaterials(Resources{"wood": 2}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"wood": 2}`, string(fixed))

	alts, err := json.Marshal(AlternativeMaterials(Bundle{{Resource: "coal", Amount: 1}}))
	require.NoError(t, err)
	assert.JSONEq(t, `[[{"resource": "coal", "amount": 1}]]`, string(alts))

	none, err := json.Marshal(Materials{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(none))
}

func TestResources(t *testing.T) {
	r := Resources{"wood": 1200, "faith": 3, "iron": 2}
	assert.Equal(t, 1202, r.Stored())
	assert.Equal(t, "3 faith, 2 iron, 1,200 wood", r.String())
	assert.Equal(t, Resources{"wood": 2400, "faith": 6, "iron": 4}, r.Scale(2))

	clone := r.Clone()
	clone["wood"] = 0
	assert.Equal(t, 1200, r["wood"])

	assert.Equal(t, Resources{"a": 3, "b": 1}, Bundle{{"a", 1}, {"b", 1}, {"a", 2}}.Resources())
	assert.True(t, IsStat(Prestige))
	assert.False(t, IsStat(Coins))
}

func TestChanceResourcesSorted(t *testing.T) {
	spec := &BuildingSpec{Chance: map[string]float64{"gold": 0.1, "gems": 0.2, "amber": 0.3}}
	assert.Equal(t, []string{"amber", "gems", "gold"}, spec.ChanceResources())
}
