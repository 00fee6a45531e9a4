package world

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSettlement struct {
	id      uint64
	name    string
	loc     HexCoord
	tier    Tier
	coastal bool
}

func (s *testSettlement) ID() uint64         { return s.id }
func (s *testSettlement) Name() string       { return s.name }
func (s *testSettlement) Location() HexCoord { return s.loc }
func (s *testSettlement) Tier() Tier         { return s.tier }
func (s *testSettlement) SetCoastal(v bool)  { s.coastal = v }

type testPlace struct {
	id      uint64
	loc     HexCoord
	claimer uint64
}

func (p testPlace) ID() uint64         { return p.id }
func (p testPlace) Location() HexCoord { return p.loc }
func (p testPlace) ClaimedBy() (uint64, bool) {
	return p.claimer, p.claimer != 0
}

// flatWorld returns a world whose every hex has the same elevation and moisture.
func flatWorld(t *testing.T, width, height int, e, m float64) *World {
	t.Helper()
	cells := makeCells(width, height)
	for y := range cells {
		for x := range cells[y] {
			cells[y][x].E = e
			cells[y][x].M = m
		}
	}
	w, err := Restore(GenConfig{Width: width, Height: height, Erosion: 2}, Seeds{Elevation: 1, Moisture: 2}, cells)
	require.NoError(t, err)
	return w
}

func assertLockInvariant(t *testing.T, w *World) {
	t.Helper()
	for y, row := range w.Cells() {
		for x, c := range row {
			assert.Equal(t, c.L, c.LID != nil, "lock invariant broken at (%d,%d)", x, y)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := New(cfg)
	b := New(cfg)

	require.Equal(t, a.Seeds(), b.Seeds())
	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			h := HexCoord{X: x, Y: y}
			assert.Equal(t, a.Elevation(h), b.Elevation(h), "elevation at %v", h)
			assert.Equal(t, a.Moisture(h), b.Moisture(h), "moisture at %v", h)
		}
	}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestGenerateFieldsInRange(t *testing.T) {
	w := New(SmallTestConfig())
	for y := 0; y < w.Height(); y++ {
		for x := 0; x < w.Width(); x++ {
			h := HexCoord{X: x, Y: y}
			assert.GreaterOrEqual(t, w.Elevation(h), 0.0)
			assert.LessOrEqual(t, w.Elevation(h), 1.0)
			assert.GreaterOrEqual(t, w.Moisture(h), 0.0)
			assert.LessOrEqual(t, w.Moisture(h), 1.0)
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	cfg := SmallTestConfig()
	a := New(cfg)
	cfg.ElevationSeed++
	b := New(cfg)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestRandomSeedsAssigned(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.ElevationSeed = 0
	cfg.MoistureSeed = 0
	w := New(cfg)
	assert.GreaterOrEqual(t, w.Seeds().Elevation, int64(minSeed))
	assert.LessOrEqual(t, w.Seeds().Elevation, int64(maxSeed))
	assert.GreaterOrEqual(t, w.Seeds().Moisture, int64(minSeed))
}

func TestRegenerateReproducesFields(t *testing.T) {
	w := New(SmallTestConfig())
	before := w.Fingerprint()
	require.NoError(t, w.LockHex(HexCoord{X: 1, Y: 1}, 9))
	w.Regenerate()
	assert.Equal(t, before, w.Fingerprint())
	assert.True(t, w.IsLocked(HexCoord{X: 1, Y: 1}))
}

func TestRestoreRejectsBadGrid(t *testing.T) {
	cfg := SmallTestConfig()
	_, err := Restore(cfg, Seeds{}, makeCells(cfg.Width-1, cfg.Height))
	assert.Error(t, err)

	cells := makeCells(cfg.Width, cfg.Height)
	cells[0][0].L = true
	_, err = Restore(cfg, Seeds{}, cells)
	assert.Error(t, err)
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		e, m float64
		want Biome
	}{
		{0, 0, BiomeOcean},
		{0.1, 0.9, BiomeOcean},
		{0.1000001, 0.5, BiomeBeach},
		{0.15, 0.5, BiomeBeach},
		{0.2, 0.30, BiomeSubtropicalDesert},
		{0.2, 0.45, BiomeGrass},
		{0.2, 0.66, BiomeTropicalSeasonalForest},
		{0.35, 0.67, BiomeTropicalRainForest},
		{0.5, 0.20, BiomeTemperateDesert},
		{0.5, 0.50, BiomeGrass},
		{0.75, 0.83, BiomeTemperateDeciduousForest},
		{0.5, 0.84, BiomeTemperateRainForest},
		{0.78, 0.33, BiomeTemperateDesert},
		{0.78, 0.66, BiomeShrubland},
		{0.8, 0.7, BiomeTaiga},
		{0.85, 0.1, BiomeHills},
		{0.9, 0.79, BiomeMountains},
		{0.9, 0.8, BiomeMountainsIce},
		{1, 1, BiomeMountainsIce},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.e, tt.m), "Classify(%v, %v)", tt.e, tt.m)
	}
}

func TestClassifyTotal(t *testing.T) {
	known := make(map[Biome]bool, len(Biomes))
	for _, b := range Biomes {
		known[b] = true
	}
	const steps = 200
	for i := 0; i <= steps; i++ {
		for j := 0; j <= steps; j++ {
			b := Classify(float64(i)/steps, float64(j)/steps)
			require.True(t, known[b], "unexpected biome %q", b)
		}
	}
}

func TestClimateOf(t *testing.T) {
	for _, b := range Biomes {
		if b == BiomeOcean {
			continue
		}
		_, err := ClimateOf(b)
		assert.NoError(t, err, "biome %q", b)
	}

	c, err := ClimateOf(BiomeSnow)
	require.NoError(t, err)
	assert.Equal(t, ClimatePolar, c)

	c, err = ClimateOf(BiomeTropicalRainForest)
	require.NoError(t, err)
	assert.Equal(t, ClimateTropical, c)

	_, err = ClimateOf(BiomeOcean)
	assert.True(t, errors.Is(err, ErrUnknownBiome))
	_, err = ClimateOf("lava")
	assert.True(t, errors.Is(err, ErrUnknownBiome))
}

func TestBiomesOfRoundTrip(t *testing.T) {
	for _, c := range []Climate{ClimateTropical, ClimateArid, ClimatePolar, ClimateTemperate} {
		for _, b := range BiomesOf(c) {
			got, err := ClimateOf(b)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	}
	assert.Nil(t, BiomesOf(Climate(99)))
}

func TestColorsCoverBiomes(t *testing.T) {
	colors := Colors()
	for _, b := range Biomes {
		assert.NotEmpty(t, colors[b], "biome %q", b)
	}
}

func TestNeighborsParity(t *testing.T) {
	even := HexCoord{X: 4, Y: 4}
	assert.Equal(t, [6]HexCoord{
		{5, 4}, {5, 3}, {4, 3}, {3, 4}, {3, 3}, {4, 5},
	}, even.Neighbors())

	odd := HexCoord{X: 5, Y: 4}
	assert.Equal(t, [6]HexCoord{
		{6, 4}, {6, 5}, {5, 3}, {4, 4}, {4, 5}, {5, 5},
	}, odd.Neighbors())
}

func TestNeighborsMutual(t *testing.T) {
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			a := HexCoord{X: x, Y: y}
			for _, b := range a.Neighbors() {
				assert.True(t, b.IsNeighbor(a), "%v lists %v but not the reverse", a, b)
			}
		}
	}
}

func TestDistance(t *testing.T) {
	a := HexCoord{X: 0, Y: 0}
	assert.Equal(t, 0, Distance(a, a))
	assert.Equal(t, 500, Distance(a, HexCoord{X: 3, Y: 4}))
	// sqrt(2) floors to 1 before scaling.
	assert.Equal(t, 100, Distance(a, HexCoord{X: 1, Y: 1}))
	// 141.42 / 15 = 9.43
	assert.Equal(t, 9, TravelDays(a, HexCoord{X: 1, Y: 1}))
	assert.Equal(t, 33, TravelDays(a, HexCoord{X: 3, Y: 4}))
}

func TestLockUnlock(t *testing.T) {
	w := flatWorld(t, 8, 8, 0.5, 0.5)
	h := HexCoord{X: 2, Y: 3}

	require.NoError(t, w.LockHex(h, 7))
	assert.True(t, w.IsLocked(h))
	owner, ok := w.LockedBy(h)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), owner)

	require.NoError(t, w.UnlockHex(h))
	assert.False(t, w.IsLocked(h))
	_, ok = w.LockedBy(h)
	assert.False(t, ok)

	assert.ErrorIs(t, w.LockHex(HexCoord{X: -1, Y: 0}, 1), ErrOutOfBounds)
	assertLockInvariant(t, w)
}

func TestSetHexRejectsBrokenLock(t *testing.T) {
	w := flatWorld(t, 4, 4, 0.5, 0.5)
	assert.Error(t, w.SetHex(HexCoord{X: 1, Y: 1}, Cell{L: true}))
	id := uint64(3)
	assert.NoError(t, w.SetHex(HexCoord{X: 1, Y: 1}, Cell{E: 0.4, L: true, LID: &id}))
	c, err := w.GetHex(HexCoord{X: 1, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.4, c.E)
}

func TestAddSettlementCity(t *testing.T) {
	w := flatWorld(t, 10, 10, 0.5, 0.5)
	s := &testSettlement{id: 3, name: "Ashford", loc: HexCoord{X: 4, Y: 4}, tier: TierCity}
	require.NoError(t, w.AddSettlement(s))

	c, _ := w.GetHex(s.loc)
	require.NotNil(t, c.S)
	assert.Equal(t, uint64(3), *c.S)
	assert.Equal(t, "Ashford", c.N)

	locked := 0
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if owner, ok := w.LockedBy(HexCoord{X: x, Y: y}); ok && owner == 3 {
				locked++
			}
		}
	}
	assert.Equal(t, 7, locked)
	assert.False(t, s.coastal)
	assertLockInvariant(t, w)
}

func TestAddSettlementMetropolis(t *testing.T) {
	w := flatWorld(t, 12, 12, 0.5, 0.5)
	s := &testSettlement{id: 5, loc: HexCoord{X: 6, Y: 6}, tier: TierMetropolis}
	require.NoError(t, w.AddSettlement(s))

	want := map[HexCoord]bool{s.loc: true}
	for _, h := range Territory(s.loc, TierMetropolis) {
		want[h] = true
	}
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			h := HexCoord{X: x, Y: y}
			assert.Equal(t, want[h], w.IsLocked(h), "hex %v", h)
		}
	}
	assert.Equal(t, 19, len(want))
}

func TestAddSettlementVillageLocksOwnHexOnly(t *testing.T) {
	w := flatWorld(t, 6, 6, 0.5, 0.5)
	s := &testSettlement{id: 2, loc: HexCoord{X: 2, Y: 2}, tier: TierVillage}
	require.NoError(t, w.AddSettlement(s))
	for _, n := range s.loc.Neighbors() {
		assert.False(t, w.IsLocked(n))
	}
	assert.True(t, w.IsLocked(s.loc))
}

func TestAddSettlementCoastal(t *testing.T) {
	w := flatWorld(t, 8, 8, 0.5, 0.5)
	cells := w.Cells()
	cells[2][3].E = 0.05 // ocean next to (3,3)
	s := &testSettlement{id: 4, loc: HexCoord{X: 3, Y: 3}, tier: TierCity}
	require.NoError(t, w.AddSettlement(s))
	assert.True(t, s.coastal)
}

func TestAddSettlementAtEdge(t *testing.T) {
	w := flatWorld(t, 5, 5, 0.5, 0.5)
	s := &testSettlement{id: 1, loc: HexCoord{X: 0, Y: 0}, tier: TierMetropolis}
	require.NoError(t, w.AddSettlement(s))
	assertLockInvariant(t, w)
}

func TestRemoveSettlementReleasesOnlyItsLocks(t *testing.T) {
	w := flatWorld(t, 14, 14, 0.5, 0.5)
	a := &testSettlement{id: 1, name: "A", loc: HexCoord{X: 3, Y: 3}, tier: TierMetropolis}
	b := &testSettlement{id: 2, name: "B", loc: HexCoord{X: 10, Y: 10}, tier: TierCity}
	require.NoError(t, w.AddSettlement(a))
	require.NoError(t, w.AddSettlement(b))

	w.RemoveSettlement(a)

	c, _ := w.GetHex(a.loc)
	assert.Nil(t, c.S)
	assert.Empty(t, c.N)
	for y := 0; y < 14; y++ {
		for x := 0; x < 14; x++ {
			owner, ok := w.LockedBy(HexCoord{X: x, Y: y})
			if ok {
				assert.Equal(t, uint64(2), owner)
			}
		}
	}
	assert.True(t, w.IsLocked(b.loc))
	assertLockInvariant(t, w)
}

func TestAddPlace(t *testing.T) {
	w := flatWorld(t, 6, 6, 0.5, 0.5)

	require.NoError(t, w.AddPlace(testPlace{id: 100, loc: HexCoord{X: 1, Y: 1}}))
	owner, ok := w.LockedBy(HexCoord{X: 1, Y: 1})
	require.True(t, ok)
	assert.Equal(t, uint64(100), owner)

	require.NoError(t, w.AddPlace(testPlace{id: 101, loc: HexCoord{X: 2, Y: 2}, claimer: 7}))
	owner, _ = w.LockedBy(HexCoord{X: 2, Y: 2})
	assert.Equal(t, uint64(7), owner)
	c, _ := w.GetHex(HexCoord{X: 2, Y: 2})
	require.NotNil(t, c.P)
	assert.Equal(t, uint64(101), *c.P)
}

func TestRandomLocationSkipsWaterAndLocks(t *testing.T) {
	w := flatWorld(t, 6, 6, 0.05, 0.5) // all ocean
	target := HexCoord{X: 4, Y: 1}
	w.Cells()[target.Y][target.X].E = 0.5
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		h, err := w.RandomLocation(rng)
		require.NoError(t, err)
		assert.Equal(t, target, h)
	}

	require.NoError(t, w.LockHex(target, 1))
	_, err := w.RandomLocation(rng)
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestRandomLocationBiomeFilter(t *testing.T) {
	w := flatWorld(t, 6, 6, 0.5, 0.5) // grass
	hills := HexCoord{X: 2, Y: 5}
	w.Cells()[hills.Y][hills.X].E = 0.82
	rng := rand.New(rand.NewSource(9))

	h, err := w.RandomLocation(rng, BiomeHills)
	require.NoError(t, err)
	assert.Equal(t, hills, h)

	_, err = w.RandomLocation(rng, BiomeTaiga)
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestBiomeCounts(t *testing.T) {
	w := flatWorld(t, 4, 5, 0.5, 0.5)
	counts := w.BiomeCounts()
	assert.Equal(t, map[Biome]int{BiomeGrass: 20}, counts)
}
