package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/engine"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSim(t *testing.T) *engine.Simulation {
	t.Helper()
	cells := make([][]world.Cell, 12)
	for y := range cells {
		cells[y] = make([]world.Cell, 16)
		for x := range cells[y] {
			cells[y][x] = world.Cell{E: 0.5, M: 0.4}
		}
	}
	w, err := world.Restore(world.GenConfig{Width: 16, Height: 12, Erosion: 2},
		world.Seeds{Elevation: 7, Moisture: 8}, cells)
	require.NoError(t, err)
	return engine.NewSimulation(w, economy.DefaultCatalog(), 3)
}

func TestLoadEmpty(t *testing.T) {
	db := openTestDB(t)
	ok, err := db.HasWorld()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.LoadWorldState(economy.DefaultCatalog(), 1)
	assert.True(t, errors.Is(err, ErrNoWorld))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	sim := testSim(t)

	cfg := engine.DefaultFounding()
	cfg.Tier = world.TierCity
	sett, err := sim.FoundSettlement(cfg)
	require.NoError(t, err)
	_, err = sim.BuildingAction(sett.ID(), "lumberjack", engine.ActionUpgrade)
	require.NoError(t, err)
	_, err = sim.BuildingAction(sett.ID(), "farm", engine.ActionStop)
	require.NoError(t, err)
	require.NoError(t, sim.GrantResearch(sett.ID(), "masonry"))
	sim.TickTurn(5)
	sim.SetLastTick(5)

	require.NoError(t, db.SaveWorldState(sim))
	ok, err := db.HasWorld()
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := db.LoadWorldState(economy.DefaultCatalog(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), loaded.CurrentTick())

	var fpSaved, fpLoaded string
	var owner uint64
	sim.Read(func(w *world.World, _ []*social.Settlement) { fpSaved = w.Fingerprint() })
	loaded.Read(func(w *world.World, _ []*social.Settlement) {
		fpLoaded = w.Fingerprint()
		owner, _ = w.LockedBy(sett.Location())
	})
	assert.Equal(t, fpSaved, fpLoaded)
	assert.Equal(t, sett.ID(), owner)

	want, ok := sim.Settlement(sett.ID())
	require.True(t, ok)
	got, ok := loaded.Settlement(sett.ID())
	require.True(t, ok)

	wv, gv := want.View(), got.View()
	assert.Equal(t, wv.Name, gv.Name)
	assert.Equal(t, wv.Location, gv.Location)
	assert.Equal(t, wv.Tier, gv.Tier)
	assert.Equal(t, wv.Coastal, gv.Coastal)
	assert.Equal(t, wv.Coins, gv.Coins)
	assert.Equal(t, wv.Storage, gv.Storage)
	assert.Equal(t, wv.Resources, gv.Resources)
	assert.Equal(t, wv.Research, gv.Research)
	require.Len(t, gv.Buildings, len(wv.Buildings))
	for i := range wv.Buildings {
		assert.Equal(t, wv.Buildings[i].Kind, gv.Buildings[i].Kind)
		assert.Equal(t, wv.Buildings[i].Level, gv.Buildings[i].Level)
		assert.Equal(t, wv.Buildings[i].Stopped, gv.Buildings[i].Stopped)
		assert.Equal(t, wv.Buildings[i].Position, gv.Buildings[i].Position)
	}

	assert.Equal(t, len(sim.Events()), len(loaded.Events()))
}

func TestSaveIsIdempotentForEvents(t *testing.T) {
	db := openTestDB(t)
	sim := testSim(t)
	_, err := sim.FoundSettlement(engine.DefaultFounding())
	require.NoError(t, err)

	require.NoError(t, db.SaveWorldState(sim))
	require.NoError(t, db.SaveWorldState(sim))

	events, err := db.RecentEvents(engine.MaxEvents)
	require.NoError(t, err)
	assert.Len(t, events, len(sim.Events()))
}

func TestLoadRejectsTamperedGrid(t *testing.T) {
	db := openTestDB(t)
	sim := testSim(t)
	require.NoError(t, db.SaveWorldState(sim))

	_, err := db.conn.Exec("UPDATE world_meta SET value = 'deadbeef' WHERE key = 'fingerprint'")
	require.NoError(t, err)

	_, err = db.LoadWorldState(economy.DefaultCatalog(), 3)
	assert.True(t, errors.Is(err, ErrFingerprintMismatch))
}

func TestGridCompression(t *testing.T) {
	raw := []byte(`[[{"e":0.5,"m":0.4,"l":false}]]`)
	packed, err := compress(raw)
	require.NoError(t, err)
	unpacked, err := decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, raw, unpacked)
}
