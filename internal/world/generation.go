// World generation using layered simplex noise.
// Generates elevation and moisture fields from two independent seeds.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Seed range drawn when a config leaves a seed unset.
const (
	minSeed = 1
	maxSeed = 2147483646
)

// Octave amplitudes for frequencies 1, 2, 4, 8, 16, 32.
var (
	ElevationOctaves = [6]float64{1.00, 0.77, 0.00, 0.00, 0.00, 0.00}
	MoistureOctaves  = [6]float64{1.00, 0.75, 0.33, 0.33, 0.33, 0.50}
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Width         int     // Columns
	Height        int     // Rows
	ElevationSeed int64   // 0 = random
	MoistureSeed  int64   // 0 = random
	Erosion       float64 // Exponent applied to elevation; >1 biases toward lowlands
}

// DefaultGenConfig returns the standard world size.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:   64,
		Height:  64,
		Erosion: 2.0,
	}
}

// SmallTestConfig returns a tiny seeded world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:         16,
		Height:        12,
		ElevationSeed: 42,
		MoistureSeed:  4242,
		Erosion:       2.0,
	}
}

// New creates a world and generates its elevation and moisture fields.
// Unset seeds are drawn from the global random source.
func New(cfg GenConfig) *World {
	if cfg.ElevationSeed == 0 {
		cfg.ElevationSeed = randomSeed()
	}
	if cfg.MoistureSeed == 0 {
		cfg.MoistureSeed = randomSeed()
	}
	if cfg.Erosion <= 0 {
		cfg.Erosion = 1 // no erosion
	}
	w := &World{
		cfg:   cfg,
		seeds: Seeds{Elevation: cfg.ElevationSeed, Moisture: cfg.MoistureSeed},
		cells: makeCells(cfg.Width, cfg.Height),
	}
	w.generate()
	return w
}

// Restore rebuilds a world from persisted seeds and cells without
// regenerating. The cell grid must match the configured dimensions.
func Restore(cfg GenConfig, seeds Seeds, cells [][]Cell) (*World, error) {
	if len(cells) != cfg.Height {
		return nil, fmt.Errorf("restore: grid has %d rows, want %d", len(cells), cfg.Height)
	}
	for y, row := range cells {
		if len(row) != cfg.Width {
			return nil, fmt.Errorf("restore: row %d has %d cells, want %d", y, len(row), cfg.Width)
		}
		for x, c := range row {
			if c.L != (c.LID != nil) {
				return nil, fmt.Errorf("restore: cell (%d,%d) lock flag and lock owner disagree", x, y)
			}
		}
	}
	cfg.ElevationSeed = seeds.Elevation
	cfg.MoistureSeed = seeds.Moisture
	return &World{cfg: cfg, seeds: seeds, cells: cells}, nil
}

// Regenerate recomputes the fields from the world's seeds, leaving locks and
// settlement fields untouched.
func (w *World) Regenerate() {
	w.generate()
}

func (w *World) generate() {
	elevNoise := opensimplex.NewNormalized(w.seeds.Elevation)
	moistNoise := opensimplex.NewNormalized(w.seeds.Moisture)

	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			nx := float64(x)/float64(w.cfg.Width) - 0.5
			ny := float64(y)/float64(w.cfg.Height) - 0.5

			e := octaveNoise(elevNoise, nx, ny, ElevationOctaves[:])
			e = math.Pow(e, w.cfg.Erosion)
			m := octaveNoise(moistNoise, nx, ny, MoistureOctaves[:])

			w.cells[y][x].E = e
			w.cells[y][x].M = m
		}
	}
}

// octaveNoise sums the noise at doubling frequencies weighted by amplitudes,
// normalized by the sum of the nonzero amplitudes.
func octaveNoise(noise opensimplex.Noise, nx, ny float64, amplitudes []float64) float64 {
	total := 0.0
	weight := 0.0
	frequency := 1.0

	for _, amp := range amplitudes {
		if amp != 0 {
			total += amp * noise.Eval2(frequency*nx, frequency*ny)
			weight += amp
		}
		frequency *= 2
	}

	if weight == 0 {
		return 0
	}
	return total / weight
}

func randomSeed() int64 {
	return minSeed + rand.Int63n(maxSeed-minSeed+1)
}
