package world

import (
	"errors"
	"fmt"
)

// ErrUnknownBiome is returned when a biome has no climate. It signals a
// misclassification and is never defaulted away.
var ErrUnknownBiome = errors.New("unknown biome")

// Biome is the terrain label derived from elevation and moisture.
type Biome string

const (
	BiomeOcean                    Biome = "ocean"
	BiomeBeach                    Biome = "beach"
	BiomeSubtropicalDesert        Biome = "subtropical_desert"
	BiomeGrass                    Biome = "grass"
	BiomeTropicalSeasonalForest   Biome = "tropical_seasonal_forest"
	BiomeTropicalRainForest       Biome = "tropical_rain_forest"
	BiomeTemperateDesert          Biome = "temperate_desert"
	BiomeTemperateDeciduousForest Biome = "temperate_deciduous_forest"
	BiomeTemperateRainForest      Biome = "temperate_rain_forest"
	BiomeShrubland                Biome = "shrubland"
	BiomeTaiga                    Biome = "taiga"
	BiomeHills                    Biome = "hills"
	BiomeMountains                Biome = "mountains"
	BiomeMountainsIce             Biome = "mountains_ice"

	// Never produced by Classify; kept so climate lookups on legacy labels
	// still resolve.
	BiomeSnow     Biome = "snow"
	BiomeScorched Biome = "scorched"
	BiomeBare     Biome = "bare"
	BiomeTundra   Biome = "tundra"
)

// Biomes lists every label Classify can return.
var Biomes = []Biome{
	BiomeOcean, BiomeBeach, BiomeSubtropicalDesert, BiomeGrass,
	BiomeTropicalSeasonalForest, BiomeTropicalRainForest, BiomeTemperateDesert,
	BiomeTemperateDeciduousForest, BiomeTemperateRainForest, BiomeShrubland,
	BiomeTaiga, BiomeHills, BiomeMountains, BiomeMountainsIce,
}

// Classify maps elevation and moisture to a biome. Bands are (lower, upper],
// except the first which includes 0.
func Classify(e, m float64) Biome {
	switch {
	case e <= 0.1:
		return BiomeOcean
	case e <= 0.15:
		return BiomeBeach
	case e <= 0.35:
		switch {
		case m <= 0.30:
			return BiomeSubtropicalDesert
		case m <= 0.45:
			return BiomeGrass
		case m <= 0.66:
			return BiomeTropicalSeasonalForest
		default:
			return BiomeTropicalRainForest
		}
	case e <= 0.75:
		switch {
		case m <= 0.20:
			return BiomeTemperateDesert
		case m <= 0.50:
			return BiomeGrass
		case m <= 0.83:
			return BiomeTemperateDeciduousForest
		default:
			return BiomeTemperateRainForest
		}
	case e <= 0.8:
		switch {
		case m <= 0.33:
			return BiomeTemperateDesert
		case m <= 0.66:
			return BiomeShrubland
		default:
			return BiomeTaiga
		}
	case e <= 0.85:
		return BiomeHills
	default:
		if m >= 0.8 {
			return BiomeMountainsIce
		}
		return BiomeMountains
	}
}

// Terrain returns the biome of a hex. Out-of-bounds hexes read as ocean.
func (w *World) Terrain(h HexCoord) Biome {
	if !w.InBounds(h) {
		return BiomeOcean
	}
	c := w.cells[h.Y][h.X]
	return Classify(c.E, c.M)
}

// IsWater reports whether a hex is ocean.
func (w *World) IsWater(h HexCoord) bool {
	return w.Terrain(h) == BiomeOcean
}

// Climate groups biomes into four broad climates.
type Climate uint8

const (
	ClimateTropical Climate = iota + 1
	ClimateArid
	ClimatePolar
	ClimateTemperate
)

var climateNames = map[Climate]string{
	ClimateTropical:  "Tropical",
	ClimateArid:      "Arid",
	ClimatePolar:     "Polar",
	ClimateTemperate: "Temperate",
}

// String returns the climate's display name.
func (c Climate) String() string {
	if name, ok := climateNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Climate(%d)", uint8(c))
}

var climateBiomes = map[Climate][]Biome{
	ClimateTropical: {BiomeTropicalRainForest, BiomeTropicalSeasonalForest},
	ClimateArid:     {BiomeSubtropicalDesert, BiomeTemperateDesert},
	ClimatePolar:    {BiomeMountainsIce, BiomeSnow},
	ClimateTemperate: {
		BiomeGrass, BiomeTemperateDeciduousForest, BiomeTemperateRainForest,
		BiomeHills, BiomeMountains, BiomeTaiga, BiomeShrubland, BiomeBeach,
		BiomeScorched, BiomeTundra, BiomeBare,
	},
}

// ClimateOf returns the climate a biome belongs to. Ocean and unknown labels
// have no climate and return ErrUnknownBiome.
func ClimateOf(b Biome) (Climate, error) {
	for c, biomes := range climateBiomes {
		for _, cb := range biomes {
			if cb == b {
				return c, nil
			}
		}
	}
	return 0, fmt.Errorf("climate of %q: %w", b, ErrUnknownBiome)
}

// BiomesOf returns the biomes grouped under a climate, or nil for an unknown climate.
func BiomesOf(c Climate) []Biome {
	biomes, ok := climateBiomes[c]
	if !ok {
		return nil
	}
	out := make([]Biome, len(biomes))
	copy(out, biomes)
	return out
}

// HexClimate returns the climate of a hex.
func (w *World) HexClimate(h HexCoord) (Climate, error) {
	return ClimateOf(w.Terrain(h))
}

// BiomeCounts returns a census of biomes across the grid.
func (w *World) BiomeCounts() map[Biome]int {
	counts := make(map[Biome]int)
	for _, row := range w.cells {
		for _, c := range row {
			counts[Classify(c.E, c.M)]++
		}
	}
	return counts
}

// Colors returns the terrain color table used by map renderers.
func Colors() map[Biome]string {
	return map[Biome]string{
		BiomeOcean:                    "#64B5E1",
		BiomeGrass:                    "#E6F59A",
		BiomeSubtropicalDesert:        "#F2CD63",
		BiomeTemperateDesert:          "#F2CD63",
		BiomeTaiga:                    "#E1C85A",
		BiomeShrubland:                "#E1C859",
		BiomeBeach:                    "#FFF899",
		BiomeScorched:                 "#E5F59A",
		BiomeBare:                     "#D1BE79",
		BiomeTundra:                   "#E5F59A",
		BiomeSnow:                     "#DCDCE6",
		BiomeTemperateDeciduousForest: "#78AA46",
		BiomeTemperateRainForest:      "#78AA46",
		BiomeTropicalRainForest:       "#549D65",
		BiomeTropicalSeasonalForest:   "#549D65",
		BiomeHills:                    "#E1C859",
		BiomeMountains:                "#B37D1A",
		BiomeMountainsIce:             "#DCDCE6",
	}
}

// BackgroundColor is the canvas color behind the grid.
const BackgroundColor = "#64B4E1"
