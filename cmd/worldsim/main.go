// Command worldsim generates hex worlds and runs their settlement economies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/civitas-sim/internal/api"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/engine"
	"github.com/talgya/civitas-sim/internal/persistence"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

// worldFlags are shared by every command that may create a world.
type worldFlags struct {
	seed        int64
	width       int
	height      int
	erosion     float64
	settlements int
	catalog     string
}

func (f *worldFlags) register(cmd *cobra.Command) {
	def := world.DefaultGenConfig()
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "world seed (0 = random)")
	cmd.Flags().IntVar(&f.width, "width", def.Width, "grid columns")
	cmd.Flags().IntVar(&f.height, "height", def.Height, "grid rows")
	cmd.Flags().Float64Var(&f.erosion, "erosion", def.Erosion, "elevation exponent (>1 favors lowlands)")
	cmd.Flags().IntVar(&f.settlements, "settlements", 4, "settlements founded in a new world")
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "building catalogue YAML (default: built-in)")
}

func (f *worldFlags) genConfig() world.GenConfig {
	cfg := world.GenConfig{Width: f.width, Height: f.height, Erosion: f.erosion}
	if f.seed != 0 {
		cfg.ElevationSeed = f.seed
		cfg.MoistureSeed = f.seed * 7919
	}
	return cfg
}

func (f *worldFlags) loadCatalog() (*economy.Catalog, error) {
	if f.catalog == "" {
		return economy.DefaultCatalog(), nil
	}
	return economy.LoadCatalog(f.catalog)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:          "worldsim",
		Short:        "Hex world generator and settlement economy simulation",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	var flags worldFlags
	var dbPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a world, found settlements and print a terrain census",
		RunE: func(_ *cobra.Command, _ []string) error {
			catalog, err := flags.loadCatalog()
			if err != nil {
				return err
			}
			sim, err := newWorld(flags, catalog)
			if err != nil {
				return err
			}
			printCensus(sim)

			if dbPath == "" {
				return nil
			}
			db, err := openDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.SaveWorldState(sim)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&dbPath, "db", "", "save the generated world to this database")
	return cmd
}

func runCmd() *cobra.Command {
	var flags worldFlags
	var (
		dbPath    string
		port      int
		speed     float64
		turns     int
		saveEvery int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load or create a world and run the simulation with the HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			if env := os.Getenv("WORLDSIM_DB"); env != "" && dbPath == "" {
				dbPath = env
			}
			if dbPath == "" {
				dbPath = "data/worldsim.db"
			}
			return run(flags, dbPath, port, speed, turns, saveEvery)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default $WORLDSIM_DB or data/worldsim.db)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP API port (0 disables the API)")
	cmd.Flags().Float64Var(&speed, "speed", 1, "turns per second multiplier (0 = paused)")
	cmd.Flags().IntVar(&turns, "turns", 0, "run this many turns as fast as possible and exit")
	cmd.Flags().IntVar(&saveEvery, "save-every", engine.TurnsPerMonth, "turns between autosaves")
	return cmd
}

func inspectCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the settlements and recent events of a saved world",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, err := openDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			sim, err := db.LoadWorldState(economy.DefaultCatalog(), 0)
			if err != nil {
				return err
			}
			tick := sim.CurrentTick()
			fmt.Printf("Tick %d (%s)\n\n", tick, engine.SimTime(tick))
			for _, st := range sim.Settlements() {
				v := st.View()
				fmt.Printf("%-16s %-10s level %d at %s  coins %s  storage %s/%s  buildings %d\n",
					v.Name, v.Tier, v.Level, v.Location,
					humanize.Comma(int64(v.Coins)),
					humanize.Comma(int64(v.StorageUsed)), humanize.Comma(int64(v.Storage)),
					len(v.Buildings))
			}

			events, err := db.RecentEvents(10)
			if err != nil {
				return err
			}
			fmt.Println("\nRecent events:")
			for _, e := range events {
				fmt.Printf("  [%s] %s (%s)\n", e.Category, e.Description, humanize.Time(e.Time))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "data/worldsim.db", "database path")
	return cmd
}

func openDB(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	slog.Info("database opened", "path", path)
	return db, nil
}

// newWorld generates a world and founds the starting settlements.
func newWorld(flags worldFlags, catalog *economy.Catalog) (*engine.Simulation, error) {
	slog.Info("generating world", "width", flags.width, "height", flags.height, "seed", flags.seed)
	w := world.New(flags.genConfig())
	sim := engine.NewSimulation(w, catalog, flags.seed)

	for i := 0; i < flags.settlements; i++ {
		cfg := engine.DefaultFounding()
		if i == 0 {
			cfg.Tier = world.TierCity
		}
		if _, err := sim.FoundSettlement(cfg); err != nil {
			if errors.Is(err, world.ErrNoLocation) {
				slog.Warn("no room for more settlements", "founded", i)
				break
			}
			return nil, err
		}
	}
	return sim, nil
}

func printCensus(sim *engine.Simulation) {
	sim.Read(func(w *world.World, setts []*social.Settlement) {
		counts := w.BiomeCounts()
		biomes := make([]world.Biome, 0, len(counts))
		for b := range counts {
			biomes = append(biomes, b)
		}
		sort.Slice(biomes, func(i, j int) bool { return counts[biomes[i]] > counts[biomes[j]] })

		fmt.Printf("%s  fingerprint %s\n\n", w, w.Fingerprint()[:16])
		for _, b := range biomes {
			fmt.Printf("  %-28s %6s  %5.1f%%\n", b, humanize.Comma(int64(counts[b])),
				100*float64(counts[b])/float64(w.HexCount()))
		}
		fmt.Println()
		for _, st := range setts {
			climate := "none"
			if c, err := w.HexClimate(st.Location()); err == nil {
				climate = c.String()
			}
			fmt.Printf("  %-16s %-10s at %-9s %-26s %s coastal=%t\n",
				st.Name(), st.Tier(), st.Location(), w.Terrain(st.Location()), climate, st.Coastal())
		}
	})
}

func run(flags worldFlags, dbPath string, port int, speed float64, turns, saveEvery int) error {
	catalog, err := flags.loadCatalog()
	if err != nil {
		return err
	}
	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sim, err := db.LoadWorldState(catalog, flags.seed)
	switch {
	case errors.Is(err, persistence.ErrNoWorld):
		slog.Info("no saved world found, generating")
		if sim, err = newWorld(flags, catalog); err != nil {
			return err
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	case err != nil:
		return err
	}
	startTick := sim.CurrentTick()

	eng := engine.NewEngine()
	eng.SetTick(startTick)
	eng.SetSpeed(speed)

	if saveEvery <= 0 {
		saveEvery = engine.TurnsPerMonth
	}
	eng.OnTurn = func(tick uint64) {
		sim.TickTurn(tick)
		if tick%uint64(saveEvery) == 0 {
			if err := db.SaveWorldState(sim); err != nil {
				slog.Error("autosave failed", "error", err)
			}
		}
	}
	eng.OnMonth = sim.TickMonth
	eng.OnYear = sim.TickYear

	if turns > 0 {
		for i := 0; i < turns; i++ {
			eng.Step()
		}
		slog.Info("batch run complete", "turns", turns, "time", engine.SimTime(eng.Tick()))
		return db.SaveWorldState(sim)
	}

	if port > 0 {
		adminKey := os.Getenv("WORLDSIM_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("WORLDSIM_ADMIN_KEY not set, admin POST endpoints are disabled")
		}
		srv := &api.Server{
			Sim:      sim,
			Eng:      eng,
			DB:       db,
			Port:     port,
			AdminKey: adminKey,
			RelayKey: os.Getenv("WORLDSIM_RELAY_KEY"),
		}
		srv.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")
	eng.Run(ctx)

	slog.Info("final save...")
	saveStart := time.Now()
	if err := db.SaveWorldState(sim); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	slog.Info("world state saved", "took", time.Since(saveStart))
	return nil
}
