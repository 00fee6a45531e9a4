// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pierrec/lz4/v4"
	_ "modernc.org/sqlite"

	"github.com/talgya/civitas-sim/internal/building"
	"github.com/talgya/civitas-sim/internal/economy"
	"github.com/talgya/civitas-sim/internal/engine"
	"github.com/talgya/civitas-sim/internal/social"
	"github.com/talgya/civitas-sim/internal/world"
)

var (
	// ErrNoWorld is returned when loading from a database with no saved world.
	ErrNoWorld = errors.New("no saved world")
	// ErrFingerprintMismatch is returned when the saved grid does not hash to
	// the saved fingerprint.
	ErrFingerprintMismatch = errors.New("world fingerprint mismatch")
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_grid (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cells BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		tier INTEGER NOT NULL,
		level INTEGER NOT NULL,
		base_storage INTEGER NOT NULL,
		coins INTEGER NOT NULL,
		stats_json TEXT NOT NULL,
		resources_json TEXT NOT NULL,
		research_json TEXT NOT NULL,
		production_mods_json TEXT NOT NULL,
		tax_mods_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buildings (
		settlement_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		level INTEGER NOT NULL,
		stopped INTEGER NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL,
		PRIMARY KEY (settlement_id, seq)
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tick INTEGER NOT NULL,
		time TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_buildings_settlement ON buildings(settlement_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type settlementRow struct {
	ID                 uint64 `db:"id"`
	Name               string `db:"name"`
	PosX               int    `db:"pos_x"`
	PosY               int    `db:"pos_y"`
	Tier               int    `db:"tier"`
	Level              int    `db:"level"`
	BaseStorage        int    `db:"base_storage"`
	Coins              int    `db:"coins"`
	StatsJSON          string `db:"stats_json"`
	ResourcesJSON      string `db:"resources_json"`
	ResearchJSON       string `db:"research_json"`
	ProductionModsJSON string `db:"production_mods_json"`
	TaxModsJSON        string `db:"tax_mods_json"`
}

type buildingRow struct {
	SettlementID uint64 `db:"settlement_id"`
	Seq          int    `db:"seq"`
	Kind         string `db:"kind"`
	Level        int    `db:"level"`
	Stopped      bool   `db:"stopped"`
	PosX         int    `db:"pos_x"`
	PosY         int    `db:"pos_y"`
}

type eventRow struct {
	ID          string         `db:"id"`
	Tick        uint64         `db:"tick"`
	Time        string         `db:"time"`
	Description string         `db:"description"`
	Category    string         `db:"category"`
	MetaJSON    sql.NullString `db:"meta_json"`
}

// snapshot is everything SaveWorldState writes, captured under the
// simulation's read lock.
type snapshot struct {
	meta        map[string]string
	grid        []byte
	settlements []settlementRow
	buildings   []buildingRow
}

func capture(sim *engine.Simulation) (*snapshot, error) {
	snap := &snapshot{}
	var err error
	sim.Read(func(w *world.World, setts []*social.Settlement) {
		cfg := w.Config()
		seeds := w.Seeds()
		snap.meta = map[string]string{
			"width":          strconv.Itoa(cfg.Width),
			"height":         strconv.Itoa(cfg.Height),
			"erosion":        strconv.FormatFloat(cfg.Erosion, 'g', -1, 64),
			"elevation_seed": strconv.FormatInt(seeds.Elevation, 10),
			"moisture_seed":  strconv.FormatInt(seeds.Moisture, 10),
			"fingerprint":    w.Fingerprint(),
		}
		var raw []byte
		if raw, err = json.Marshal(w.Cells()); err != nil {
			err = fmt.Errorf("encode grid: %w", err)
			return
		}
		if snap.grid, err = compress(raw); err != nil {
			return
		}
		for _, s := range setts {
			snap.settlements = append(snap.settlements, settlementRow{
				ID:                 s.ID(),
				Name:               s.Name(),
				PosX:               s.Location().X,
				PosY:               s.Location().Y,
				Tier:               int(s.Tier()),
				Level:              s.Level(),
				BaseStorage:        s.BaseStorage(),
				Coins:              s.Coins(),
				StatsJSON:          mustJSON(s.Stats()),
				ResourcesJSON:      mustJSON(s.Resources()),
				ResearchJSON:       mustJSON(s.Research()),
				ProductionModsJSON: mustJSON(s.ProductionModifiers()),
				TaxModsJSON:        mustJSON(s.TaxModifiers()),
			})
			for i, b := range s.Buildings() {
				snap.buildings = append(snap.buildings, buildingRow{
					SettlementID: s.ID(),
					Seq:          i,
					Kind:         b.Kind(),
					Level:        b.Level(),
					Stopped:      b.Stopped(),
					PosX:         b.Position().X,
					PosY:         b.Position().Y,
				})
			}
		}
	})
	if err != nil {
		return nil, err
	}
	snap.meta["last_tick"] = strconv.FormatUint(sim.CurrentTick(), 10)
	return snap, nil
}

// SaveWorldState performs a full save of all world state. Settlements and
// buildings are replaced; events are appended once each.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	snap, err := capture(sim)
	if err != nil {
		return err
	}
	slog.Info("saving world state", "settlements", len(snap.settlements), "buildings", len(snap.buildings))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for k, v := range snap.meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO world_grid (id, cells) VALUES (1, ?)", snap.grid); err != nil {
		return fmt.Errorf("save grid: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM settlements"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM buildings"); err != nil {
		return err
	}
	for _, row := range snap.settlements {
		_, err := tx.NamedExec(`INSERT INTO settlements
			(id, name, pos_x, pos_y, tier, level, base_storage, coins,
			 stats_json, resources_json, research_json, production_mods_json, tax_mods_json)
			VALUES (:id, :name, :pos_x, :pos_y, :tier, :level, :base_storage, :coins,
			 :stats_json, :resources_json, :research_json, :production_mods_json, :tax_mods_json)`, row)
		if err != nil {
			return fmt.Errorf("insert settlement %d: %w", row.ID, err)
		}
	}
	for _, row := range snap.buildings {
		_, err := tx.NamedExec(`INSERT INTO buildings
			(settlement_id, seq, kind, level, stopped, pos_x, pos_y)
			VALUES (:settlement_id, :seq, :kind, :level, :stopped, :pos_x, :pos_y)`, row)
		if err != nil {
			return fmt.Errorf("insert building %s of settlement %d: %w", row.Kind, row.SettlementID, err)
		}
	}

	for _, e := range sim.Events() {
		var meta any
		if len(e.Meta) > 0 {
			meta = mustJSON(e.Meta)
		}
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO events (id, tick, time, description, category, meta_json) VALUES (?, ?, ?, ?, ?, ?)",
			e.ID.String(), e.Tick, e.Time.Format(time.RFC3339Nano), e.Description, e.Category, meta,
		)
		if err != nil {
			return fmt.Errorf("save event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "tick", snap.meta["last_tick"])
	return nil
}

// HasWorld reports whether a world has been saved.
func (db *DB) HasWorld() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM world_grid"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadWorldState rebuilds a simulation from the database. The grid must
// hash to the saved fingerprint. seed drives the restored simulation's
// random sources the same way as a fresh one.
func (db *DB) LoadWorldState(catalog *economy.Catalog, seed int64) (*engine.Simulation, error) {
	ok, err := db.HasWorld()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoWorld
	}

	meta, err := db.meta()
	if err != nil {
		return nil, err
	}
	cfg := world.GenConfig{}
	var seeds world.Seeds
	var lastTick uint64
	parsers := []struct {
		key   string
		parse func(string) error
	}{
		{"width", func(v string) (err error) { cfg.Width, err = strconv.Atoi(v); return }},
		{"height", func(v string) (err error) { cfg.Height, err = strconv.Atoi(v); return }},
		{"erosion", func(v string) (err error) { cfg.Erosion, err = strconv.ParseFloat(v, 64); return }},
		{"elevation_seed", func(v string) (err error) { seeds.Elevation, err = strconv.ParseInt(v, 10, 64); return }},
		{"moisture_seed", func(v string) (err error) { seeds.Moisture, err = strconv.ParseInt(v, 10, 64); return }},
		{"last_tick", func(v string) (err error) { lastTick, err = strconv.ParseUint(v, 10, 64); return }},
	}
	for _, p := range parsers {
		v, ok := meta[p.key]
		if !ok {
			return nil, fmt.Errorf("world meta %q missing", p.key)
		}
		if err := p.parse(v); err != nil {
			return nil, fmt.Errorf("world meta %q: %w", p.key, err)
		}
	}

	var blob []byte
	if err := db.conn.Get(&blob, "SELECT cells FROM world_grid WHERE id = 1"); err != nil {
		return nil, fmt.Errorf("load grid: %w", err)
	}
	raw, err := decompress(blob)
	if err != nil {
		return nil, err
	}
	var cells [][]world.Cell
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, fmt.Errorf("decode grid: %w", err)
	}
	w, err := world.Restore(cfg, seeds, cells)
	if err != nil {
		return nil, err
	}
	if fp := w.Fingerprint(); fp != meta["fingerprint"] {
		return nil, fmt.Errorf("%w: saved %s, grid hashes to %s", ErrFingerprintMismatch, meta["fingerprint"], fp)
	}

	sim := engine.NewSimulation(w, catalog, seed)
	if err := db.loadSettlements(sim); err != nil {
		return nil, err
	}
	sim.SetLastTick(lastTick)

	events, err := db.RecentEvents(engine.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		sim.EmitEvent(events[i])
	}

	slog.Info("world state loaded",
		"width", cfg.Width,
		"height", cfg.Height,
		"settlements", len(sim.Settlements()),
		"tick", lastTick,
	)
	return sim, nil
}

func (db *DB) meta() (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := db.conn.Select(&rows, "SELECT key, value FROM world_meta"); err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (db *DB) loadSettlements(sim *engine.Simulation) error {
	var setts []settlementRow
	if err := db.conn.Select(&setts, "SELECT * FROM settlements ORDER BY id"); err != nil {
		return fmt.Errorf("load settlements: %w", err)
	}
	var rows []buildingRow
	if err := db.conn.Select(&rows, "SELECT * FROM buildings ORDER BY settlement_id, seq"); err != nil {
		return fmt.Errorf("load buildings: %w", err)
	}
	bySettlement := make(map[uint64][]engine.BuildingRecord)
	for _, r := range rows {
		bySettlement[r.SettlementID] = append(bySettlement[r.SettlementID], engine.BuildingRecord{
			Kind:     r.Kind,
			Level:    r.Level,
			Stopped:  r.Stopped,
			Position: building.Position{X: r.PosX, Y: r.PosY},
		})
	}

	for _, r := range setts {
		cfg := social.Config{
			ID:       r.ID,
			Name:     r.Name,
			Location: world.HexCoord{X: r.PosX, Y: r.PosY},
			Tier:     world.Tier(r.Tier),
			Level:    r.Level,
			Storage:  r.BaseStorage,
			Coins:    r.Coins,
		}
		decoders := []struct {
			field string
			src   string
			dst   any
		}{
			{"stats", r.StatsJSON, &cfg.Stats},
			{"resources", r.ResourcesJSON, &cfg.Resources},
			{"research", r.ResearchJSON, &cfg.Research},
			{"production modifiers", r.ProductionModsJSON, &cfg.ProductionModifiers},
			{"tax modifiers", r.TaxModsJSON, &cfg.TaxModifiers},
		}
		for _, d := range decoders {
			if err := json.Unmarshal([]byte(d.src), d.dst); err != nil {
				return fmt.Errorf("settlement %d %s: %w", r.ID, d.field, err)
			}
		}
		if _, err := sim.RestoreSettlement(cfg, bySettlement[r.ID]); err != nil {
			return err
		}
	}
	return nil
}

// RecentEvents returns the most recent N saved events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT id, tick, time, description, category, meta_json FROM events ORDER BY tick DESC, time DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e := engine.Event{
			Tick:        r.Tick,
			Description: r.Description,
			Category:    r.Category,
		}
		if id, err := uuid.Parse(r.ID); err == nil {
			e.ID = id
		}
		if t, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
			e.Time = t
		}
		if r.MetaJSON.Valid && r.MetaJSON.String != "" {
			if err := json.Unmarshal([]byte(r.MetaJSON.String), &e.Meta); err != nil {
				return nil, fmt.Errorf("event %s meta: %w", r.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress grid: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress grid: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(blob []byte) ([]byte, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(blob)))
	if err != nil {
		return nil, fmt.Errorf("decompress grid: %w", err)
	}
	return raw, nil
}

// mustJSON encodes values that cannot fail to marshal (maps and slices of
// plain types).
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("persistence: encode %T: %v", v, err))
	}
	return string(data)
}
