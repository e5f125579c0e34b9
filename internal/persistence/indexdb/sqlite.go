package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/tuning"
)

var ErrClosed = errors.New("index closed")

// SQLiteIndex is a queryable read-model of chunk lifecycle events. It holds
// no terrain data; the event log stays the source of truth and the index
// drops writes when it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch) in Close.
	mu     sync.RWMutex
	closed bool

	dropEvent atomic.Uint64
	dropSweep atomic.Uint64
	written   atomic.Uint64
	failed    atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSync
)

type req struct {
	kind  reqKind
	event stream.Event
	done  chan struct{}
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropEventTotal uint64 `json:"drop_event_total"`
	DropSweepTotal uint64 `json:"drop_sweep_total"`
	WrittenTotal   uint64 `json:"written_total"`
	WriteFailTotal uint64 `json:"write_fail_total"`
}

// ChunkRow is the indexed lifecycle summary of one chunk in one run.
type ChunkRow struct {
	RunID         string
	Coord         stream.ChunkCoord
	FirstTick     uint64
	HeightmapTick sql.NullInt64
	ActiveLOD     sql.NullInt64
	ColliderLOD   sql.NullInt64
	Visible       bool
	Failures      int
	UpdatedTick   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A fresh sweep creates a burst of chunk events; leave plenty of room.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			run_id TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			run_id TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			first_tick INTEGER NOT NULL,
			heightmap_tick INTEGER,
			active_lod INTEGER,
			collider_lod INTEGER,
			visible INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			updated_tick INTEGER NOT NULL,
			PRIMARY KEY (run_id, x, y)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			lod INTEGER NOT NULL,
			visible INTEGER NOT NULL,
			err TEXT,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_tick ON events(run_id, kind, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_pos_tick ON events(run_id, x, y, tick);`,
		`CREATE TABLE IF NOT EXISTS sweeps (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			viewer_x REAL NOT NULL,
			viewer_y REAL NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_y INTEGER NOT NULL,
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			hidden INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// StreamEvent queues e for indexing. Mesh payloads are never stored.
func (s *SQLiteIndex) StreamEvent(e stream.Event) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	e.Mesh = nil
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		if e.Kind == stream.EventSweep {
			s.dropSweep.Add(1)
		} else {
			s.dropEvent.Add(1)
		}
	}
}

// Sync blocks until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil {
		return ErrClosed
	}
	done := make(chan struct{})
	if err := s.send(ctx, req{kind: reqSync, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) send(ctx context.Context, r req) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropEventTotal: s.dropEvent.Load(),
		DropSweepTotal: s.dropSweep.Load(),
		WrittenTotal:   s.written.Load(),
		WriteFailTotal: s.failed.Load(),
	}
}

// UpsertTuning stores the settings a run actually applied (canonical JSON).
func (s *SQLiteIndex) UpsertTuning(runID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('last_run_id',?)`, runID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(run_id,digest,json,updated_at) VALUES(?,?,?,?)`,
		runID, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		seq = map[string]int64{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failed.Add(uint64(opCount))
		} else {
			s.written.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.failed.Add(uint64(opCount) + 1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	handle := func(r req) {
		if r.kind == reqSync {
			commit()
			close(r.done)
			return
		}
		begin()
		if tx == nil {
			s.failed.Add(1)
			return
		}
		e := r.event
		n := seq[e.RunID]
		seq[e.RunID] = n + 1
		if err := applyEvent(tx, n, e); err != nil {
			rollback()
			return
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// Idle commits keep the single connection free for readers.
	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-idle.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}

func applyEvent(tx *sql.Tx, seq int64, e stream.Event) error {
	if _, err := tx.Exec(`INSERT OR REPLACE INTO events(run_id,seq,tick,kind,x,y,lod,visible,err) VALUES(?,?,?,?,?,?,?,?,?)`,
		e.RunID, seq, int64(e.Tick), string(e.Kind), e.Coord.X, e.Coord.Y, e.LOD, boolInt(e.Visible), nullString(e.Err)); err != nil {
		return err
	}

	var (
		q    string
		args []any
	)
	switch e.Kind {
	case stream.EventSweep:
		var vx, vy float32
		if e.Viewer != nil {
			vx, vy = e.Viewer[0], e.Viewer[1]
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO sweeps(run_id,tick,viewer_x,viewer_y,chunk_x,chunk_y,created,updated,hidden) VALUES(?,?,?,?,?,?,?,?,?)`,
			e.RunID, int64(e.Tick), vx, vy, e.Coord.X, e.Coord.Y, e.Created, e.Updated, e.Hidden)
		return err
	case stream.EventChunkCreated:
		_, err := tx.Exec(`INSERT OR IGNORE INTO chunks(run_id,x,y,first_tick,updated_tick) VALUES(?,?,?,?,?)`,
			e.RunID, e.Coord.X, e.Coord.Y, int64(e.Tick), int64(e.Tick))
		return err
	case stream.EventHeightmapReady:
		q = `UPDATE chunks SET heightmap_tick=?, updated_tick=? WHERE run_id=? AND x=? AND y=?`
		args = []any{int64(e.Tick), int64(e.Tick)}
	case stream.EventMeshActive:
		q = `UPDATE chunks SET active_lod=?, updated_tick=? WHERE run_id=? AND x=? AND y=?`
		args = []any{e.LOD, int64(e.Tick)}
	case stream.EventColliderActive:
		q = `UPDATE chunks SET collider_lod=?, updated_tick=? WHERE run_id=? AND x=? AND y=?`
		args = []any{e.LOD, int64(e.Tick)}
	case stream.EventVisibility:
		q = `UPDATE chunks SET visible=?, updated_tick=? WHERE run_id=? AND x=? AND y=?`
		args = []any{boolInt(e.Visible), int64(e.Tick)}
	case stream.EventJobFailed:
		q = `UPDATE chunks SET failures=failures+1, updated_tick=? WHERE run_id=? AND x=? AND y=?`
		args = []any{int64(e.Tick)}
	default:
		return nil
	}
	args = append(args, e.RunID, e.Coord.X, e.Coord.Y)
	_, err := tx.Exec(q, args...)
	return err
}

// LookupChunk reads the indexed summary of one chunk.
func (s *SQLiteIndex) LookupChunk(ctx context.Context, runID string, c stream.ChunkCoord) (ChunkRow, bool, error) {
	row := ChunkRow{RunID: runID, Coord: c}
	var first, updated int64
	var visible int
	err := s.db.QueryRowContext(ctx,
		`SELECT first_tick, heightmap_tick, active_lod, collider_lod, visible, failures, updated_tick FROM chunks WHERE run_id=? AND x=? AND y=?`,
		runID, c.X, c.Y,
	).Scan(&first, &row.HeightmapTick, &row.ActiveLOD, &row.ColliderLOD, &visible, &row.Failures, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ChunkRow{}, false, nil
	}
	if err != nil {
		return ChunkRow{}, false, err
	}
	row.FirstTick = uint64(first)
	row.UpdatedTick = uint64(updated)
	row.Visible = visible != 0
	return row, true, nil
}

// CountEvents counts indexed events of one kind, or all kinds when kind is
// empty.
func (s *SQLiteIndex) CountEvents(ctx context.Context, runID string, kind stream.EventKind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id=?`, runID).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id=? AND kind=?`, runID, string(kind)).Scan(&n)
	}
	return n, err
}

func (s *SQLiteIndex) CountSweeps(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sweeps WHERE run_id=?`, runID).Scan(&n)
	return n, err
}

// TuningDigest returns the stored digest of a run's settings.
func (s *SQLiteIndex) TuningDigest(ctx context.Context, runID string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM tuning WHERE run_id=?`, runID).Scan(&d)
	return d, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
