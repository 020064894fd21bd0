package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/space"
)

// SQLiteIndex is a secondary read-model over the journal. It never
// feeds back into projection; the JSONL journal stays the source of
// truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqJournal reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	journal  space.JournalEntry
	audit    space.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Space    string
	Applied  uint64
	Path     string
	Rooms    int
	Messages int
	Balances int
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
		// High buffer: bursty ingest must not stall the fold.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL durability
	// is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS journal (
			space TEXT NOT NULL,
			seq INTEGER NOT NULL,
			block TEXT NOT NULL,
			tx TEXT NOT NULL,
			author TEXT NOT NULL,
			kind TEXT,
			applied INTEGER NOT NULL,
			replay INTEGER NOT NULL,
			code TEXT,
			detail TEXT,
			digest TEXT NOT NULL,
			PRIMARY KEY (space, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_author ON journal(space, author, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_tx ON journal(tx);`,
		`CREATE TABLE IF NOT EXISTS audits (
			space TEXT NOT NULL,
			seq INTEGER NOT NULL,
			block TEXT NOT NULL,
			tx TEXT NOT NULL,
			author TEXT NOT NULL,
			kind TEXT,
			code TEXT NOT NULL,
			detail TEXT,
			PRIMARY KEY (space, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_code ON audits(space, code, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			space TEXT NOT NULL,
			applied INTEGER NOT NULL,
			path TEXT NOT NULL,
			rooms INTEGER NOT NULL,
			messages INTEGER NOT NULL,
			balances INTEGER NOT NULL,
			PRIMARY KEY (space, applied)
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
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteJournal(entry space.JournalEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqJournal, journal: entry}:
	default:
		// Drop if the indexer falls behind; the JSONL journal remains
		// the source of truth.
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry space.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Space:    snap.Header.Space,
		Applied:  snap.Header.Applied,
		Path:     path,
		Rooms:    len(snap.Rooms),
		Messages: len(snap.Messages),
		Balances: len(snap.Balances),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertJournal, _ := s.db.Prepare(`INSERT OR REPLACE INTO journal(space,seq,block,tx,author,kind,applied,replay,code,detail,digest) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(space,seq,block,tx,author,kind,code,detail) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(space,applied,path,rooms,messages,balances) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertJournal != nil {
			_ = insertJournal.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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
		_ = tx.Commit()
		tx = nil
	}
	defer commit()

	flushTimer := time.NewTicker(500 * time.Millisecond)
	defer flushTimer.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqJournal:
				e := r.journal
				_, _ = tx.Stmt(insertJournal).Exec(
					e.Space, e.Seq, e.Block, e.Tx, e.Author, e.Kind,
					boolInt(e.Applied), boolInt(e.Replay), e.Code, e.Detail, e.Digest)
			case reqAudit:
				e := r.audit
				_, _ = tx.Stmt(insertAudit).Exec(
					e.Space, e.Seq, e.Block, e.Tx, e.Author, e.Kind, e.Code, e.Detail)
			case reqSnapshot:
				e := r.snapshot
				_, _ = tx.Stmt(insertSnapshot).Exec(
					e.Space, e.Applied, e.Path, e.Rooms, e.Messages, e.Balances)
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-flushTimer.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
