package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"flowerchat.dev/internal/multispace"
	"flowerchat.dev/internal/persistence/indexdb"
	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/space"
)

// snapshotWriter persists snapshots for one space. The periodic ticker
// and the admin force-snapshot endpoint both go through write, so the
// mutex is what keeps concurrent callers from racing on lastApplied or
// writing the same snapshot twice.
type snapshotWriter struct {
	rt  *multispace.Runtime
	dir string
	idx *indexdb.SQLiteIndex
	log *log.Logger

	mu          sync.Mutex
	lastApplied uint64
}

func newSnapshotWriter(rt *multispace.Runtime, dir string, idx *indexdb.SQLiteIndex, logger *log.Logger, resumedApplied uint64) *snapshotWriter {
	return &snapshotWriter{rt: rt, dir: dir, idx: idx, log: logger, lastApplied: resumedApplied}
}

func (w *snapshotWriter) applied() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastApplied
}

// due reports whether the space has applied at least every new events
// since the last snapshot.
func (w *snapshotWriter) due(ctx context.Context, every uint64) bool {
	if every == 0 {
		return false
	}
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var applied uint64
	if err := w.rt.Inspect(ctx2, func(st *space.State) { applied = st.Applied() }); err != nil {
		return false
	}
	return applied >= w.applied()+every
}

// write exports the space and persists it unless nothing new has been
// applied since the previous snapshot. It returns the applied count of
// the newest persisted snapshot.
func (w *snapshotWriter) write(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := w.rt.Snapshot(ctx2)
	if err != nil {
		return w.lastApplied, err
	}
	if snap.Header.Applied == 0 || snap.Header.Applied == w.lastApplied {
		return w.lastApplied, nil
	}

	path := filepath.Join(w.dir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Applied))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return w.lastApplied, err
	}
	w.lastApplied = snap.Header.Applied
	if w.idx != nil {
		w.idx.RecordSnapshot(path, snap)
	}
	if w.log != nil {
		w.log.Printf("snapshot %s applied=%d", filepath.Base(path), snap.Header.Applied)
	}
	return w.lastApplied, nil
}
