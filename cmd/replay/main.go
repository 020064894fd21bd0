// Command replay refolds a space's journal and verifies that every
// applied transaction reproduces the digest recorded by the server.
// It starts from genesis or, with -snapshot, from a persisted snapshot.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"flowerchat.dev/internal/multispace"
	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/space"
	"flowerchat.dev/internal/tuning"
)

func main() {
	var (
		journalDir = flag.String("journal", "", "dir containing journal-*.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to resume from (optional)")
		spacesPath = flag.String("spaces", "./configs/spaces.yaml", "spaces config (genesis start)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning config (genesis start)")
		spaceRoot  = flag.String("space", "", "root block hash of the space to refold (default: sole configured space)")
	)
	flag.Parse()

	if *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	st, err := buildState(*snapPath, *spacesPath, *tuningPath, *spaceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("refolding space=%s from applied=%d\n", st.Config().RootBlock.Hex(), st.Applied())

	files, err := listJournalFiles(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	var stats replayStats
	for _, path := range files {
		if err := replayFile(st, path, &stats); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: entries=%d applied=%d rejected=%d skipped=%d digest=%s\n",
		stats.entries, stats.applied, stats.rejected, stats.skipped, st.Digest())
}

type replayStats struct {
	entries  uint64
	applied  uint64
	rejected uint64
	skipped  uint64
}

func buildState(snapPath, spacesPath, tuningPath, spaceRoot string) (*space.State, error) {
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		st, err := space.FromSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("import snapshot: %w", err)
		}
		return st, nil
	}

	cfg, err := multispace.Load(spacesPath)
	if err != nil {
		return nil, fmt.Errorf("load spaces config: %w", err)
	}
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	var spec *multispace.SpaceSpec
	if spaceRoot == "" {
		if len(cfg.Spaces) != 1 {
			return nil, fmt.Errorf("multiple spaces configured; pass -space")
		}
		spec = &cfg.Spaces[0]
	} else {
		for i := range cfg.Spaces {
			if strings.EqualFold(cfg.Spaces[i].RootBlock, spaceRoot) {
				spec = &cfg.Spaces[i]
				break
			}
		}
		if spec == nil {
			return nil, fmt.Errorf("space %s not in %s", spaceRoot, spacesPath)
		}
	}
	spaceCfg, err := spec.SpaceConfig()
	if err != nil {
		return nil, err
	}
	return space.New(spaceCfg, tune), nil
}

func listJournalFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "journal-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(st *space.State, path string, stats *replayStats) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	root := st.Config().RootBlock.Hex()
	for sc.Scan() {
		var entry space.JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Space != root {
			continue
		}
		stats.entries++
		if err := replayEntry(st, entry, stats); err != nil {
			return fmt.Errorf("%s seq=%d: %w", filepath.Base(path), entry.Seq, err)
		}
	}
	return sc.Err()
}

func replayEntry(st *space.State, entry space.JournalEntry, stats *replayStats) error {
	ref, err := parseRef(entry)
	if err != nil {
		return err
	}

	ev, err := protocol.Decode(entry.Payload)
	if err != nil {
		if entry.Code != protocol.CodeDecode {
			return fmt.Errorf("payload no longer decodes: %v (recorded code=%q)", err, entry.Code)
		}
		stats.rejected++
		return nil
	}
	if entry.Code == protocol.CodeDecode {
		return fmt.Errorf("payload decodes but %s was recorded", protocol.CodeDecode)
	}

	outcome, err := st.Apply(ev, ref)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	switch {
	case outcome.Replay && entry.Applied:
		// Covered by the snapshot we resumed from.
		stats.skipped++
		return nil
	case outcome.Applied != entry.Applied:
		return fmt.Errorf("applied mismatch: refold=%v recorded=%v", outcome.Applied, entry.Applied)
	case outcome.Applied:
		stats.applied++
		if got := st.Digest(); got != entry.Digest {
			return fmt.Errorf("digest mismatch: got=%s want=%s", got, entry.Digest)
		}
	default:
		stats.rejected++
		if outcome.Code != entry.Code {
			return fmt.Errorf("rejection code mismatch: refold=%q recorded=%q", outcome.Code, entry.Code)
		}
	}
	return nil
}

func parseRef(entry space.JournalEntry) (space.Reference, error) {
	block, err := protocol.ParseHash(entry.Block)
	if err != nil {
		return space.Reference{}, fmt.Errorf("bad block hash: %w", err)
	}
	tx, err := protocol.ParseHash(entry.Tx)
	if err != nil {
		return space.Reference{}, fmt.Errorf("bad tx hash: %w", err)
	}
	author, err := protocol.ParsePublicKey(entry.Author)
	if err != nil {
		return space.Reference{}, fmt.Errorf("bad author key: %w", err)
	}
	return space.Reference{Block: block, Tx: tx, Author: author}, nil
}
