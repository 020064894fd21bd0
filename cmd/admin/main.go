// Command admin inspects a projector node offline: the sqlite index,
// persisted snapshots and space share links.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flowerchat.dev/internal/persistence/indexdb"
	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/sharelink"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "rejections":
			rejectionsCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "sharelink":
			sharelinkCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "spaces"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func openIndex(dataDir, dbPath string) *indexdb.SQLiteIndex {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "index.db")
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return idx
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	stats, err := idx.Stats()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	for _, st := range stats {
		printJSON(struct {
			Space    string `json:"space"`
			Entries  int64  `json:"entries"`
			Applied  int64  `json:"applied"`
			Rejected int64  `json:"rejected"`
			Replays  int64  `json:"replays"`
		}{st.Space, st.Entries, st.Applied, st.Rejected, st.Replays})
	}
}

func rejectionsCmd(args []string) {
	fs := flag.NewFlagSet("rejections", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	spaceRoot := fs.String("space", "", "root block hash filter (optional)")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	counts, err := idx.RejectionCounts(*spaceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rejections:", err)
		os.Exit(1)
	}
	for _, c := range counts {
		printJSON(struct {
			Code  string `json:"code"`
			Count int64  `json:"count"`
		}{c.Code, c.Count})
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	spaceRoot := fs.String("space", "", "root block hash filter (optional)")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	snaps, err := idx.Snapshots(*spaceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapshots:", err)
		os.Exit(1)
	}
	for _, si := range snaps {
		printJSON(struct {
			Space    string `json:"space"`
			Applied  uint64 `json:"applied"`
			Path     string `json:"path"`
			Rooms    int    `json:"rooms"`
			Messages int    `json:"messages"`
			Balances int    `json:"balances"`
		}{si.Space, si.Applied, si.Path, si.Rooms, si.Messages, si.Balances})
	}
}

// state prints a summary of one persisted snapshot file.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	spaceRoot := fs.String("space", "", "root block hash (required unless -snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*spaceRoot) == "" {
			fmt.Fprintln(os.Stderr, "missing -space or -snapshot")
			os.Exit(2)
		}
		path = snapshot.Latest(filepath.Join(*dataDir, "spaces", *spaceRoot, "snapshots"))
		if path == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
			os.Exit(2)
		}
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Version  int    `json:"version"`
		Space    string `json:"space"`
		Author   string `json:"author"`
		Title    string `json:"title"`
		Applied  uint64 `json:"applied"`
		Rooms    int    `json:"rooms"`
		Messages int    `json:"messages"`
		Roles    int    `json:"roles"`
		Bans     int    `json:"bans"`
		Balances int    `json:"balances"`
	}{
		Version:  snap.Header.Version,
		Space:    snap.Header.Space,
		Author:   snap.Author,
		Title:    snap.Title,
		Applied:  snap.Header.Applied,
		Rooms:    len(snap.Rooms),
		Messages: len(snap.Messages),
		Roles:    len(snap.Roles),
		Bans:     len(snap.Bans),
		Balances: len(snap.Balances),
	})
}

func sharelinkCmd(args []string) {
	fs := flag.NewFlagSet("sharelink", flag.ExitOnError)
	spaceRoot := fs.String("space", "", "root block hash (encode)")
	author := fs.String("author", "", "author public key, hex (encode)")
	shards := fs.String("shards", "", "comma-separated shard addresses (encode)")
	decode := fs.String("decode", "", "share link to decode")
	_ = fs.Parse(args)

	if *decode != "" {
		link, err := sharelink.Decode(*decode)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decode:", err)
			os.Exit(1)
		}
		printJSON(struct {
			Root   string   `json:"root"`
			Author string   `json:"author"`
			Shards []string `json:"shards"`
		}{link.Root.Hex(), link.Author.Hex(), link.Shards})
		return
	}

	root, err := protocol.ParseHash(*spaceRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -space:", err)
		os.Exit(2)
	}
	key, err := protocol.ParsePublicKey(*author)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -author:", err)
		os.Exit(2)
	}
	link := sharelink.Link{Root: root, Author: key}
	for _, s := range strings.Split(*shards, ",") {
		if s = strings.TrimSpace(s); s != "" {
			link.Shards = append(link.Shards, s)
		}
	}
	fmt.Println(link.Encode())
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
