package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flowerchat.dev/internal/multispace"
	"flowerchat.dev/internal/persistence/indexdb"
	persistlog "flowerchat.dev/internal/persistence/log"
	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/space"
	"flowerchat.dev/internal/transport/ingest"
	"flowerchat.dev/internal/transport/observer"
	"flowerchat.dev/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		spacesPath = flag.String("spaces", "", "path to spaces.yaml (default: <configs>/spaces.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemaDir  = flag.String("schemas", "./schemas", "JSON schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume each space from its latest snapshot if present")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	sp := strings.TrimSpace(*spacesPath)
	if sp == "" {
		sp = filepath.Join(*configDir, "spaces.yaml")
	}
	cfg, err := multispace.Load(sp)
	if err != nil {
		logger.Fatalf("load spaces config: %v", err)
	}

	// Optional: read-model index backend (does not affect projection
	// determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		_ = os.MkdirAll(*dataDir, 0o755)
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
	} else {
		logger.Printf("index backend disabled")
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := multispace.NewManager()
	obsSrv := observer.NewServer(mgr, logger)

	var snapWriters []*snapshotWriter

	for _, spec := range cfg.Spaces {
		spaceCfg, err := spec.SpaceConfig()
		if err != nil {
			logger.Fatalf("space %q: %v", spec.Title, err)
		}
		spaceDir := filepath.Join(*dataDir, "spaces", spaceCfg.RootBlock.Hex())
		_ = os.MkdirAll(filepath.Join(spaceDir, "snapshots"), 0o755)

		var st *space.State
		if *loadLatest {
			if path := snapshot.Latest(filepath.Join(spaceDir, "snapshots")); path != "" {
				snap, err := snapshot.ReadSnapshot(path)
				if err != nil {
					logger.Fatalf("read snapshot %s: %v", path, err)
				}
				if snap.Header.Space != spaceCfg.RootBlock.Hex() {
					logger.Fatalf("snapshot space mismatch: config=%s snap=%s", spaceCfg.RootBlock.Hex(), snap.Header.Space)
				}
				st, err = space.FromSnapshot(snap)
				if err != nil {
					logger.Fatalf("import snapshot %s: %v", path, err)
				}
				logger.Printf("space %s resumed from %s applied=%d", spec.Title, filepath.Base(path), snap.Header.Applied)
			}
		}
		if st == nil {
			st = space.New(spaceCfg, tune)
			logger.Printf("space %s starting from genesis", spec.Title)
		}

		journalLog := persistlog.NewJournalLogger(spaceDir)
		auditLog := persistlog.NewAuditLogger(spaceDir)
		defer journalLog.Close()
		defer auditLog.Close()

		rt := multispace.NewRuntime(st)
		rt.SetJournal(multiJournal{a: journalLog, b: idx})
		rt.SetAudit(multiAudit{a: auditLog, b: idx})
		rt.SetFeed(obsSrv.Publish)
		mgr.Add(rt)

		snapWriters = append(snapWriters, newSnapshotWriter(rt, spaceDir, idx, logger, st.Applied()))
	}

	go func() {
		if err := mgr.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("projector stopped: %v", err)
		}
	}()

	// Periodic snapshots; the admin force endpoint shares the same
	// writers, which serialize internally.
	go func() {
		every := uint64(tune.SnapshotEveryEvents)
		if every == 0 {
			return
		}
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, w := range snapWriters {
					if !w.due(ctx, every) {
						continue
					}
					if _, err := w.write(ctx); err != nil {
						logger.Printf("snapshot write: %v", err)
					}
				}
			}
		}
	}()

	ingestSrv, err := ingest.NewServer(mgr, filepath.Join(*schemaDir, "ingest.schema.json"), logger)
	if err != nil {
		logger.Fatalf("compile ingest schema: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP flowerchat_space_applied Applied event count per space.\n")
		fmt.Fprintf(rw, "# TYPE flowerchat_space_applied gauge\n")
		type row struct {
			root    string
			applied uint64
			rooms   int
		}
		var rows []row
		for _, root := range mgr.Roots() {
			rt := mgr.Runtime(root)
			if rt == nil {
				continue
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
			var rw2 row
			err := rt.Inspect(ctx2, func(st *space.State) {
				rw2 = row{root: st.Config().RootBlock.Hex(), applied: st.Applied(), rooms: len(st.Rooms())}
			})
			cancel2()
			if err == nil {
				rows = append(rows, rw2)
			}
		}
		for _, r := range rows {
			fmt.Fprintf(rw, "flowerchat_space_applied{space=%q} %d\n", r.root, r.applied)
		}
		fmt.Fprintf(rw, "# HELP flowerchat_space_rooms Live room count per space.\n")
		fmt.Fprintf(rw, "# TYPE flowerchat_space_rooms gauge\n")
		for _, r := range rows {
			fmt.Fprintf(rw, "flowerchat_space_rooms{space=%q} %d\n", r.root, r.rooms)
		}
	})

	mux.HandleFunc("/v1/ingest", ingestSrv.IngestHandler())
	mux.HandleFunc("/v1/spaces", ingestSrv.SpacesHandler())
	mux.HandleFunc("/v1/rooms", ingestSrv.RoomsHandler())
	mux.HandleFunc("/v1/messages", ingestSrv.MessagesHandler())
	mux.HandleFunc("/v1/balance", ingestSrv.BalanceHandler())
	mux.HandleFunc("/v1/principal", ingestSrv.PrincipalHandler())

	enableAdminHTTP := envBool("FC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("FC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect projection determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			type spaceState struct {
				Root    string `json:"root"`
				Applied uint64 `json:"applied"`
				Digest  string `json:"digest"`
			}
			resp := struct {
				Spaces []spaceState `json:"spaces"`
			}{Spaces: []spaceState{}}
			for _, root := range mgr.Roots() {
				rt := mgr.Runtime(root)
				if rt == nil {
					continue
				}
				var ss spaceState
				err := rt.Inspect(r.Context(), func(st *space.State) {
					ss = spaceState{Root: st.Config().RootBlock.Hex(), Applied: st.Applied(), Digest: st.Digest()}
				})
				if err == nil {
					resp.Spaces = append(resp.Spaces, ss)
				}
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			root, err := protocol.ParseHash(r.URL.Query().Get("space"))
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "bad space hash"})
				return
			}
			for _, w := range snapWriters {
				if w.rt.Root() == root {
					applied, err := w.write(r.Context())
					if err != nil {
						rw.WriteHeader(http.StatusServiceUnavailable)
						_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
						return
					}
					_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "applied": applied})
					return
				}
			}
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "unknown space"})
		})

		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (FC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (FC_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s spaces=%d", *addr, len(cfg.Spaces))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
