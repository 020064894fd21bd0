// Package observer serves the read-only websocket feed of projected
// transactions plus a bootstrap endpoint describing the hosted spaces.
// Both are restricted to loopback clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"flowerchat.dev/internal/multispace"
	"flowerchat.dev/internal/observerproto"
	"flowerchat.dev/internal/space"
)

type Server struct {
	mgr *multispace.Manager
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	out chan []byte

	mu         sync.Mutex
	space      string
	rejections bool
}

func (s *session) wants(entry space.JournalEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.space != "" && s.space != entry.Space {
		return false
	}
	if !entry.Applied && !s.rejections {
		return false
	}
	return true
}

func NewServer(mgr *multispace.Manager, logger *log.Logger) *Server {
	return &Server{
		mgr:      mgr,
		log:      logger,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Publish fans a journal entry out to every subscribed session. It is
// called from the fold goroutines and must never block: sessions that
// cannot keep up lose entries.
func (s *Server) Publish(entry space.JournalEntry) {
	s.mu.Lock()
	if len(s.sessions) == 0 {
		s.mu.Unlock()
		return
	}
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	var msg []byte
	for _, sess := range targets {
		if !sess.wants(entry) {
			continue
		}
		if msg == nil {
			b, err := json.Marshal(observerproto.EntryMsg{
				Type:            "ENTRY",
				ProtocolVersion: observerproto.Version,
				Entry:           entry,
			})
			if err != nil {
				return
			}
			msg = b
		}
		select {
		case sess.out <- msg:
		default:
			// Slow observer; drop.
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Spaces:          []observerproto.SpaceInfo{},
		}
		for _, root := range s.mgr.Roots() {
			rt := s.mgr.Runtime(root)
			if rt == nil {
				continue
			}
			var info observerproto.SpaceInfo
			err := rt.Inspect(ctx, func(st *space.State) {
				cfg := st.Config()
				info = observerproto.SpaceInfo{
					Root:    cfg.RootBlock.Hex(),
					Author:  cfg.Author.Hex(),
					Title:   st.Metadata().Title,
					Applied: st.Applied(),
					Rooms:   len(st.Rooms()),
					Digest:  st.Digest(),
				}
			})
			if err != nil {
				http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
				return
			}
			resp.Spaces = append(resp.Spaces, info)
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{
			out:        make(chan []byte, 4096),
			space:      sub.Space,
			rejections: sub.Rejections,
		}
		s.mu.Lock()
		s.sessions[sid] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
				continue
			}
			sess.mu.Lock()
			sess.space = sub.Space
			sess.rejections = sub.Rejections
			sess.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
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
