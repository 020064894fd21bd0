// Package ingest serves the HTTP surface of the projector: the ordered
// transaction intake plus the read API over projected state. The
// intake body is validated against the published JSON Schema before it
// touches a fold goroutine.
package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"flowerchat.dev/internal/multispace"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/space"
)

const maxBodyBytes = 256 * 1024

type Server struct {
	mgr    *multispace.Manager
	log    *log.Logger
	schema *jsonschema.Schema
}

func NewServer(mgr *multispace.Manager, schemaPath string, logger *log.Logger) (*Server, error) {
	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, err
	}
	return &Server{mgr: mgr, log: logger, schema: schema}, nil
}

// Request is the wire form of one ordered transaction. All hashes and
// keys are lowercase hex; the payload is the base64 of the original
// binary event.
type Request struct {
	Space   string `json:"space"`
	Block   string `json:"block"`
	Tx      string `json:"tx"`
	Author  string `json:"author"`
	Payload string `json:"payload"`
}

type Response struct {
	Applied bool   `json:"applied"`
	Replay  bool   `json:"replay,omitempty"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) IngestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(rw, "read body", http.StatusBadRequest)
			return
		}

		var loose any
		if err := json.Unmarshal(body, &loose); err != nil {
			http.Error(rw, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.schema.Validate(loose); err != nil {
			http.Error(rw, "schema: "+err.Error(), http.StatusBadRequest)
			return
		}

		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(rw, "invalid json", http.StatusBadRequest)
			return
		}
		env, err := envelope(req)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}

		outcome, err := s.mgr.Submit(r.Context(), env)
		if err != nil {
			switch {
			case errors.Is(err, multispace.ErrUnknownSpace):
				http.Error(rw, "unknown space", http.StatusNotFound)
			case errors.Is(err, multispace.ErrHalted):
				http.Error(rw, "space halted", http.StatusServiceUnavailable)
			default:
				http.Error(rw, "submit: "+err.Error(), http.StatusServiceUnavailable)
			}
			return
		}

		resp := Response{
			Applied: outcome.Applied,
			Replay:  outcome.Replay,
			Code:    outcome.Code,
		}
		if outcome.Reason != nil {
			resp.Reason = outcome.Reason.Error()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func envelope(req Request) (multispace.Envelope, error) {
	var env multispace.Envelope
	root, err := protocol.ParseHash(req.Space)
	if err != nil {
		return env, errors.New("bad space hash")
	}
	block, err := protocol.ParseHash(req.Block)
	if err != nil {
		return env, errors.New("bad block hash")
	}
	tx, err := protocol.ParseHash(req.Tx)
	if err != nil {
		return env, errors.New("bad tx hash")
	}
	author, err := protocol.ParsePublicKey(req.Author)
	if err != nil {
		return env, errors.New("bad author key")
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return env, errors.New("bad payload base64")
	}
	env.Space = root
	env.Ref = space.Reference{Block: block, Tx: tx, Author: author}
	env.Payload = payload
	return env, nil
}

// Read API. Every handler resolves the space from the ?space= query
// parameter and runs a read-only closure on that space's fold
// goroutine, so responses are always a consistent view.

type roomJSON struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Creator string `json:"creator"`
	Block   string `json:"block"`
	Tx      string `json:"tx"`
}

type messageJSON struct {
	Room    string `json:"room"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
	Nick    string `json:"nick"`
	Block   string `json:"block"`
	Tx      string `json:"tx"`
}

func (s *Server) SpacesHandler() http.HandlerFunc {
	type spaceJSON struct {
		Root    string `json:"root"`
		Author  string `json:"author"`
		Title   string `json:"title,omitempty"`
		Applied uint64 `json:"applied"`
		Digest  string `json:"digest"`
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		out := []spaceJSON{}
		for _, root := range s.mgr.Roots() {
			rt := s.mgr.Runtime(root)
			if rt == nil {
				continue
			}
			var sj spaceJSON
			err := rt.Inspect(r.Context(), func(st *space.State) {
				cfg := st.Config()
				sj = spaceJSON{
					Root:    cfg.RootBlock.Hex(),
					Author:  cfg.Author.Hex(),
					Title:   st.Metadata().Title,
					Applied: st.Applied(),
					Digest:  st.Digest(),
				}
			})
			if err != nil {
				http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
				return
			}
			out = append(out, sj)
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

func (s *Server) RoomsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rt, ok := s.runtime(rw, r)
		if !ok {
			return
		}
		out := []roomJSON{}
		err := rt.Inspect(r.Context(), func(st *space.State) {
			for _, room := range st.Rooms() {
				out = append(out, roomJSON{
					Name:    room.Name,
					Title:   room.Title,
					Creator: room.Creator.Hex(),
					Block:   room.Ref.Block.Hex(),
					Tx:      room.Ref.Tx.Hex(),
				})
			}
		})
		if err != nil {
			http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

func (s *Server) MessagesHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rt, ok := s.runtime(rw, r)
		if !ok {
			return
		}
		roomName := r.URL.Query().Get("room")
		if roomName == "" {
			http.Error(rw, "missing room", http.StatusBadRequest)
			return
		}
		var out []messageJSON
		var known bool
		err := rt.Inspect(r.Context(), func(st *space.State) {
			known = st.HasRoom(roomName)
			if !known {
				return
			}
			out = []messageJSON{}
			for _, m := range st.Messages(roomName) {
				out = append(out, messageJSON{
					Room:    m.RoomName,
					Content: m.Content,
					Sender:  m.Sender.Hex(),
					Nick:    st.Nickname(m.Sender),
					Block:   m.Ref.Block.Hex(),
					Tx:      m.Ref.Tx.Hex(),
				})
			}
		})
		if err != nil {
			http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
			return
		}
		if !known {
			http.Error(rw, "unknown room", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

func (s *Server) BalanceHandler() http.HandlerFunc {
	type balanceJSON struct {
		Principal string `json:"principal"`
		Nick      string `json:"nick"`
		Balance   uint64 `json:"balance"`
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		rt, ok := s.runtime(rw, r)
		if !ok {
			return
		}
		principal, err := protocol.ParsePublicKey(r.URL.Query().Get("principal"))
		if err != nil {
			http.Error(rw, "bad principal", http.StatusBadRequest)
			return
		}
		var out balanceJSON
		err = rt.Inspect(r.Context(), func(st *space.State) {
			out = balanceJSON{
				Principal: principal.Hex(),
				Nick:      st.Nickname(principal),
				Balance:   st.Balance(principal),
			}
		})
		if err != nil {
			http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

// PrincipalHandler reports how a principal stands in a space or, with
// the room parameter, in one of its rooms: resolved role, ban status,
// nickname and balance.
func (s *Server) PrincipalHandler() http.HandlerFunc {
	type principalJSON struct {
		Principal string `json:"principal"`
		Scope     string `json:"scope"`
		Role      string `json:"role"`
		Banned    bool   `json:"banned"`
		Nick      string `json:"nick"`
		Balance   uint64 `json:"balance"`
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		rt, ok := s.runtime(rw, r)
		if !ok {
			return
		}
		principal, err := protocol.ParsePublicKey(r.URL.Query().Get("principal"))
		if err != nil {
			http.Error(rw, "bad principal", http.StatusBadRequest)
			return
		}
		scope := space.SpaceScope()
		roomName := r.URL.Query().Get("room")
		if roomName != "" {
			scope = space.RoomScope(roomName)
		}

		var out principalJSON
		var known bool
		err = rt.Inspect(r.Context(), func(st *space.State) {
			known = roomName == "" || st.HasRoom(roomName)
			if !known {
				return
			}
			out = principalJSON{
				Principal: principal.Hex(),
				Scope:     scope.String(),
				Role:      st.RoleOf(scope, principal).String(),
				Banned:    st.Banned(scope, principal),
				Nick:      st.Nickname(principal),
				Balance:   st.Balance(principal),
			}
		})
		if err != nil {
			http.Error(rw, "space unavailable", http.StatusServiceUnavailable)
			return
		}
		if !known {
			http.Error(rw, "unknown room", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(out)
	}
}

func (s *Server) runtime(rw http.ResponseWriter, r *http.Request) (*multispace.Runtime, bool) {
	root, err := protocol.ParseHash(r.URL.Query().Get("space"))
	if err != nil {
		http.Error(rw, "bad space hash", http.StatusBadRequest)
		return nil, false
	}
	rt := s.mgr.Runtime(root)
	if rt == nil {
		http.Error(rw, "unknown space", http.StatusNotFound)
		return nil, false
	}
	return rt, true
}
