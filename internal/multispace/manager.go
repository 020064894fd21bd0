package multispace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"flowerchat.dev/internal/persistence/snapshot"
	"flowerchat.dev/internal/protocol"
	"flowerchat.dev/internal/space"
)

var (
	ErrUnknownSpace = errors.New("unknown space")
	ErrHalted       = errors.New("projection halted")
)

// Envelope is one ordered transaction addressed to a space.
type Envelope struct {
	Space   space.Hash
	Ref     space.Reference
	Payload []byte
}

type JournalSink interface {
	WriteJournal(space.JournalEntry) error
}

type AuditSink interface {
	WriteAudit(space.AuditEntry) error
}

// FeedFunc receives every journal entry for live observers. It must not
// block; slow consumers drop entries on their own side.
type FeedFunc func(space.JournalEntry)

// Runtime folds one space's event stream on its own goroutine. All
// state access happens inside Run; callers talk to it over channels.
type Runtime struct {
	state *space.State

	submit  chan submitReq
	inspect chan inspectReq
	snapReq chan snapshotReq
	journal JournalSink
	audit   AuditSink
	feed    FeedFunc
	seq     uint64
	haltErr error
}

type submitReq struct {
	env  Envelope
	resp chan submitResp
}

type submitResp struct {
	out space.Outcome
	err error
}

type inspectReq struct {
	fn   func(*space.State)
	done chan struct{}
}

type snapshotReq struct {
	resp chan snapshot.SnapshotV1
}

func NewRuntime(st *space.State) *Runtime {
	return &Runtime{
		state:   st,
		submit:  make(chan submitReq, 256),
		inspect: make(chan inspectReq, 16),
		snapReq: make(chan snapshotReq, 1),
	}
}

func (rt *Runtime) SetJournal(s JournalSink) { rt.journal = s }
func (rt *Runtime) SetAudit(s AuditSink)     { rt.audit = s }
func (rt *Runtime) SetFeed(f FeedFunc)       { rt.feed = f }

func (rt *Runtime) Root() space.Hash { return rt.state.Config().RootBlock }

func (rt *Runtime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-rt.submit:
			req.resp <- rt.handleSubmit(req.env)
		case req := <-rt.inspect:
			req.fn(rt.state)
			close(req.done)
		case req := <-rt.snapReq:
			req.resp <- rt.state.ExportSnapshot()
		}
	}
}

// Submit projects one envelope and waits for its outcome. Envelopes
// submitted from one goroutine are applied strictly in order.
func (rt *Runtime) Submit(ctx context.Context, env Envelope) (space.Outcome, error) {
	req := submitReq{env: env, resp: make(chan submitResp, 1)}
	select {
	case rt.submit <- req:
	case <-ctx.Done():
		return space.Outcome{}, ctx.Err()
	}
	select {
	case resp := <-req.resp:
		return resp.out, resp.err
	case <-ctx.Done():
		return space.Outcome{}, ctx.Err()
	}
}

// Inspect runs a read-only closure on the fold goroutine, giving
// collaborators a consistent view without locks.
func (rt *Runtime) Inspect(ctx context.Context, fn func(*space.State)) error {
	req := inspectReq{fn: fn, done: make(chan struct{})}
	select {
	case rt.inspect <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *Runtime) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := snapshotReq{resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case rt.snapReq <- req:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-req.resp:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func (rt *Runtime) handleSubmit(env Envelope) submitResp {
	if rt.haltErr != nil {
		return submitResp{err: fmt.Errorf("%w: %v", ErrHalted, rt.haltErr)}
	}
	rt.seq++

	entry := space.JournalEntry{
		Seq:     rt.seq,
		Space:   rt.state.Config().RootBlock.Hex(),
		Block:   env.Ref.Block.Hex(),
		Tx:      env.Ref.Tx.Hex(),
		Author:  env.Ref.Author.Hex(),
		Payload: env.Payload,
	}

	ev, err := protocol.Decode(env.Payload)
	if err != nil {
		entry.Code = protocol.CodeDecode
		entry.Detail = err.Error()
		entry.Digest = rt.state.Digest()
		rt.record(entry)
		return submitResp{out: space.Outcome{Code: protocol.CodeDecode, Reason: err}}
	}
	entry.Kind = ev.Kind().String()

	out, fatal := rt.state.Apply(ev, env.Ref)
	if fatal != nil {
		rt.haltErr = fatal
		entry.Code = protocol.CodeCorruptedChain
		entry.Detail = fatal.Error()
		entry.Digest = rt.state.Digest()
		rt.record(entry)
		return submitResp{err: fatal}
	}

	entry.Applied = out.Applied
	entry.Replay = out.Replay
	entry.Code = out.Code
	if out.Reason != nil {
		entry.Detail = out.Reason.Error()
	}
	entry.Digest = rt.state.Digest()
	rt.record(entry)
	return submitResp{out: out}
}

func (rt *Runtime) record(entry space.JournalEntry) {
	if rt.journal != nil {
		_ = rt.journal.WriteJournal(entry)
	}
	if rt.audit != nil && entry.Code != "" {
		_ = rt.audit.WriteAudit(space.AuditEntry{
			Seq:    entry.Seq,
			Space:  entry.Space,
			Block:  entry.Block,
			Tx:     entry.Tx,
			Author: entry.Author,
			Kind:   entry.Kind,
			Code:   entry.Code,
			Detail: entry.Detail,
		})
	}
	if rt.feed != nil {
		rt.feed(entry)
	}
}

// Manager routes envelopes to per-space runtimes. Different spaces
// project fully concurrently; within one space envelopes are strictly
// sequential.
type Manager struct {
	mu     sync.RWMutex
	spaces map[space.Hash]*Runtime
}

func NewManager() *Manager {
	return &Manager{spaces: map[space.Hash]*Runtime{}}
}

func (m *Manager) Add(rt *Runtime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[rt.Root()] = rt
}

func (m *Manager) Runtime(root space.Hash) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spaces[root]
}

func (m *Manager) Roots() []space.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roots := make([]space.Hash, 0, len(m.spaces))
	for root := range m.spaces {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Hex() < roots[j].Hex() })
	return roots
}

// Submit routes an envelope to its space's runtime.
func (m *Manager) Submit(ctx context.Context, env Envelope) (space.Outcome, error) {
	rt := m.Runtime(env.Space)
	if rt == nil {
		return space.Outcome{}, fmt.Errorf("%w: %s", ErrUnknownSpace, env.Space.Hex())
	}
	return rt.Submit(ctx, env)
}

// Run starts every runtime and blocks until the context ends.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	rts := make([]*Runtime, 0, len(m.spaces))
	for _, rt := range m.spaces {
		rts = append(rts, rt)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, rt := range rts {
		rt := rt
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Run(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}
