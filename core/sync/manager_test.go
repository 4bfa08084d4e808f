package sync

import (
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	core "codechain-core/core"
	"codechain-core/core/chain"
)

// --- helpers ---

type fakeChainView struct {
	header  *core.Header
	hash    core.Hash
	byHash  map[core.Hash]*core.Header
	byNum   map[uint64]*core.Header
}

func (f *fakeChainView) Best() (*core.Header, core.Hash) { return f.header, f.hash }
func (f *fakeChainView) HeaderByNumber(n uint64) (*core.Header, bool) {
	h, ok := f.byNum[n]
	return h, ok
}
func (f *fakeChainView) HeaderByHash(hash core.Hash) (*core.Header, bool) {
	h, ok := f.byHash[hash]
	return h, ok
}

type fakeInserter struct {
	mu       sync.Mutex
	imported []*core.Block
}

func (f *fakeInserter) ImportBlock(block *core.Block) (chain.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, block)
	return chain.ImportResult{IsBest: true}, nil
}

type fakeTransport struct {
	headerReqs []HeadersRequest
	bodyReqs   []BodiesRequest
}

func (f *fakeTransport) SendHeadersRequest(peer PeerID, id RequestID, req HeadersRequest) error {
	f.headerReqs = append(f.headerReqs, req)
	return nil
}
func (f *fakeTransport) SendBodiesRequest(peer PeerID, id RequestID, req BodiesRequest) error {
	f.bodyReqs = append(f.bodyReqs, req)
	return nil
}

func newTestManager(chainView *fakeChainView, inserter *fakeInserter, transport *fakeTransport) *Manager {
	return New(core.Hash{0x01}, chainView, inserter, transport, clock.NewMock())
}

// --- tests ---

func TestAdmitStatus_RejectsGenesisMismatch(t *testing.T) {
	m := newTestManager(&fakeChainView{}, &fakeInserter{}, &fakeTransport{})
	m.AdmitStatus("peer1", Status{GenesisHash: core.Hash{0x99}, TotalScore: 5})

	if _, ok := m.peers.get("peer1"); ok {
		t.Fatalf("expected peer with mismatched genesis to stay unadmitted")
	}
}

func TestAdmitStatus_IgnoresLowerOrEqualScoreUpdate(t *testing.T) {
	m := newTestManager(&fakeChainView{}, &fakeInserter{}, &fakeTransport{})
	m.AdmitStatus("peer1", Status{GenesisHash: core.Hash{0x01}, TotalScore: 10, BestHash: core.Hash{0xaa}})
	m.AdmitStatus("peer1", Status{GenesisHash: core.Hash{0x01}, TotalScore: 10, BestHash: core.Hash{0xbb}})

	p, ok := m.peers.get("peer1")
	if !ok || !p.admitted {
		t.Fatalf("expected peer1 admitted")
	}
	if p.status.BestHash != (core.Hash{0xaa}) {
		t.Fatalf("expected equal-score update to be ignored, got best hash %v", p.status.BestHash)
	}

	m.AdmitStatus("peer1", Status{GenesisHash: core.Hash{0x01}, TotalScore: 11, BestHash: core.Hash{0xcc}})
	p, _ = m.peers.get("peer1")
	if p.status.BestHash != (core.Hash{0xcc}) {
		t.Fatalf("expected higher-score update to apply")
	}
}

func TestOnHeadersResponse_DropsUnknownRequestID(t *testing.T) {
	cv := &fakeChainView{byHash: map[core.Hash]*core.Header{}}
	m := newTestManager(cv, &fakeInserter{}, &fakeTransport{})
	m.peers.ensure("peer1")

	h := &core.Header{Number: 1}
	m.OnHeadersResponse("peer1", "unknown-id", HeadersResponse{Headers: []*core.Header{h}})

	if len(m.bodies.targets) != 0 {
		t.Fatalf("expected no target registered for an unresolved request id")
	}
}

func TestOnHeadersResponse_RegistersTargetsAndAdvancesPeer(t *testing.T) {
	cv := &fakeChainView{byHash: map[core.Hash]*core.Header{}}
	m := newTestManager(cv, &fakeInserter{}, &fakeTransport{})
	p := m.peers.ensure("peer1")

	id := newRequestID()
	m.reqlog.register(&pendingRequest{id: id})

	h1 := &core.Header{Number: 1}
	h2 := &core.Header{Number: 2}
	m.OnHeadersResponse("peer1", id, HeadersResponse{Headers: []*core.Header{h1, h2}})

	if p.headers.nextStart != 3 {
		t.Fatalf("expected nextStart advanced to 3, got %d", p.headers.nextStart)
	}
	if len(m.bodies.targets) != 2 {
		t.Fatalf("expected 2 body targets registered, got %d", len(m.bodies.targets))
	}
}

func TestOnBodiesResponse_ImportsInAscendingOrderAndClearsTimer(t *testing.T) {
	cv := &fakeChainView{header: &core.Header{Number: 0}, byHash: map[core.Hash]*core.Header{}}
	inserter := &fakeInserter{}
	m := newTestManager(cv, inserter, &fakeTransport{})

	h1 := &core.Header{Number: 1}
	h2 := &core.Header{Number: 2}
	m.bodies.addTarget(h1, nil)
	m.bodies.addTarget(h2, nil)

	id := newRequestID()
	hashes := []core.Hash{h1.Hash(), h2.Hash()}
	m.bodies.markOutstanding(id, hashes)
	cancelled := false
	m.reqlog.register(&pendingRequest{id: id, isBody: true, hashes: hashes, cancel: func() { cancelled = true }})

	m.OnBodiesResponse("peer1", id, BodiesResponse{Bodies: []*core.Body{{}, {}}})

	if !cancelled {
		t.Fatalf("expected expiration timer cancelled on match")
	}
	if len(inserter.imported) != 2 {
		t.Fatalf("expected 2 blocks imported, got %d", len(inserter.imported))
	}
	if inserter.imported[0].Header.Number != 1 || inserter.imported[1].Header.Number != 2 {
		t.Fatalf("expected ascending import order, got %+v", inserter.imported)
	}
}

func TestOnBodiesResponse_LengthMismatchRequeues(t *testing.T) {
	cv := &fakeChainView{header: &core.Header{Number: 0}}
	inserter := &fakeInserter{}
	m := newTestManager(cv, inserter, &fakeTransport{})

	h1 := &core.Header{Number: 1}
	m.bodies.addTarget(h1, nil)
	id := newRequestID()
	hashes := []core.Hash{h1.Hash()}
	m.bodies.markOutstanding(id, hashes)
	m.reqlog.register(&pendingRequest{id: id, isBody: true, hashes: hashes})

	m.OnBodiesResponse("peer1", id, BodiesResponse{Bodies: nil})

	if len(inserter.imported) != 0 {
		t.Fatalf("expected no import on length mismatch")
	}
	pending := m.bodies.pending(10)
	if len(pending) != 1 {
		t.Fatalf("expected the hash requeued as pending, got %d", len(pending))
	}
}

func TestExpireBody_RequeuesHashes(t *testing.T) {
	cv := &fakeChainView{}
	m := newTestManager(cv, &fakeInserter{}, &fakeTransport{})

	h1 := &core.Header{Number: 1}
	m.bodies.addTarget(h1, nil)
	id := newRequestID()
	hashes := []core.Hash{h1.Hash()}
	m.bodies.markOutstanding(id, hashes)
	m.reqlog.register(&pendingRequest{id: id, isBody: true, hashes: hashes})

	m.expireBody(id)

	pending := m.bodies.pending(10)
	if len(pending) != 1 {
		t.Fatalf("expected hash requeued after expiry, got %d", len(pending))
	}
}

func TestStateSyncRequests_AreUnimplemented(t *testing.T) {
	m := newTestManager(&fakeChainView{}, &fakeInserter{}, &fakeTransport{})

	if err := m.OnStateHeadRequest("peer1", StateHeadRequest{}); !core.IsKind(err, core.KindProtocol) {
		t.Fatalf("expected a protocol-kind error, got %v", err)
	}
	if err := m.OnStateChunkRequest("peer1", StateChunkRequest{ChunkIndex: 3}); !core.IsKind(err, core.KindProtocol) {
		t.Fatalf("expected a protocol-kind error, got %v", err)
	}
}

func TestTick_RequestsHeadersFromHigherScoringPeerOnly(t *testing.T) {
	cv := &fakeChainView{header: &core.Header{Number: 0, Score: 10}}
	transport := &fakeTransport{}
	m := newTestManager(cv, &fakeInserter{}, transport)

	m.AdmitStatus("ahead", Status{GenesisHash: core.Hash{0x01}, TotalScore: 20})
	m.AdmitStatus("behind", Status{GenesisHash: core.Hash{0x01}, TotalScore: 5})

	m.Tick()

	if len(transport.headerReqs) != 1 {
		t.Fatalf("expected exactly 1 headers request (from the higher-scoring peer), got %d", len(transport.headerReqs))
	}
}
