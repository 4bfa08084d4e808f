package sync

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
	"codechain-core/core/chain"
)

const (
	// maxHeadersPerRequest bounds a single Headers request.
	maxHeadersPerRequest = 192
	// maxBodiesPerRequest bounds a single Bodies request.
	maxBodiesPerRequest = 32
	// bodyRequestTimeout is the §4.6 "15-second" expiration.
	bodyRequestTimeout = 15 * time.Second
	// schedulerTick is the §4.6 "1-second cadence".
	schedulerTick = time.Second
)

// ChainView is the read capability Manager needs from core/chain.Client
// to compare our own chain against a peer's advertised Status and to
// decide what the next contiguous import number is.
type ChainView interface {
	Best() (*core.Header, core.Hash)
	HeaderByNumber(number uint64) (*core.Header, bool)
	HeaderByHash(hash core.Hash) (*core.Header, bool)
}

// ChainInserter imports an assembled block. core/chain never imports
// core/sync, so using the concrete chain.ImportResult here carries no
// cycle risk (mirrors core/miner's ChainHead for the same reason).
type ChainInserter interface {
	ImportBlock(block *core.Block) (chain.ImportResult, error)
}

// Transport sends correlated requests to a specific peer; satisfied by
// Node in production and by a fake in tests.
type Transport interface {
	SendHeadersRequest(peer PeerID, id RequestID, req HeadersRequest) error
	SendBodiesRequest(peer PeerID, id RequestID, req BodiesRequest) error
}

// Manager runs the §4.6 block-propagation protocol: peer admission,
// the 1-second scheduler tick, request/response correlation, body
// expiration, and ascending-order import of completed blocks.
type Manager struct {
	genesisHash core.Hash
	chain       ChainView
	inserter    ChainInserter
	transport   Transport
	clk         clock.Clock
	log         *logrus.Logger

	peers  *peerRegistry
	bodies *bodyDownloader
	reqlog *requestLog
	rng    *rand.Rand
}

// New constructs a Manager. genesisHash is compared against every
// peer's advertised Status.GenesisHash (§4.6 "Peer admission").
func New(genesisHash core.Hash, chainView ChainView, inserter ChainInserter, transport Transport, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		genesisHash: genesisHash,
		chain:       chainView,
		inserter:    inserter,
		transport:   transport,
		clk:         clk,
		log:         logrus.StandardLogger(),
		peers:       newPeerRegistry(),
		bodies:      newBodyDownloader(),
		reqlog:      newRequestLog(),
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (m *Manager) peerConnected(id PeerID) {
	m.peers.ensure(id)
}

// AdmitStatus processes a peer's Status broadcast (§4.6 "Peer
// admission"): genesis hash must match ours, and a lower-or-equal
// score update from an already-known peer is ignored.
func (m *Manager) AdmitStatus(id PeerID, status Status) {
	if status.GenesisHash != m.genesisHash {
		m.log.Warnf("sync: rejecting peer %s: genesis hash mismatch", id)
		return
	}
	p := m.peers.ensure(id)
	if p.admitted && status.TotalScore <= p.status.TotalScore {
		return
	}
	p.status = status
	p.admitted = true
}

// ourScore reads the score of our current best header, or 0 before
// genesis is imported.
func (m *Manager) ourScore() (uint64, uint64) {
	header, _ := m.chain.Best()
	if header == nil {
		return 0, 0
	}
	return header.Score, header.Number
}

// Tick runs one scheduler pass (§4.6 "Scheduler tick"): shuffle
// connected peers; for each, request headers if it can form one, and
// issue at most one body request for a peer with a higher score.
func (m *Manager) Tick() {
	ids := m.peers.admittedIDs()
	m.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	ourScore, ourNumber := m.ourScore()
	bodyRequestSent := false

	for _, id := range ids {
		p, ok := m.peers.get(id)
		if !ok {
			continue
		}
		if p.status.TotalScore > ourScore {
			if p.headers.nextStart <= ourNumber {
				p.headers.nextStart = ourNumber + 1
			}
			req := p.headers.nextRequest(maxHeadersPerRequest)
			reqID := newRequestID()
			m.reqlog.register(&pendingRequest{id: reqID})
			if err := m.transport.SendHeadersRequest(id, reqID, req); err != nil {
				m.log.Debugf("sync: send headers request: %v", err)
			}
		}

		if !bodyRequestSent && p.status.TotalScore > ourScore {
			hashes := m.bodies.pending(maxBodiesPerRequest)
			if len(hashes) > 0 {
				reqID := newRequestID()
				m.bodies.markOutstanding(reqID, hashes)
				timer := m.clk.AfterFunc(bodyRequestTimeout, func() { m.expireBody(reqID) })
				m.reqlog.register(&pendingRequest{
					id:     reqID,
					isBody: true,
					hashes: hashes,
					cancel: func() { timer.Stop() },
				})
				if err := m.transport.SendBodiesRequest(id, reqID, BodiesRequest{Hashes: hashes}); err != nil {
					m.log.Debugf("sync: send bodies request: %v", err)
				}
				bodyRequestSent = true
			}
		}
	}
}

// RunScheduler drives Tick on the §4.6 1-second cadence until stop
// fires.
func (m *Manager) RunScheduler(stop <-chan struct{}) {
	ticker := m.clk.Ticker(schedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// OnStateHeadRequest and OnStateChunkRequest answer the reserved
// fast-sync request kinds with ErrStateSyncUnimplemented rather than
// guessing a wire format (§9 Open Question).
func (m *Manager) OnStateHeadRequest(peer PeerID, _ StateHeadRequest) error {
	return ErrStateSyncUnimplemented()
}

func (m *Manager) OnStateChunkRequest(peer PeerID, _ StateChunkRequest) error {
	return ErrStateSyncUnimplemented()
}

// expireBody handles a fired body-request timer: the request's hashes
// return to the to-download set (§4.6 "Expiration").
func (m *Manager) expireBody(id RequestID) {
	req, ok := m.reqlog.expire(id)
	if !ok || !req.isBody {
		return
	}
	m.bodies.requeue(req.hashes)
}

// OnHeadersResponse processes a Headers response. A response with no
// matching pending request id is dropped (§4.6 "Correlation").
func (m *Manager) OnHeadersResponse(peer PeerID, id RequestID, resp HeadersResponse) {
	if _, ok := m.reqlog.resolve(id); !ok {
		return
	}
	p, ok := m.peers.get(peer)
	if !ok || len(resp.Headers) == 0 {
		return
	}
	p.headers.recordImported(resp.Headers)

	for i, h := range resp.Headers {
		var parent *core.Header
		if i > 0 {
			parent = resp.Headers[i-1]
		} else if known, ok := m.chain.HeaderByHash(h.ParentHash); ok {
			parent = known
		}
		m.bodies.addTarget(h, parent)
	}
}

// OnBodiesResponse processes a Bodies response: matching clears the
// expiration timer (§4.6 "matching a Bodies request clears the
// expiration timer"); a length mismatch drops the whole response and
// requeues its hashes.
func (m *Manager) OnBodiesResponse(peer PeerID, id RequestID, resp BodiesResponse) {
	req, ok := m.reqlog.resolve(id)
	if !ok || !req.isBody {
		return
	}
	if req.cancel != nil {
		req.cancel()
	}
	if len(resp.Bodies) != len(req.hashes) {
		m.bodies.requeue(req.hashes)
		return
	}

	for i, hash := range req.hashes {
		if _, ok := m.bodies.complete(hash, resp.Bodies[i]); !ok {
			continue
		}
	}

	_, ourNumber := m.ourScore()
	for _, block := range m.bodies.drainAscending(ourNumber + 1) {
		if _, err := m.inserter.ImportBlock(block); err != nil {
			m.log.WithError(err).Warnf("sync: import block %d failed", block.Header.Number)
			return
		}
	}
}
