// Package sync discovers peers and downloads missing chain data from
// them: header ranges and block bodies, correlated by request id and
// bounded by an expiration timer (§4.6).
//
// Grounded on the teacher's core/network.go (orbas1-Synnergy): a
// libp2p host wrapped in a Node, gossip-sub topics for broadcast,
// mDNS for local peer discovery, and a sync.RWMutex-guarded peer map.
// Generalized here from free-form topic broadcast to the Headers/
// Bodies request-response protocol and the per-peer header/body
// downloader state spec.md §4.6 names.
package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
)

// PeerID names a connected peer by its libp2p peer id string.
type PeerID string

// StatusTopic is the gossip-sub topic peers broadcast their Status on.
const StatusTopic = "codechain/status/1"

// Status is the §4.6 peer-admission handshake payload: genesis hash
// plus the peer's advertised chain tip.
type Status struct {
	GenesisHash core.Hash
	TotalScore  uint64
	BestHash    core.Hash
}

// Config bootstraps a Node the same way the teacher's core.Config does.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
	GenesisHash    core.Hash
}

// Node wraps a libp2p host plus gossip-sub, dispatching incoming
// Status broadcasts into a Manager.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	mgr *Manager
	log *logrus.Logger
}

// NewNode creates and bootstraps a sync peer node and wires it to mgr.
func NewNode(cfg Config, mgr *Manager) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sync: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("sync: create pubsub: %w", err)
	}

	topic, err := ps.Join(StatusTopic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("sync: join status topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("sync: subscribe status topic: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topic:  topic,
		sub:    sub,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		mgr:    mgr,
		log:    logrus.StandardLogger(),
	}

	mdns.NewMdnsService(h, cfg.DiscoveryTag, n)

	go n.readStatusLoop()
	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.log.Warnf("sync: connect to discovered peer %s: %v", info.ID, err)
		return
	}
	n.mgr.peerConnected(PeerID(info.ID.String()))
}

// readStatusLoop feeds every gossiped Status into the Manager's
// admission logic (§4.6 "Peer admission").
func (n *Node) readStatusLoop() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			return
		}
		from := PeerID(msg.GetFrom().String())
		if from == PeerID(n.host.ID().String()) {
			continue
		}
		status, err := decodeStatus(msg.Data)
		if err != nil {
			n.log.Debugf("sync: bad status from %s: %v", from, err)
			continue
		}
		n.mgr.AdmitStatus(from, status)
	}
}

// BroadcastStatus gossips this node's own Status to the network.
func (n *Node) BroadcastStatus(status Status) error {
	return n.topic.Publish(n.ctx, encodeStatus(status))
}

// Close tears the node down.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

// --- peer registry ---

// peerRegistry tracks admitted peers and their last-known Status,
// guarded by a single RWMutex (§5 "Per-peer maps in sync: guarded by
// read-write lock; writers only during add/remove").
type peerRegistry struct {
	mu    sync.RWMutex
	peers map[PeerID]*peerState
}

type peerState struct {
	status   Status
	admitted bool
	headers  *headerDownloader
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{peers: make(map[PeerID]*peerState)}
}

func (r *peerRegistry) ensure(id PeerID) *peerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		p = &peerState{headers: newHeaderDownloader()}
		r.peers[id] = p
	}
	return p
}

func (r *peerRegistry) get(id PeerID) (*peerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *peerRegistry) remove(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// admittedIDs returns the currently admitted peer ids, order unspecified
// (the scheduler shuffles them anyway).
func (r *peerRegistry) admittedIDs() []PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]PeerID, 0, len(r.peers))
	for id, p := range r.peers {
		if p.admitted {
			ids = append(ids, id)
		}
	}
	return ids
}
