package chain

// subscriber.go implements the "weak subscriber reference" design
// (SPEC_FULL.md DESIGN NOTES): an interest handle with a liveness flag,
// so a subscriber that forgets to unsubscribe is simply skipped on
// dispatch rather than causing a panic or a leak-shaped strong
// reference. Grounded on the teacher's peer-registry
// register/deregister-with-lock pattern (network.go's peerLock
// sync.RWMutex), generalized from peers to chain-event subscribers.

import (
	"sync"

	core "codechain-core/core"
)

// Subscriber is notified of chain events in the order it was
// registered, synchronously (§4.5 "subscribers are called synchronously
// in registration order"). Implementations must not block on IO.
type Subscriber interface {
	// ChainNewBlocks reports a reorg (or a simple extension, with
	// retracted empty): enacted/retracted name block hashes, oldest
	// first. Delivered before NewBestBlock for the same import (§4.5
	// "mempool must observe retracted blocks before new best is
	// advertised to peers").
	ChainNewBlocks(enacted, retracted []core.Hash)
	// NewBestBlock reports that block is now the chain head.
	NewBestBlock(block *core.Block)
}

// Handle is the registration token returned by Registry.Subscribe.
// Calling Close marks the subscriber dead; future dispatches skip it
// without error (§4.5 "subscribers are weakly referenced; dropped
// subscribers are skipped without error").
type Handle struct {
	mu    sync.Mutex
	sub   Subscriber
	alive bool
}

// Close deregisters the subscriber. Idempotent.
func (h *Handle) Close() {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
}

func (h *Handle) snapshot() (Subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub, h.alive
}

// Registry holds the ordered list of subscriber handles a Client
// dispatches chain events to.
type Registry struct {
	mu      sync.RWMutex
	handles []*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers sub at the end of the dispatch order and returns
// its handle.
func (r *Registry) Subscribe(sub Subscriber) *Handle {
	h := &Handle{sub: sub, alive: true}
	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()
	return h
}

func (r *Registry) snapshotHandles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, len(r.handles))
	copy(out, r.handles)
	return out
}

func (r *Registry) notifyChainNewBlocks(enacted, retracted []core.Hash) {
	for _, h := range r.snapshotHandles() {
		sub, alive := h.snapshot()
		if !alive {
			continue
		}
		sub.ChainNewBlocks(enacted, retracted)
	}
}

func (r *Registry) notifyNewBestBlock(block *core.Block) {
	for _, h := range r.snapshotHandles() {
		sub, alive := h.snapshot()
		if !alive {
			continue
		}
		sub.NewBestBlock(block)
	}
}
