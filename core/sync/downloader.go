package sync

import (
	core "codechain-core/core"
)

// headerDownloader is the per-peer header-download state: the next
// header number to request and which hashes we already imported from
// the peer. The peer's advertised Status is kept beside it in
// peerState, not here.
type headerDownloader struct {
	nextStart uint64
	imported  map[core.Hash]bool
}

func newHeaderDownloader() *headerDownloader {
	return &headerDownloader{imported: make(map[core.Hash]bool)}
}

// nextRequest always forms a Headers request for the next batch,
// starting where the previous batch left off. Whether the peer is worth
// asking (its advertised score against ours) is decided by the caller,
// Manager.Tick.
func (d *headerDownloader) nextRequest(maxCount int) HeadersRequest {
	return HeadersRequest{StartNumber: d.nextStart, MaxCount: maxCount}
}

func (d *headerDownloader) recordImported(headers []*core.Header) {
	for _, h := range headers {
		d.imported[h.Hash()] = true
	}
	if n := len(headers); n > 0 {
		d.nextStart = headers[n-1].Number + 1
	}
}

// target is one body still owed to the body downloader: the header it
// belongs to (needed to re-assemble the Block once the body arrives)
// and its parent (kept for the §4.6 "fork discovery" invariant that a
// target always names both a header and its parent).
type target struct {
	header *core.Header
	parent *core.Header
}

// bodyDownloader is the global (not per-peer) body-fetching state:
// headers whose bodies are still missing, which of those are
// currently in flight, and bodies that arrived but are not yet
// importable because an earlier block number is still missing
// (§4.6 "fork discovery ... assembled into blocks and imported in
// ascending number order").
type bodyDownloader struct {
	targets     map[core.Hash]target
	outstanding map[core.Hash]RequestID
	assembled   map[uint64]*core.Block
}

func newBodyDownloader() *bodyDownloader {
	return &bodyDownloader{
		targets:     make(map[core.Hash]target),
		outstanding: make(map[core.Hash]RequestID),
		assembled:   make(map[uint64]*core.Block),
	}
}

// addTarget registers header (with its parent) as a body still owed,
// unless it is already targeted, outstanding, or assembled.
func (d *bodyDownloader) addTarget(header, parent *core.Header) {
	hash := header.Hash()
	if _, ok := d.targets[hash]; ok {
		return
	}
	if _, ok := d.assembled[header.Number]; ok {
		return
	}
	d.targets[hash] = target{header: header, parent: parent}
}

// pending returns up to max target hashes that are not currently
// outstanding, for the scheduler to bundle into a BodiesRequest.
func (d *bodyDownloader) pending(max int) []core.Hash {
	out := make([]core.Hash, 0, max)
	for hash := range d.targets {
		if _, inFlight := d.outstanding[hash]; inFlight {
			continue
		}
		out = append(out, hash)
		if len(out) == max {
			break
		}
	}
	return out
}

// markOutstanding records that hashes are now in flight under id.
func (d *bodyDownloader) markOutstanding(id RequestID, hashes []core.Hash) {
	for _, h := range hashes {
		d.outstanding[h] = id
	}
}

// requeue returns hashes to the "not outstanding" state — used both
// on expiry (§4.6 "on fire, the request's hashes are returned to the
// body downloader's to-download set") and on a rejected response.
func (d *bodyDownloader) requeue(hashes []core.Hash) {
	for _, h := range hashes {
		delete(d.outstanding, h)
	}
}

// complete assembles hash's Block from its stored target and body,
// removing it from targets/outstanding and adding it to assembled.
func (d *bodyDownloader) complete(hash core.Hash, body *core.Body) (*core.Block, bool) {
	t, ok := d.targets[hash]
	if !ok {
		return nil, false
	}
	delete(d.targets, hash)
	delete(d.outstanding, hash)
	block := &core.Block{Header: *t.header, Body: *body}
	d.assembled[t.header.Number] = block
	return block, true
}

// drainAscending pops assembled blocks starting at nextNumber as long
// as they form a contiguous run, in ascending order — the §4.6
// "imported in ascending number order" rule.
func (d *bodyDownloader) drainAscending(nextNumber uint64) []*core.Block {
	var out []*core.Block
	for {
		block, ok := d.assembled[nextNumber]
		if !ok {
			return out
		}
		delete(d.assembled, nextNumber)
		out = append(out, block)
		nextNumber++
	}
}
