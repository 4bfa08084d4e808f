// Package mempool holds admissible unmined transactions, orders them
// for block building, and enforces replacement, quotas and bans (§4.3).
//
// Grounded on original_source's core/src/miner/parcel_queue.rs: the
// same four-index shape (by-priority, by-fee-derived ordering,
// by-(signer,seq), by-hash) and the same current/future partitioning
// by a contiguous seq chain from the signer's on-chain seq. Go lacks
// the ordered-set (BTreeSet) the Rust original used, so the priority
// index is a container/heap min-heap instead (no ordered-set library
// appears anywhere in the retrieved pack; this matches the idiom
// go-ethereum's own txpool uses for the same problem). The
// capability-injection shape (AccountReader, EngineVerifier) follows
// the teacher's core/consensus.go "wire-up interfaces" style.
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	core "codechain-core/core"
)

// Origin records where a transaction entered the pool. Ordered so that
// a numerically smaller Origin always outranks a larger one (§4.3:
// "origin ≻ height above signer.seq ≻ fee descending ≻ insertion-id").
type Origin int

const (
	OriginRetractedBlock Origin = iota
	OriginLocal
	OriginExternal
)

func (o Origin) String() string {
	switch o {
	case OriginRetractedBlock:
		return "retracted-block"
	case OriginLocal:
		return "local"
	case OriginExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountReader is the narrow capability the pool needs from the chain
// client: the best (pending-parent) account state, to compute seq
// height and balance during admission and culling. A chain.Client
// satisfies this structurally via its existing BestAccount method.
type AccountReader interface {
	BestAccount(addr core.Address) (core.Account, error)
}

// EngineVerifier performs the "engine-level verification" step of
// admission: a dry run against the state engine (without committing)
// that catches everything a structural check cannot, e.g. a reference
// to a nonexistent asset scheme or a lock-script mismatch.
type EngineVerifier interface {
	VerifyTransaction(tx *core.SignedTransaction) error
}

// TimelockFunc computes the earliest block number and timestamp at
// which tx becomes includable, per any timelock opcodes its input lock
// scripts carry. A nil TimelockFunc means no transaction is ever
// timelocked.
type TimelockFunc func(tx *core.SignedTransaction) (minBlock, minTimestamp uint64)

// Config bounds pool resource usage and replacement policy.
type Config struct {
	MaxCount       int
	MaxMemoryBytes int
	FeeBumpShift   uint          // new_fee > old_fee + old_fee>>FeeBumpShift
	MaxTimeInQueue time.Duration // non-local entries older than this are culled
}

// AuditStatus is the terminal or in-flight state of a pool entry kept
// in the local-transaction audit list (§4.3).
type AuditStatus int

const (
	AuditAccepted AuditStatus = iota
	AuditRejected
	AuditDropped
	AuditReplaced
	AuditMined
)

func (s AuditStatus) String() string {
	switch s {
	case AuditAccepted:
		return "accepted"
	case AuditRejected:
		return "rejected"
	case AuditDropped:
		return "dropped"
	case AuditReplaced:
		return "replaced"
	case AuditMined:
		return "mined"
	default:
		return "unknown"
	}
}

// AuditEvent is one entry of the local-transaction audit trail.
type AuditEvent struct {
	Hash   core.Hash
	Status AuditStatus
	Reason string
}

type entry struct {
	tx          *core.SignedTransaction
	signer      core.Address
	hash        core.Hash
	origin      Origin
	seqHeight   uint64 // seq - signer's on-chain seq, at insertion time
	fee         uint64
	insertionID uint64
	memUsage    int
	insertedAt  time.Time
	minBlock    uint64
	minTime     uint64
	index       int // heap.Interface bookkeeping
}

// less reports whether a outranks b in priority order (a should be
// popped/served before b).
func (e *entry) less(o *entry) bool {
	if e.origin != o.origin {
		return e.origin < o.origin
	}
	if e.seqHeight != o.seqHeight {
		return e.seqHeight < o.seqHeight
	}
	if e.fee != o.fee {
		return e.fee > o.fee // fee descending: higher fee outranks
	}
	return e.insertionID < o.insertionID
}

// entryHeap is a container/heap min-heap ordered by priority: Pop
// always yields the best remaining entry.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// partition is one of the pool's two seq-contiguity buckets (current,
// future); it owns a priority heap plus the secondary (signer → seq →
// entry) map.
type partition struct {
	byPriority entryHeap
	bySeq      map[core.Address]map[uint64]*entry
}

func newPartition() *partition {
	return &partition{bySeq: make(map[core.Address]map[uint64]*entry)}
}

func (p *partition) insert(e *entry) {
	heap.Push(&p.byPriority, e)
	m := p.bySeq[e.signer]
	if m == nil {
		m = make(map[uint64]*entry)
		p.bySeq[e.signer] = m
	}
	m[e.tx.Unsigned.Seq] = e
}

func (p *partition) get(signer core.Address, seq uint64) (*entry, bool) {
	m := p.bySeq[signer]
	if m == nil {
		return nil, false
	}
	e, ok := m[seq]
	return e, ok
}

func (p *partition) remove(signer core.Address, seq uint64) (*entry, bool) {
	m := p.bySeq[signer]
	if m == nil {
		return nil, false
	}
	e, ok := m[seq]
	if !ok {
		return nil, false
	}
	delete(m, seq)
	if len(m) == 0 {
		delete(p.bySeq, signer)
	}
	if e.index >= 0 && e.index < len(p.byPriority) && p.byPriority[e.index] == e {
		heap.Remove(&p.byPriority, e.index)
	}
	return e, true
}

func (p *partition) count() int { return len(p.byPriority) }

func (p *partition) entries() []*entry {
	out := make([]*entry, len(p.byPriority))
	copy(out, p.byPriority)
	return out
}

// ordered returns a priority-ordered copy without disturbing the live
// heap (used by the top-transactions query).
func (p *partition) ordered() []*entry {
	cp := make(entryHeap, len(p.byPriority))
	copy(cp, p.byPriority)
	out := make([]*entry, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*entry))
	}
	return out
}

// Pool is the pending-transaction pool (§4.3).
type Pool struct {
	mu sync.RWMutex

	cfg       Config
	networkID core.NetworkID
	accounts  AccountReader
	verifier  EngineVerifier
	timelock  TimelockFunc
	log       *logrus.Logger

	nextInsertionID uint64

	current *partition
	future  *partition
	byHash  map[core.Hash]*entry

	lastSeq map[core.Address]uint64 // signer -> highest seq currently queued

	banned map[core.Address]struct{}
	immune map[core.Address]struct{}

	local map[core.Hash]struct{}
	audit []AuditEvent
}

// New constructs an empty pool.
func New(cfg Config, networkID core.NetworkID, accounts AccountReader, verifier EngineVerifier, timelock TimelockFunc) *Pool {
	if cfg.FeeBumpShift == 0 {
		cfg.FeeBumpShift = 3 // 12.5%, matching the original's FEE_BUMP_SHIFT default
	}
	return &Pool{
		cfg:       cfg,
		networkID: networkID,
		accounts:  accounts,
		verifier:  verifier,
		timelock:  timelock,
		log:       logrus.StandardLogger(),
		current:   newPartition(),
		future:    newPartition(),
		byHash:    make(map[core.Hash]*entry),
		lastSeq:   make(map[core.Address]uint64),
		banned:    make(map[core.Address]struct{}),
		immune:    make(map[core.Address]struct{}),
		local:     make(map[core.Hash]struct{}),
	}
}

// Status summarizes queue occupancy.
type Status struct {
	Current int
	Future  int
}

// Status returns the current pool occupancy.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{Current: p.current.count(), Future: p.future.count()}
}

// CountCurrent returns the number of entries ready for immediate
// inclusion (§9 Open Question: two distinct "future included" queries
// are both preserved).
func (p *Pool) CountCurrent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.count()
}

// CountCurrentAndFuture returns the total number of queued entries,
// current and future.
func (p *Pool) CountCurrentAndFuture() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.count() + p.future.count()
}

// Ban adds addr to the malicious-users set; its transactions are
// ignored on future admission until Release is called.
func (p *Pool) Ban(addr core.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.immune[addr]; ok {
		return
	}
	p.banned[addr] = struct{}{}
}

// Release removes addr from the malicious-users set.
func (p *Pool) Release(addr core.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.banned, addr)
}

// Immunize adds addr to the immune-users set: it is never banned
// regardless of outcome.
func (p *Pool) Immunize(addr core.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.immune[addr] = struct{}{}
	delete(p.banned, addr)
}

func (p *Pool) isBanned(addr core.Address) bool {
	if _, ok := p.immune[addr]; ok {
		return false
	}
	_, ok := p.banned[addr]
	return ok
}

// Add runs the §4.3 admission algorithm for a single transaction.
func (p *Pool) Add(tx *core.SignedTransaction, origin Origin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(tx, origin)
}

func (p *Pool) addLocked(tx *core.SignedTransaction, origin Origin) error {
	signer, err := tx.Signer()
	if err != nil {
		return core.ErrSyntax("recover signer: %v", err)
	}

	if origin != OriginLocal && p.isBanned(signer) {
		p.recordAudit(tx.Hash(), AuditDropped, "signer banned")
		return nil // "drop silently"
	}

	hash := tx.Hash()
	if _, already := p.byHash[hash]; already {
		return core.ErrAlreadyImported
	}

	if err := core.ValidateTransaction(tx, p.networkID); err != nil {
		p.onAdmissionFailure(signer, origin, err)
		return err
	}
	if p.verifier != nil {
		if err := p.verifier.VerifyTransaction(tx); err != nil {
			p.onAdmissionFailure(signer, origin, err)
			return err
		}
	}

	account, err := p.accounts.BestAccount(signer)
	if err != nil {
		return core.ErrDatabase("read account %s: %v", signer, err)
	}

	seq := tx.Unsigned.Seq
	if seq < account.Seq {
		p.recordAudit(hash, AuditRejected, "seq below account seq")
		return core.ErrHistory("seq %d below account seq %d", seq, account.Seq)
	}

	if existing, ok := p.current.get(signer, seq); ok {
		if !p.replaces(existing, tx) {
			return core.ErrTooCheapReplace
		}
		p.dropEntry(p.current, existing, AuditReplaced, "replaced by higher fee")
	} else if existing, ok := p.future.get(signer, seq); ok {
		if !p.replaces(existing, tx) {
			return core.ErrTooCheapReplace
		}
		p.dropEntry(p.future, existing, AuditReplaced, "replaced by higher fee")
	}

	var minBlock, minTime uint64
	if p.timelock != nil {
		minBlock, minTime = p.timelock(tx)
	}

	e := &entry{
		tx:          tx,
		signer:      signer,
		hash:        hash,
		origin:      origin,
		fee:         tx.Unsigned.Fee,
		insertionID: p.nextInsertionID,
		memUsage:    estimateMemUsage(tx),
		insertedAt:  time.Now(),
		minBlock:    minBlock,
		minTime:     minTime,
		index:       -1,
	}
	p.nextInsertionID++

	if origin == OriginLocal {
		p.local[hash] = struct{}{}
	}

	p.insert(e, account.Seq)
	p.byHash[hash] = e
	if seq >= p.lastSeq[signer] {
		p.lastSeq[signer] = seq
	}

	p.recordAudit(hash, AuditAccepted, origin.String())
	p.enforceLimits()
	return nil
}

// replaces implements the fee-bump rule: new_fee > old_fee + old_fee>>shift.
func (p *Pool) replaces(existing *entry, incoming *core.SignedTransaction) bool {
	threshold := existing.fee + (existing.fee >> p.cfg.FeeBumpShift)
	return incoming.Unsigned.Fee > threshold
}

// insert places e into current if its seq continues an unbroken chain
// from the account's on-chain seq (accounting for anything already
// queued in current), or future otherwise; then promotes any future
// entries the insertion connects.
func (p *Pool) insert(e *entry, baseSeq uint64) {
	seq := e.tx.Unsigned.Seq
	if seq == baseSeq || p.chainConnects(e.signer, baseSeq, seq) {
		e.seqHeight = seq - baseSeq
		p.current.insert(e)
		p.promoteFuture(e.signer, baseSeq)
		return
	}
	e.seqHeight = seq - baseSeq
	p.future.insert(e)
}

// chainConnects reports whether current already holds every seq in
// [baseSeq, seq) for signer, so seq can itself join current.
func (p *Pool) chainConnects(signer core.Address, baseSeq, seq uint64) bool {
	if seq <= baseSeq {
		return seq == baseSeq
	}
	for s := baseSeq; s < seq; s++ {
		if _, ok := p.current.get(signer, s); !ok {
			return false
		}
	}
	return true
}

// promoteFuture moves a contiguous run of future entries for signer
// into current, starting from baseSeq's successor chain.
func (p *Pool) promoteFuture(signer core.Address, baseSeq uint64) {
	next := baseSeq
	for {
		// advance next past whatever is already contiguous in current
		for {
			if _, ok := p.current.get(signer, next); ok {
				next++
				continue
			}
			break
		}
		fe, ok := p.future.remove(signer, next)
		if !ok {
			return
		}
		fe.seqHeight = next - baseSeq
		p.current.insert(fe)
		next++
	}
}

func (p *Pool) onAdmissionFailure(signer core.Address, origin Origin, err error) {
	p.recordAudit(core.Hash{}, AuditRejected, err.Error())
	if origin == OriginLocal {
		return
	}
	if core.IsKind(err, core.KindSyntax) || core.IsKind(err, core.KindConsensus) {
		p.banned[signer] = struct{}{}
		if _, immune := p.immune[signer]; immune {
			delete(p.banned, signer)
		}
	}
}

func (p *Pool) recordAudit(hash core.Hash, status AuditStatus, reason string) {
	p.audit = append(p.audit, AuditEvent{Hash: hash, Status: status, Reason: reason})
	if len(p.audit) > 4096 {
		p.audit = p.audit[len(p.audit)-4096:]
	}
}

// Audit returns a copy of the local-transaction audit trail.
func (p *Pool) Audit() []AuditEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]AuditEvent, len(p.audit))
	copy(out, p.audit)
	return out
}

func (p *Pool) dropEntry(part *partition, e *entry, status AuditStatus, reason string) {
	part.remove(e.signer, e.tx.Unsigned.Seq)
	delete(p.byHash, e.hash)
	delete(p.local, e.hash)
	p.recordAudit(e.hash, status, reason)
	if p.lastSeq[e.signer] == e.tx.Unsigned.Seq {
		p.recomputeLastSeq(e.signer)
	}
}

// recomputeLastSeq rolls back the signer's last-known-good seq after an
// entry is dropped out from under it (§4.3 Eviction: "the signer's
// last-known-good seq is rolled back if needed").
func (p *Pool) recomputeLastSeq(signer core.Address) {
	var highest uint64
	found := false
	for seq := range p.current.bySeq[signer] {
		if !found || seq > highest {
			highest, found = seq, true
		}
	}
	for seq := range p.future.bySeq[signer] {
		if !found || seq > highest {
			highest, found = seq, true
		}
	}
	if found {
		p.lastSeq[signer] = highest
	} else {
		delete(p.lastSeq, signer)
	}
}

// enforceLimits evicts the lowest-priority non-local/non-retracted
// entries until both partitions respect Config.MaxCount and
// Config.MaxMemoryBytes (§4.3 Eviction).
func (p *Pool) enforceLimits() {
	if p.cfg.MaxCount <= 0 && p.cfg.MaxMemoryBytes <= 0 {
		return
	}
	for p.overLimit() {
		victim := p.worstEvictable()
		if victim == nil {
			return
		}
		part := p.current
		if _, ok := p.future.get(victim.signer, victim.tx.Unsigned.Seq); ok {
			part = p.future
		}
		p.dropEntry(part, victim, AuditDropped, "evicted: pool over limit")
	}
}

func (p *Pool) overLimit() bool {
	total := p.current.count() + p.future.count()
	if p.cfg.MaxCount > 0 && total > p.cfg.MaxCount {
		return true
	}
	if p.cfg.MaxMemoryBytes > 0 && p.totalMemUsage() > p.cfg.MaxMemoryBytes {
		return true
	}
	return false
}

func (p *Pool) totalMemUsage() int {
	total := 0
	for _, e := range p.byHash {
		total += e.memUsage
	}
	return total
}

// worstEvictable finds the lowest-priority entry that is neither local
// nor from a retracted block (§4.3: "preserves local and
// retracted-block origins over external").
func (p *Pool) worstEvictable() *entry {
	var worst *entry
	consider := func(e *entry) {
		if e.origin == OriginLocal || e.origin == OriginRetractedBlock {
			return
		}
		if worst == nil || worst.less(e) {
			worst = e
		}
	}
	for _, e := range p.future.entries() {
		consider(e)
	}
	for _, e := range p.current.entries() {
		consider(e)
	}
	return worst
}

func estimateMemUsage(tx *core.SignedTransaction) int {
	encoded, err := core.EncodeSignedTransactionRLP(tx)
	if err != nil {
		return 128
	}
	return len(encoded)
}
