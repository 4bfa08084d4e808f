package miner

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
	"codechain-core/core/chain"
	"codechain-core/core/mempool"
	"codechain-core/core/state"
)

// --- helpers ---

var testNetworkID = core.NetworkID{'t', 'c'}

func signedPay(t *testing.T, seq, fee uint64) *core.SignedTransaction {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	unsigned := core.UnsignedTransaction{
		Seq:       seq,
		Fee:       fee,
		NetworkID: testNetworkID,
		Action:    core.Pay{Receiver: core.Address{0x01}, Quantity: 1},
	}
	tx, err := core.SignTransaction(unsigned, crypto.FromECDSA(priv))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

type fakeMempool struct {
	top     []*core.SignedTransaction
	banned  []core.Address
	removed []core.Hash
}

func (f *fakeMempool) TopTransactions(maxBodyBytes int, blockNumber, blockTimestamp uint64) []*core.SignedTransaction {
	return f.top
}
func (f *fakeMempool) Ban(addr core.Address) { f.banned = append(f.banned, addr) }
func (f *fakeMempool) Remove(hash core.Hash, status mempool.AuditStatus) {
	f.removed = append(f.removed, hash)
}
func (f *fakeMempool) CountCurrent() int { return len(f.top) }

type fakeChain struct {
	mu       sync.Mutex
	header   *core.Header
	hash     core.Hash
	imported []*core.Block
}

func (f *fakeChain) Best() (*core.Header, core.Hash) { return f.header, f.hash }
func (f *fakeChain) ImportBlock(block *core.Block) (chain.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append(f.imported, block)
	return chain.ImportResult{IsBest: true}, nil
}
func (f *fakeChain) importedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.imported)
}

type fakeEngine struct {
	root     core.Hash
	included []*core.SignedTransaction
	invoices []state.Invoice
	rejected []state.RejectedEntry
	err      error
}

func (f *fakeEngine) BuildCandidate(parentHash, parentStateRoot core.Hash, blockNumber uint64, candidates []*core.SignedTransaction) (core.Hash, []*core.SignedTransaction, []state.Invoice, []state.RejectedEntry, map[state.CacheEntryKey][]byte, error) {
	if f.err != nil {
		return core.Hash{}, nil, nil, nil, nil, f.err
	}
	included := f.included
	if included == nil {
		included = candidates
	}
	return f.root, included, f.invoices, f.rejected, nil, nil
}

type fakeSeal struct {
	internal bool
	seal     [][]byte
	err      error
}

func (f *fakeSeal) SealsInternally() bool { return f.internal }
func (f *fakeSeal) GenerateSeal(header, parent *core.Header) ([][]byte, error) {
	return f.seal, f.err
}
func (f *fakeSeal) IsProposal(header *core.Header) bool { return false }

func newTestMiner(t *testing.T, mp *fakeMempool, ch *fakeChain, eng *fakeEngine, seal *fakeSeal, clk clock.Clock) *Miner {
	t.Helper()
	cfg := Config{Author: core.Address{0xaa}, MaxBodySize: 1 << 20}
	return New(cfg, ch, mp, eng, seal, clk)
}

// --- tests ---

func TestBuildCandidate_NoGenesisYieldsNilBlock(t *testing.T) {
	mp := &fakeMempool{}
	ch := &fakeChain{header: nil}
	eng := &fakeEngine{}
	seal := &fakeSeal{internal: true}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	block, parent, _, _, err := m.BuildCandidate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block != nil || parent != nil {
		t.Fatalf("expected nil block/parent with no imported genesis")
	}
}

func TestBuildCandidate_IncludesCandidatesAndRoot(t *testing.T) {
	tx := signedPay(t, 0, 10)
	mp := &fakeMempool{top: []*core.SignedTransaction{tx}}
	parentHeader := &core.Header{Number: 5, StateRoot: core.Hash{0x01}}
	ch := &fakeChain{header: parentHeader, hash: core.Hash{0x02}}
	root := core.Hash{0x09}
	eng := &fakeEngine{root: root, included: []*core.SignedTransaction{tx}}
	seal := &fakeSeal{internal: true}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	block, parent, _, rejected, err := m.BuildCandidate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parent != parentHeader {
		t.Fatalf("expected parent header to be the best header")
	}
	if block.Header.Number != 6 {
		t.Fatalf("expected candidate number 6, got %d", block.Header.Number)
	}
	if block.Header.StateRoot != root {
		t.Fatalf("expected candidate state root to come from the engine")
	}
	if len(block.Body.Transactions) != 1 {
		t.Fatalf("expected 1 included transaction, got %d", len(block.Body.Transactions))
	}
	if len(rejected) != 0 {
		t.Fatalf("expected no rejections, got %d", len(rejected))
	}
}

func TestReseal_SkipsEmptyBlockWithoutAllowEmpty(t *testing.T) {
	mp := &fakeMempool{}
	ch := &fakeChain{header: &core.Header{Number: 1}, hash: core.Hash{0x01}}
	eng := &fakeEngine{}
	seal := &fakeSeal{internal: false}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	if err := m.Reseal(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.imported) != 0 {
		t.Fatalf("expected no import for an empty candidate without allowEmpty")
	}
}

func TestReseal_SealsAndImportsWhenEngineSealsInternally(t *testing.T) {
	tx := signedPay(t, 0, 10)
	mp := &fakeMempool{top: []*core.SignedTransaction{tx}}
	ch := &fakeChain{header: &core.Header{Number: 1}, hash: core.Hash{0x01}}
	eng := &fakeEngine{included: []*core.SignedTransaction{tx}}
	seal := &fakeSeal{internal: true, seal: [][]byte{{0x01, 0x02}}}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	if err := m.Reseal(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.imported) != 1 {
		t.Fatalf("expected 1 imported block, got %d", len(ch.imported))
	}
	got := ch.imported[0].Header.Seal
	if len(got) != 1 || string(got[0]) != "\x01\x02" {
		t.Fatalf("expected seal copied onto header, got %v", got)
	}
}

func TestReseal_EngineDeclinesSealAbortsCandidate(t *testing.T) {
	mp := &fakeMempool{}
	ch := &fakeChain{header: &core.Header{Number: 1}, hash: core.Hash{0x01}}
	eng := &fakeEngine{}
	seal := &fakeSeal{internal: true, seal: nil}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	if err := m.Reseal(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.imported) != 0 {
		t.Fatalf("expected no import when the engine declines to seal")
	}
}

func TestEvictRejected_BansOnSyntaxFailureOnly(t *testing.T) {
	txSyntax := signedPay(t, 0, 10)
	txRuntime := signedPay(t, 0, 10)
	signerSyntax, _ := txSyntax.Signer()
	signerRuntime, _ := txRuntime.Signer()

	mp := &fakeMempool{}
	ch := &fakeChain{}
	eng := &fakeEngine{}
	seal := &fakeSeal{}
	clk := clock.NewMock()
	m := newTestMiner(t, mp, ch, eng, seal, clk)

	rejected := []state.RejectedEntry{
		{Tx: txSyntax, Err: core.ErrSyntax("bad outpoint")},
		{Tx: txRuntime, Err: core.ErrRuntime("asset supply overflow")},
	}
	m.evictRejected(rejected)

	if len(mp.removed) != 2 {
		t.Fatalf("expected both rejected entries dropped from the pool, got %d", len(mp.removed))
	}
	bannedSyntax, bannedRuntime := false, false
	for _, a := range mp.banned {
		if a == signerSyntax {
			bannedSyntax = true
		}
		if a == signerRuntime {
			bannedRuntime = true
		}
	}
	if !bannedSyntax {
		t.Fatalf("expected syntax-failure signer banned")
	}
	if bannedRuntime {
		t.Fatalf("runtime-failure signer must not be banned")
	}
}

func TestRunResealLoop_MinTimerTriggersResealWhenPoolNonEmpty(t *testing.T) {
	tx := signedPay(t, 0, 10)
	mp := &fakeMempool{top: []*core.SignedTransaction{tx}}
	ch := &fakeChain{header: &core.Header{Number: 1}, hash: core.Hash{0x01}}
	eng := &fakeEngine{included: []*core.SignedTransaction{tx}}
	seal := &fakeSeal{internal: true, seal: [][]byte{{0x09}}}
	clk := clock.NewMock()
	cfg := Config{Author: core.Address{0xaa}, MaxBodySize: 1 << 20, MinResealInterval: time.Second, MaxResealInterval: time.Minute}
	m := New(cfg, ch, mp, eng, seal, clk)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.RunResealLoop(stop)
		close(done)
	}()

	clk.Add(time.Second)
	deadline := time.After(2 * time.Second)
	for ch.importedCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for min-timer reseal")
		case <-time.After(time.Millisecond):
		}
	}
	close(stop)
	<-done

	if n := ch.importedCount(); n != 1 {
		t.Fatalf("expected exactly 1 imported block from the min timer, got %d", n)
	}
}
