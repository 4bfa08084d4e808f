package mempool

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
)

// --- helpers ---

var testNetworkID = core.NetworkID{'t', 'c'}

func makeKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return k
}

func addrOf(priv *ecdsa.PrivateKey) core.Address {
	return core.Address(crypto.PubkeyToAddress(priv.PublicKey))
}

func payTx(t *testing.T, priv *ecdsa.PrivateKey, seq, fee uint64) *core.SignedTransaction {
	t.Helper()
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

type fakeAccounts struct {
	accounts map[core.Address]core.Account
}

func (f *fakeAccounts) BestAccount(addr core.Address) (core.Account, error) {
	if acc, ok := f.accounts[addr]; ok {
		return acc, nil
	}
	return core.Account{}, nil
}

func newTestPool(accounts *fakeAccounts) *Pool {
	cfg := Config{MaxCount: 100, FeeBumpShift: 3}
	return New(cfg, testNetworkID, accounts, nil, nil)
}

// --- tests ---

func TestAdd_CurrentWhenSeqMatches(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)

	tx := payTx(t, key, 0, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("add: %v", err)
	}
	if p.CountCurrent() != 1 {
		t.Fatalf("expected 1 current entry, got %d", p.CountCurrent())
	}
}

func TestAdd_FutureWhenSeqGapped(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)

	tx := payTx(t, key, 3, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("add: %v", err)
	}
	if p.CountCurrent() != 0 {
		t.Fatalf("expected 0 current entries, got %d", p.CountCurrent())
	}
	if p.CountCurrentAndFuture() != 1 {
		t.Fatalf("expected 1 total entry, got %d", p.CountCurrentAndFuture())
	}
}

func TestAdd_PromotesFutureOnGapFill(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)

	if err := p.Add(payTx(t, key, 1, 10), OriginExternal); err != nil {
		t.Fatalf("add seq 1: %v", err)
	}
	if p.CountCurrent() != 0 {
		t.Fatalf("seq 1 should still be future before seq 0 arrives")
	}

	if err := p.Add(payTx(t, key, 0, 10), OriginExternal); err != nil {
		t.Fatalf("add seq 0: %v", err)
	}
	if p.CountCurrent() != 2 {
		t.Fatalf("expected both entries promoted to current, got %d", p.CountCurrent())
	}
	if p.future.count() != 0 {
		t.Fatalf("expected future partition empty after promotion, got %d", p.future.count())
	}
}

func TestAdd_FeeBumpReplacement(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 10000}}}
	p := newTestPool(accounts)

	if err := p.Add(payTx(t, key, 0, 100), OriginExternal); err != nil {
		t.Fatalf("add original: %v", err)
	}

	// 100 + 100>>3 == 112; 110 must be rejected, 113 must replace.
	if err := p.Add(payTx(t, key, 0, 110), OriginExternal); err != core.ErrTooCheapReplace {
		t.Fatalf("expected ErrTooCheapReplace, got %v", err)
	}
	if err := p.Add(payTx(t, key, 0, 113), OriginExternal); err != nil {
		t.Fatalf("expected replacement to succeed, got %v", err)
	}
	if p.CountCurrent() != 1 {
		t.Fatalf("expected exactly one surviving entry, got %d", p.CountCurrent())
	}
}

func TestAdd_AlreadyImportedRejected(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)

	tx := payTx(t, key, 0, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.Add(tx, OriginExternal); err != core.ErrAlreadyImported {
		t.Fatalf("expected ErrAlreadyImported, got %v", err)
	}
}

func TestAdd_BannedSignerDroppedSilently(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)
	p.Ban(addr)

	tx := payTx(t, key, 0, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("expected silent drop (nil error), got %v", err)
	}
	if p.CountCurrentAndFuture() != 0 {
		t.Fatalf("banned signer's transaction must not be queued")
	}
}

func TestAdd_ImmuneSignerNeverBanned(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)
	p.Immunize(addr)
	p.Ban(addr)

	tx := payTx(t, key, 0, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("immune signer must not be dropped: %v", err)
	}
	if p.CountCurrent() != 1 {
		t.Fatalf("expected entry admitted despite ban attempt")
	}
}

func TestTopTransactions_RespectsBodySizeAndOrder(t *testing.T) {
	keyA := makeKey(t)
	keyB := makeKey(t)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{
		addrOf(keyA): {Seq: 0, Balance: 1000},
		addrOf(keyB): {Seq: 0, Balance: 1000},
	}}
	p := newTestPool(accounts)

	if err := p.Add(payTx(t, keyA, 0, 5), OriginExternal); err != nil {
		t.Fatalf("add A: %v", err)
	}
	if err := p.Add(payTx(t, keyB, 0, 50), OriginExternal); err != nil {
		t.Fatalf("add B: %v", err)
	}

	top := p.TopTransactions(0, 0, 0)
	if len(top) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(top))
	}
	signerFirst, err := top[0].Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signerFirst != addrOf(keyB) {
		t.Fatalf("expected higher-fee signer first")
	}
}

func TestRemove_DropsEntry(t *testing.T) {
	key := makeKey(t)
	addr := addrOf(key)
	accounts := &fakeAccounts{accounts: map[core.Address]core.Account{addr: {Seq: 0, Balance: 1000}}}
	p := newTestPool(accounts)

	tx := payTx(t, key, 0, 10)
	if err := p.Add(tx, OriginExternal); err != nil {
		t.Fatalf("add: %v", err)
	}
	p.Remove(tx.Hash(), AuditMined)
	if p.Contains(tx.Hash()) {
		t.Fatalf("expected entry removed")
	}
}
