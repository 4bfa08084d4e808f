package stake

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
	"codechain-core/core/consensus"
	"codechain-core/core/state"
)

// --- helpers ---

func makeKey(t *testing.T) *ecdsa.PrivateKey {
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return k
}

func addrOf(priv *ecdsa.PrivateKey) core.Address {
	return core.Address(crypto.PubkeyToAddress(priv.PublicKey))
}

func sign(t *testing.T, priv *ecdsa.PrivateKey, digest core.Hash) core.Signature {
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var out core.Signature
	copy(out[:], sig)
	return out
}

func newTestTop(t *testing.T) *state.TopLevelState {
	e := state.NewEngine(core.NewTrieMem(), core.NewTrieMem(), state.NewGlobalCache(64, 4096), state.NewHandlerRegistry(), nil)
	top, err := e.OpenTopLevel(core.Hash{}, core.Hash{})
	if err != nil {
		t.Fatalf("open top level: %v", err)
	}
	return top
}

func mustApplyCtx(top *state.TopLevelState) *state.ApplyContext {
	return &state.ApplyContext{Top: top}
}

type fakeChain struct {
	headers map[uint64]*core.Header
}

func (f *fakeChain) HeaderByNumber(n uint64) (*core.Header, bool) {
	h, ok := f.headers[n]
	return h, ok
}

// --- sub-action encode/decode round trips ---

func TestEncodeDecodeSubAction_TransferCCS(t *testing.T) {
	addr := makeKey(t)
	want := TransferCCS{Address: addrOf(addr), Quantity: 42}
	enc, err := EncodeSubAction(TagTransferCCS, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tag, decoded, err := DecodeSubAction(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != TagTransferCCS {
		t.Fatalf("tag = %#x, want %#x", tag, TagTransferCCS)
	}
	got, ok := decoded.(TransferCCS)
	if !ok || got != want {
		t.Fatalf("decoded = %+v, want %+v", decoded, want)
	}
}

func TestEncodeDecodeSubAction_ReportDoubleVote(t *testing.T) {
	m1 := consensus.VoteMessage{Height: 5, Round: 1, SignerIndex: 2, BlockHash: core.Hash{0x01}}
	m2 := consensus.VoteMessage{Height: 5, Round: 1, SignerIndex: 2, BlockHash: core.Hash{0x02}}

	enc, err := EncodeReportDoubleVote(ReportDoubleVote{Message1: m1, Message2: m2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tag, decoded, err := DecodeSubAction(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != TagReportDoubleVote {
		t.Fatalf("tag = %#x, want %#x", tag, TagReportDoubleVote)
	}
	rdv, ok := decoded.(ReportDoubleVote)
	if !ok {
		t.Fatalf("decoded type = %T", decoded)
	}
	if rdv.Message1.SignerIndex != 2 || rdv.Message2.BlockHash != (core.Hash{0x02}) {
		t.Fatalf("round-trip mismatch: %+v", rdv)
	}
}

func TestEncodeDecodeSubAction_ChangeParams(t *testing.T) {
	want := ChangeParams{
		MetadataSeq: 1,
		Params:      Params{NetworkID: core.NetworkID{'t', 'c'}, MaxCandidateMetadataSize: 2048, MinSelfNominationDeposit: 5000, MaxNumOfValidators: 21},
		Signatures:  []core.Signature{{0x01}},
	}
	enc, err := EncodeChangeParams(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tag, decoded, err := DecodeSubAction(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != TagChangeParams {
		t.Fatalf("tag = %#x, want %#x", tag, TagChangeParams)
	}
	got := decoded.(ChangeParams)
	if got.MetadataSeq != want.MetadataSeq || got.Params != want.Params || len(got.Signatures) != 1 {
		t.Fatalf("decoded = %+v, want %+v", got, want)
	}
}

func TestDecodeSubAction_UnknownTagFails(t *testing.T) {
	enc, err := EncodeSubAction(0x77, TransferCCS{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := DecodeSubAction(enc); err == nil {
		t.Fatalf("expected an error for an unknown sub-action tag")
	}
}

// --- TransferCCS / DelegateCCS / Revoke / Redelegate ---

func TestApply_TransferCCS(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	bob := makeKey(t)
	if err := putAccount(top, addrOf(alice), Account{Balance: 1000}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	payload, _ := EncodeSubAction(TagTransferCCS, TransferCCS{Address: addrOf(bob), Quantity: 400})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	aliceAcc, _ := getAccount(top, addrOf(alice))
	bobAcc, _ := getAccount(top, addrOf(bob))
	if aliceAcc.Balance != 600 || bobAcc.Balance != 400 {
		t.Fatalf("balances = alice %d bob %d", aliceAcc.Balance, bobAcc.Balance)
	}
}

func TestApply_TransferCCS_InsufficientBalance(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	bob := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 10})

	payload, _ := EncodeSubAction(TagTransferCCS, TransferCCS{Address: addrOf(bob), Quantity: 400})
	err := h.Apply(mustApplyCtx(top), addrOf(alice), payload)
	if err == nil || !core.IsKind(err, core.KindRuntime) {
		t.Fatalf("expected a runtime-kind error, got %v", err)
	}
}

func TestApply_DelegateThenRevoke(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	validator := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 1000})

	delegate, _ := EncodeSubAction(TagDelegateCCS, DelegateCCS{Address: addrOf(validator), Quantity: 300})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	acc, _ := getAccount(top, addrOf(alice))
	if acc.Balance != 700 {
		t.Fatalf("balance after delegate = %d, want 700", acc.Balance)
	}
	if q, _ := acc.delegatedTo(addrOf(validator)); q != 300 {
		t.Fatalf("delegated = %d, want 300", q)
	}

	revoke, _ := EncodeSubAction(TagRevoke, Revoke{Address: addrOf(validator), Quantity: 300})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), revoke); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	acc, _ = getAccount(top, addrOf(alice))
	if acc.Balance != 1000 {
		t.Fatalf("balance after revoke = %d, want 1000", acc.Balance)
	}
	if q, idx := acc.delegatedTo(addrOf(validator)); q != 0 || idx != -1 {
		t.Fatalf("expected delegation cleared, got %d at %d", q, idx)
	}
}

func TestApply_Revoke_WithoutDelegationFails(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	validator := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 1000})

	revoke, _ := EncodeSubAction(TagRevoke, Revoke{Address: addrOf(validator), Quantity: 1})
	err := h.Apply(mustApplyCtx(top), addrOf(alice), revoke)
	if err == nil || !core.IsKind(err, core.KindRuntime) {
		t.Fatalf("expected a runtime-kind error, got %v", err)
	}
}

func TestApply_Redelegate(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	v1 := makeKey(t)
	v2 := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 1000})
	delegate, _ := EncodeSubAction(TagDelegateCCS, DelegateCCS{Address: addrOf(v1), Quantity: 500})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	redelegate, _ := EncodeSubAction(TagRedelegate, Redelegate{PrevDelegatee: addrOf(v1), NextDelegatee: addrOf(v2), Quantity: 500})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), redelegate); err != nil {
		t.Fatalf("redelegate: %v", err)
	}

	acc, _ := getAccount(top, addrOf(alice))
	if q, _ := acc.delegatedTo(addrOf(v1)); q != 0 {
		t.Fatalf("expected v1 delegation cleared, got %d", q)
	}
	if q, _ := acc.delegatedTo(addrOf(v2)); q != 500 {
		t.Fatalf("expected v2 delegation 500, got %d", q)
	}
}

// --- SelfNominate ---

func TestApply_SelfNominate(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 50_000})

	nominate, _ := EncodeSubAction(TagSelfNominate, SelfNominate{Deposit: 15_000, Metadata: []byte("alice's validator node")})
	if err := h.Apply(mustApplyCtx(top), addrOf(alice), nominate); err != nil {
		t.Fatalf("apply: %v", err)
	}

	acc, _ := getAccount(top, addrOf(alice))
	if acc.Balance != 35_000 {
		t.Fatalf("balance after deposit = %d, want 35000", acc.Balance)
	}
	cand, found, err := getCandidate(top, addrOf(alice))
	if err != nil || !found {
		t.Fatalf("expected candidate record, err=%v found=%v", err, found)
	}
	if cand.Deposit != 15_000 || cand.MetadataSeq != 1 {
		t.Fatalf("candidate = %+v", cand)
	}
}

func TestApply_SelfNominate_BelowMinimumDepositFails(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 50_000})

	nominate, _ := EncodeSubAction(TagSelfNominate, SelfNominate{Deposit: 1, Metadata: nil})
	err := h.Apply(mustApplyCtx(top), addrOf(alice), nominate)
	if err == nil || !core.IsKind(err, core.KindRuntime) {
		t.Fatalf("expected a runtime-kind error, got %v", err)
	}
}

func TestApply_SelfNominate_OversizedMetadataFails(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 50_000})

	big := make([]byte, DefaultParams().MaxCandidateMetadataSize+1)
	nominate, _ := EncodeSubAction(TagSelfNominate, SelfNominate{Deposit: 15_000, Metadata: big})
	err := h.Apply(mustApplyCtx(top), addrOf(alice), nominate)
	if err == nil || !core.IsKind(err, core.KindSyntax) {
		t.Fatalf("expected a syntax-kind error, got %v", err)
	}
}

func TestApply_SelfNominate_BannedFails(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	alice := makeKey(t)
	putAccount(top, addrOf(alice), Account{Balance: 50_000})
	ban(top, addrOf(alice))

	nominate, _ := EncodeSubAction(TagSelfNominate, SelfNominate{Deposit: 15_000})
	err := h.Apply(mustApplyCtx(top), addrOf(alice), nominate)
	if err == nil || !core.IsKind(err, core.KindRuntime) {
		t.Fatalf("expected a runtime-kind error, got %v", err)
	}
}

// --- ReportDoubleVote ---

func votePair(t *testing.T, priv *ecdsa.PrivateKey, index int, parentHash core.Hash) (consensus.VoteMessage, consensus.VoteMessage) {
	m1 := consensus.VoteMessage{Height: 10, Round: 3, SignerIndex: index, BlockHash: core.Hash{0x0a}}
	m2 := consensus.VoteMessage{Height: 10, Round: 3, SignerIndex: index, BlockHash: core.Hash{0x0b}}
	sign1 := func(m consensus.VoteMessage) core.Signature {
		var buf []byte
		buf = append(buf, beUint64(m.Height)...)
		buf = append(buf, beUint64(m.Round)...)
		buf = append(buf, beUint64(uint64(m.SignerIndex))...)
		buf = append(buf, m.BlockHash.Bytes()...)
		digest := core.Blake256(buf)
		return sign(t, priv, digest)
	}
	m1.Signature = sign1(m1)
	m2.Signature = sign1(m2)
	return m1, m2
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func TestApply_ReportDoubleVote_SlashesOffender(t *testing.T) {
	top := newTestTop(t)
	offender := makeKey(t)
	parentHeader := &core.Header{Number: 9}
	parentHash := parentHeader.Hash()

	vs := consensus.NewValidatorSet()
	vs.Set(parentHash, []consensus.Validator{{Address: addrOf(offender)}})
	chain := &fakeChain{headers: map[uint64]*core.Header{9: parentHeader}}
	h := New(vs, chain)

	putCandidate(top, addrOf(offender), Candidate{Deposit: 20_000})

	m1, m2 := votePair(t, offender, 0, parentHash)
	payload, err := EncodeReportDoubleVote(ReportDoubleVote{Message1: m1, Message2: m2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	reporter := makeKey(t)
	if err := h.Apply(mustApplyCtx(top), addrOf(reporter), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !isBanned(top, addrOf(offender)) {
		t.Fatalf("expected offender banned")
	}
	cand, found, _ := getCandidate(top, addrOf(offender))
	if !found || cand.Deposit != 0 {
		t.Fatalf("expected candidate deposit forfeited, got %+v", cand)
	}
}

func TestApply_ReportDoubleVote_InvalidEvidenceRejected(t *testing.T) {
	top := newTestTop(t)
	offender := makeKey(t)
	parentHeader := &core.Header{Number: 9}
	parentHash := parentHeader.Hash()

	vs := consensus.NewValidatorSet()
	vs.Set(parentHash, []consensus.Validator{{Address: addrOf(offender)}})
	chain := &fakeChain{headers: map[uint64]*core.Header{9: parentHeader}}
	h := New(vs, chain)

	m1, m2 := votePair(t, offender, 0, parentHash)
	m2.Round = 99 // breaks the "different voting rounds" check
	payload, err := EncodeReportDoubleVote(ReportDoubleVote{Message1: m1, Message2: m2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	err = h.Apply(mustApplyCtx(top), addrOf(offender), payload)
	if err == nil || !core.IsKind(err, core.KindConsensus) {
		t.Fatalf("expected a consensus-kind error, got %v", err)
	}
	if isBanned(top, addrOf(offender)) {
		t.Fatalf("expected offender not banned on invalid evidence")
	}
}

// --- ChangeParams ---

func TestApply_ChangeParams(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	signer := makeKey(t)

	newParams := Params{MaxCandidateMetadataSize: 4096, MinSelfNominationDeposit: 1000, MaxNumOfValidators: 50}
	unsigned := ChangeParams{MetadataSeq: 1, Params: newParams}
	preimage, err := unsigned.signingPayload()
	if err != nil {
		t.Fatalf("signing payload: %v", err)
	}
	digest := core.Blake256(preimage)
	action := ChangeParams{MetadataSeq: 1, Params: newParams, Signatures: []core.Signature{sign(t, signer, digest)}}

	payload, err := EncodeChangeParams(action)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := h.Apply(mustApplyCtx(top), addrOf(signer), payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := getParams(top)
	if err != nil {
		t.Fatalf("get params: %v", err)
	}
	if got.MaxCandidateMetadataSize != 4096 || got.MaxNumOfValidators != 50 {
		t.Fatalf("params not updated: %+v", got)
	}
}

func TestApply_ChangeParams_NetworkMismatchRejected(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	signer := makeKey(t)
	putParams(top, Params{NetworkID: core.NetworkID{'m', 'n'}})

	newParams := Params{NetworkID: core.NetworkID{'t', 'c'}}
	action := ChangeParams{MetadataSeq: 1, Params: newParams, Signatures: []core.Signature{{0x01}}}
	payload, _ := EncodeChangeParams(action)

	err := h.Apply(mustApplyCtx(top), addrOf(signer), payload)
	if err == nil || !core.IsKind(err, core.KindSyntax) {
		t.Fatalf("expected a syntax-kind error, got %v", err)
	}
}

func TestApply_ChangeParams_NoSignaturesRejected(t *testing.T) {
	top := newTestTop(t)
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	signer := makeKey(t)

	action := ChangeParams{MetadataSeq: 1, Params: Params{}, Signatures: nil}
	payload, _ := EncodeChangeParams(action)

	err := h.Apply(mustApplyCtx(top), addrOf(signer), payload)
	if err == nil || !core.IsKind(err, core.KindSyntax) {
		t.Fatalf("expected a syntax-kind error, got %v", err)
	}
}

// --- handler identity ---

func TestHandlerID(t *testing.T) {
	h := New(consensus.NewValidatorSet(), &fakeChain{})
	if h.HandlerID() != HandlerID {
		t.Fatalf("HandlerID() = %d, want %d", h.HandlerID(), HandlerID)
	}
}
