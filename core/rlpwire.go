package core

// rlpwire.go implements the bit-exact wire encoding described in §6:
// actions are tagged unions whose first encoded list element is a 1-byte
// discriminant; transactions are [unsigned, signature]; unsigned
// transactions are [seq, fee, network_id, action].
//
// Each concrete action type is a plain struct (no interfaces), so its
// fields encode/decode automatically via go-ethereum/rlp's reflection-
// based struct support; this file only needs to manage the outer
// discriminant wrapper and the two envelope layers.

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// actionWire is the on-wire shape of every Action: a 1-byte tag followed
// by the action's own RLP-encoded field list, carried as an opaque
// string so decoding can dispatch on Tag before interpreting Payload.
type actionWire struct {
	Tag     uint8
	Payload []byte
}

// EncodeActionRLP encodes a into its tagged wire form.
func EncodeActionRLP(a Action) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(a)
	if err != nil {
		return nil, fmt.Errorf("encode action payload: %w", err)
	}
	return rlp.EncodeToBytes(actionWire{Tag: a.ActionTag(), Payload: payload})
}

// DecodeActionRLP decodes a tagged action from its wire form.
func DecodeActionRLP(data []byte) (Action, error) {
	var wire actionWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("decode action wire: %w", err)
	}
	decodeInto := func(v interface{}) error {
		return rlp.DecodeBytes(wire.Payload, v)
	}
	switch wire.Tag {
	case TagPay:
		var v Pay
		return v, decodeInto(&v)
	case TagSetRegularKey:
		var v SetRegularKey
		return v, decodeInto(&v)
	case TagCreateShard:
		var v CreateShard
		return v, decodeInto(&v)
	case TagSetShardOwners:
		var v SetShardOwners
		return v, decodeInto(&v)
	case TagSetShardUsers:
		var v SetShardUsers
		return v, decodeInto(&v)
	case TagWrapCCC:
		var v WrapCCC
		return v, decodeInto(&v)
	case TagStore:
		var v Store
		return v, decodeInto(&v)
	case TagRemove:
		var v Remove
		return v, decodeInto(&v)
	case TagUnwrapCCC:
		var v UnwrapCCC
		return v, decodeInto(&v)
	case TagMintAsset:
		var v MintAsset
		return v, decodeInto(&v)
	case TagTransferAsset:
		var v TransferAsset
		return v, decodeInto(&v)
	case TagChangeAssetScheme:
		var v ChangeAssetScheme
		return v, decodeInto(&v)
	case TagIncreaseAssetSupply:
		var v IncreaseAssetSupply
		return v, decodeInto(&v)
	case TagCustom:
		var v Custom
		return v, decodeInto(&v)
	default:
		return nil, ErrSyntax("unknown action tag 0x%02x", wire.Tag)
	}
}

// --- Unsigned / signed transaction envelopes --------------------------

type unsignedWire struct {
	Seq            uint64
	Fee            uint64
	NetworkID      [2]byte
	ActionPayload  []byte
}

// EncodeUnsignedTransactionRLP encodes the [seq, fee, network_id, action]
// pre-image that is signed over (§6).
func EncodeUnsignedTransactionRLP(u *UnsignedTransaction) ([]byte, error) {
	actionPayload, err := EncodeActionRLP(u.Action)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(unsignedWire{
		Seq:           u.Seq,
		Fee:           u.Fee,
		NetworkID:     u.NetworkID,
		ActionPayload: actionPayload,
	})
}

// DecodeUnsignedTransactionRLP is the inverse of EncodeUnsignedTransactionRLP.
func DecodeUnsignedTransactionRLP(data []byte) (*UnsignedTransaction, error) {
	var wire unsignedWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("decode unsigned tx: %w", err)
	}
	action, err := DecodeActionRLP(wire.ActionPayload)
	if err != nil {
		return nil, err
	}
	return &UnsignedTransaction{
		Seq:       wire.Seq,
		Fee:       wire.Fee,
		NetworkID: NetworkID(wire.NetworkID),
		Action:    action,
	}, nil
}

type signedWire struct {
	UnsignedPayload []byte
	Signature       [65]byte
}

// EncodeSignedTransactionRLP encodes [unsigned, signature] (§6).
func EncodeSignedTransactionRLP(tx *SignedTransaction) ([]byte, error) {
	unsignedPayload, err := EncodeUnsignedTransactionRLP(&tx.Unsigned)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(signedWire{
		UnsignedPayload: unsignedPayload,
		Signature:       tx.Signature,
	})
}

// DecodeSignedTransactionRLP is the inverse of EncodeSignedTransactionRLP.
func DecodeSignedTransactionRLP(data []byte) (*SignedTransaction, error) {
	var wire signedWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("decode signed tx: %w", err)
	}
	unsigned, err := DecodeUnsignedTransactionRLP(wire.UnsignedPayload)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Unsigned: *unsigned, Signature: wire.Signature}, nil
}

// --- Header -------------------------------------------------------------

type headerWire struct {
	ParentHash       [32]byte
	Number           uint64
	Author           [20]byte
	StateRoot        [32]byte
	TransactionsRoot [32]byte
	Timestamp        uint64
	Score            uint64
	Seal             [][]byte
}

// EncodeHeaderRLP encodes a block header.
func EncodeHeaderRLP(h *Header) ([]byte, error) {
	return rlp.EncodeToBytes(headerWire{
		ParentHash:       h.ParentHash,
		Number:           h.Number,
		Author:           h.Author,
		StateRoot:        h.StateRoot,
		TransactionsRoot: h.TransactionsRoot,
		Timestamp:        h.Timestamp,
		Score:            h.Score,
		Seal:             h.Seal,
	})
}

// DecodeHeaderRLP is the inverse of EncodeHeaderRLP.
func DecodeHeaderRLP(data []byte) (*Header, error) {
	var wire headerWire
	if err := rlp.DecodeBytes(data, &wire); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return &Header{
		ParentHash:       wire.ParentHash,
		Number:           wire.Number,
		Author:           wire.Author,
		StateRoot:        wire.StateRoot,
		TransactionsRoot: wire.TransactionsRoot,
		Timestamp:        wire.Timestamp,
		Score:            wire.Score,
		Seal:             wire.Seal,
	}, nil
}

// --- Body -----------------------------------------------------------------

// EncodeBodyRLP encodes a block body as a list of signed-transaction
// payloads.
func EncodeBodyRLP(b *Body) ([]byte, error) {
	payloads := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		enc, err := EncodeSignedTransactionRLP(tx)
		if err != nil {
			return nil, err
		}
		payloads[i] = enc
	}
	return rlp.EncodeToBytes(payloads)
}

// DecodeBodyRLP is the inverse of EncodeBodyRLP.
func DecodeBodyRLP(data []byte) (*Body, error) {
	var payloads [][]byte
	if err := rlp.DecodeBytes(data, &payloads); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	txs := make([]*SignedTransaction, len(payloads))
	for i, p := range payloads {
		tx, err := DecodeSignedTransactionRLP(p)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return &Body{Transactions: txs}, nil
}
