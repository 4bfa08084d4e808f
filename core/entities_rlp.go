package core

// entities_rlp.go gives the persisted entities of entities.go their trie
// wire encoding, following the same wrapper idiom as rlpwire.go: optional
// pointer fields (Account.RegularKey, AssetScheme.Approver/Registrar,
// OwnedAsset.OrderHash) are carried as a presence flag plus a
// concretely-typed field, since go-ethereum/rlp cannot encode a nil
// pointer on its own.

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

type accountWire struct {
	Seq           uint64
	Balance       uint64
	HasRegularKey bool
	RegularKey    []byte
}

func EncodeAccountRLP(a *Account) ([]byte, error) {
	w := accountWire{Seq: a.Seq, Balance: a.Balance}
	if a.RegularKey != nil {
		w.HasRegularKey = true
		w.RegularKey = []byte(*a.RegularKey)
	}
	return rlp.EncodeToBytes(w)
}

func DecodeAccountRLP(data []byte) (*Account, error) {
	var w accountWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	a := &Account{Seq: w.Seq, Balance: w.Balance}
	if w.HasRegularKey {
		key := PublicKey(w.RegularKey)
		a.RegularKey = &key
	}
	return a, nil
}

func EncodeShardRecordRLP(s *ShardRecord) ([]byte, error) {
	return rlp.EncodeToBytes(s)
}

func DecodeShardRecordRLP(data []byte) (*ShardRecord, error) {
	var s ShardRecord
	if err := rlp.DecodeBytes(data, &s); err != nil {
		return nil, fmt.Errorf("decode shard record: %w", err)
	}
	return &s, nil
}

type assetSchemeWire struct {
	Metadata            string
	Supply              uint64
	HasApprover         bool
	Approver            Address
	HasRegistrar        bool
	Registrar           Address
	AllowedScriptHashes []H160
	Seq                 uint64
	Pool                []PoolEntry
}

func EncodeAssetSchemeRLP(s *AssetScheme) ([]byte, error) {
	w := assetSchemeWire{
		Metadata:            s.Metadata,
		Supply:              s.Supply,
		AllowedScriptHashes: s.AllowedScriptHashes,
		Seq:                 s.Seq,
		Pool:                s.Pool,
	}
	if s.Approver != nil {
		w.HasApprover = true
		w.Approver = *s.Approver
	}
	if s.Registrar != nil {
		w.HasRegistrar = true
		w.Registrar = *s.Registrar
	}
	return rlp.EncodeToBytes(w)
}

func DecodeAssetSchemeRLP(data []byte) (*AssetScheme, error) {
	var w assetSchemeWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("decode asset scheme: %w", err)
	}
	s := &AssetScheme{
		Metadata:            w.Metadata,
		Supply:              w.Supply,
		AllowedScriptHashes: w.AllowedScriptHashes,
		Seq:                 w.Seq,
		Pool:                w.Pool,
	}
	if w.HasApprover {
		v := w.Approver
		s.Approver = &v
	}
	if w.HasRegistrar {
		v := w.Registrar
		s.Registrar = &v
	}
	return s, nil
}

type ownedAssetWire struct {
	AssetType      AssetType
	ShardID        uint16
	Quantity       uint64
	LockScriptHash H160
	Parameters     [][]byte
	HasOrderHash   bool
	OrderHash      Hash
}

func EncodeOwnedAssetRLP(a *OwnedAsset) ([]byte, error) {
	w := ownedAssetWire{
		AssetType:      a.AssetType,
		ShardID:        uint16(a.ShardID),
		Quantity:       a.Quantity,
		LockScriptHash: a.LockScriptHash,
		Parameters:     a.Parameters,
	}
	if a.OrderHash != nil {
		w.HasOrderHash = true
		w.OrderHash = *a.OrderHash
	}
	return rlp.EncodeToBytes(w)
}

func DecodeOwnedAssetRLP(data []byte) (*OwnedAsset, error) {
	var w ownedAssetWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("decode owned asset: %w", err)
	}
	a := &OwnedAsset{
		AssetType:      w.AssetType,
		ShardID:        ShardID(w.ShardID),
		Quantity:       w.Quantity,
		LockScriptHash: w.LockScriptHash,
		Parameters:     w.Parameters,
	}
	if w.HasOrderHash {
		v := w.OrderHash
		a.OrderHash = &v
	}
	return a, nil
}
