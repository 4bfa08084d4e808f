package core

// action.go declares the tagged-union of transaction actions (§3, §6).
// Each action carries exactly the data needed to apply it; this file
// declares the structures only — RLP wire encoding lives in rlpwire.go,
// state effects live in core/state.
//
// Field lists are grounded on original_source/types/src/transaction/
// action.rs and shard.rs (see DESIGN.md).

// Action tag bytes (§6). 0xFF Custom wraps a further sub-tag catalogue
// (see core/stake for the Stake handler's sub-actions).
const (
	TagPay                = 0x02
	TagSetRegularKey      = 0x03
	TagCreateShard        = 0x04
	TagSetShardOwners     = 0x05
	TagSetShardUsers      = 0x06
	TagWrapCCC            = 0x07
	TagStore              = 0x08
	TagRemove             = 0x09
	TagUnwrapCCC          = 0x11
	TagMintAsset          = 0x13
	TagTransferAsset      = 0x14
	TagChangeAssetScheme  = 0x15
	TagIncreaseAssetSupply = 0x18
	TagCustom             = 0xFF
)

// Action is implemented by every concrete action type.
type Action interface {
	// ActionTag returns this action's §6 wire discriminant byte.
	ActionTag() byte
	// IsShardTransaction reports whether this action carries an
	// Approvals list and is dispatched to shard-level state (§3, §4.1).
	IsShardTransaction() bool
}

// --- Non-shard actions -----------------------------------------------------

// Pay transfers Quantity CCC from the signer to Receiver.
type Pay struct {
	Receiver Address
	Quantity uint64
}

func (Pay) ActionTag() byte         { return TagPay }
func (Pay) IsShardTransaction() bool { return false }

// SetRegularKey installs a delegated signing key for the signer's account.
type SetRegularKey struct {
	Key PublicKey
}

func (SetRegularKey) ActionTag() byte         { return TagSetRegularKey }
func (SetRegularKey) IsShardTransaction() bool { return false }

// CreateShard creates a new shard owned by the signer, with Users granted
// ordinary access (owners default to {signer} per the original's behavior,
// preserved here — see SPEC_FULL.md §3.1).
type CreateShard struct {
	Users []Address
}

func (CreateShard) ActionTag() byte         { return TagCreateShard }
func (CreateShard) IsShardTransaction() bool { return false }

// SetShardOwners replaces a shard's owner set. Only an existing owner may
// submit this action.
type SetShardOwners struct {
	ShardID ShardID
	Owners  []Address
}

func (SetShardOwners) ActionTag() byte         { return TagSetShardOwners }
func (SetShardOwners) IsShardTransaction() bool { return false }

// SetShardUsers replaces a shard's user set.
type SetShardUsers struct {
	ShardID ShardID
	Users   []Address
}

func (SetShardUsers) ActionTag() byte         { return TagSetShardUsers }
func (SetShardUsers) IsShardTransaction() bool { return false }

// WrapCCC locks Quantity native coin into an owned asset of type zero in
// the target shard (SPEC_FULL.md "Asset-type zero").
type WrapCCC struct {
	ShardID        ShardID
	LockScriptHash H160
	Parameters     [][]byte
	Quantity       uint64
}

func (WrapCCC) ActionTag() byte         { return TagWrapCCC }
func (WrapCCC) IsShardTransaction() bool { return false }

// Store commits an arbitrary text blob, certified by Certifier's signature.
type Store struct {
	Content   string
	Certifier Address
	Signature Signature
}

func (Store) ActionTag() byte         { return TagStore }
func (Store) IsShardTransaction() bool { return false }

// Remove deletes a previously stored text blob identified by Hash.
type Remove struct {
	Hash      Hash
	Signature Signature
}

func (Remove) ActionTag() byte         { return TagRemove }
func (Remove) IsShardTransaction() bool { return false }

// Custom dispatches to a registered handler by HandlerID (invariant 5: only
// accepted if a handler is registered). The Stake handler (core/stake) is
// the only handler registered by this implementation.
type Custom struct {
	HandlerID uint64
	Bytes     []byte
}

func (Custom) ActionTag() byte         { return TagCustom }
func (Custom) IsShardTransaction() bool { return false }

// --- Shard actions (carry Approvals, dispatch to shard-level state) -------

// AssetMintOutput is the single output created by MintAsset/IncreaseAssetSupply.
type AssetMintOutput struct {
	LockScriptHash H160
	Parameters     [][]byte
	Supply         uint64
}

// MintAsset creates a new asset scheme and its initial owned asset.
type MintAsset struct {
	ShardID             ShardID
	Metadata            string
	Approver            *Address
	Registrar           *Address
	AllowedScriptHashes []H160
	Output              AssetMintOutput
	Approvals           []Signature
}

func (MintAsset) ActionTag() byte         { return TagMintAsset }
func (MintAsset) IsShardTransaction() bool { return true }

// AssetTransferInput spends one owned asset, proven by UnlockScript against
// the asset's LockScriptHash (checked via LockScript supplied here, whose
// blake160 must equal the referenced asset's LockScriptHash).
type AssetTransferInput struct {
	Prev         AssetOutPoint
	LockScript   []byte
	UnlockScript []byte
}

// AssetTransferOutput creates a new owned asset.
type AssetTransferOutput struct {
	LockScriptHash H160
	Parameters     [][]byte
	AssetType      AssetType
	ShardID        ShardID
	Quantity       uint64
}

// TransferAsset spends Inputs and Burns and creates Outputs. Invariant 3:
// conservation of (asset_type, shard_id, quantity) across inputs+burns vs
// outputs. Invariant 4: no (tracker,index) referenced twice across
// Inputs+Burns.
type TransferAsset struct {
	Inputs     []AssetTransferInput
	Burns      []AssetTransferInput
	Outputs    []AssetTransferOutput
	Approvals  []Signature
}

func (TransferAsset) ActionTag() byte         { return TagTransferAsset }
func (TransferAsset) IsShardTransaction() bool { return true }

// ChangeAssetScheme mutates an existing asset scheme's governance fields.
// Rejected (Syntax) for asset-type zero.
type ChangeAssetScheme struct {
	ShardID             ShardID
	AssetType           AssetType
	Metadata            string
	Approver            *Address
	Registrar           *Address
	AllowedScriptHashes []H160
	Approvals           []Signature
}

func (ChangeAssetScheme) ActionTag() byte         { return TagChangeAssetScheme }
func (ChangeAssetScheme) IsShardTransaction() bool { return true }

// IncreaseAssetSupply mints additional supply of an existing scheme.
// Rejected (Syntax) for asset-type zero.
type IncreaseAssetSupply struct {
	ShardID   ShardID
	AssetType AssetType
	Output    AssetMintOutput
	Approvals []Signature
}

func (IncreaseAssetSupply) ActionTag() byte         { return TagIncreaseAssetSupply }
func (IncreaseAssetSupply) IsShardTransaction() bool { return true }

// UnwrapCCC burns a wrapped-CCC owned asset (asset-type zero required) and
// credits the equivalent native coin to Receiver.
type UnwrapCCC struct {
	ShardID   ShardID
	Burn      AssetTransferInput
	Receiver  Address
	Approvals []Signature
}

func (UnwrapCCC) ActionTag() byte         { return TagUnwrapCCC }
func (UnwrapCCC) IsShardTransaction() bool { return true }

// AssetTypeZero is reserved for the wrapped native coin (SPEC_FULL.md
// DESIGN NOTES "Asset-type zero").
var AssetTypeZero = AssetType{}
