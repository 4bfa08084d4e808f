package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way §7 of the specification groups failures:
// it drives how the caller must react (abort a transaction, abort a block,
// drop silently, disconnect a peer, ...).
type Kind int

const (
	// KindSyntax: malformed action data. Fatal for the transaction; the
	// mempool bans the signer (unless local/immune).
	KindSyntax Kind = iota
	// KindRuntime: script failure, asset-supply overflow, insufficient
	// balance during action execution. Transaction recorded Failed, fee
	// still paid.
	KindRuntime
	// KindHistory: already-imported, old seq, timelocked. Dropped without
	// side effects.
	KindHistory
	// KindConsensus: invalid seal, validator mismatch, double-vote
	// verification failure.
	KindConsensus
	// KindDatabase: trie/KV infrastructure failure. Aborts the current
	// apply and the enclosing block import.
	KindDatabase
	// KindImport: AlreadyInChain, KnownBad, queue full. Block/header
	// dropped.
	KindImport
	// KindProtocol: unknown request/response shape, invalid response,
	// unknown network id. Logged, not banned on a first offense.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "Syntax"
	case KindRuntime:
		return "Runtime"
	case KindHistory:
		return "History"
	case KindConsensus:
		return "Consensus"
	case KindDatabase:
		return "Database"
	case KindImport:
		return "Import"
	case KindProtocol:
		return "Protocol"
	default:
		return "Unknown"
	}
}

// CodeChainError wraps an underlying error with its taxonomy Kind.
type CodeChainError struct {
	Kind Kind
	Err  error
}

func (e *CodeChainError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CodeChainError) Unwrap() error { return e.Err }

func newErr(k Kind, format string, args ...interface{}) *CodeChainError {
	return &CodeChainError{Kind: k, Err: fmt.Errorf(format, args...)}
}

func ErrSyntax(format string, args ...interface{}) error    { return newErr(KindSyntax, format, args...) }
func ErrRuntime(format string, args ...interface{}) error   { return newErr(KindRuntime, format, args...) }
func ErrHistory(format string, args ...interface{}) error   { return newErr(KindHistory, format, args...) }
func ErrConsensus(format string, args ...interface{}) error { return newErr(KindConsensus, format, args...) }
func ErrDatabase(format string, args ...interface{}) error  { return newErr(KindDatabase, format, args...) }
func ErrImport(format string, args ...interface{}) error    { return newErr(KindImport, format, args...) }
func ErrProtocol(format string, args ...interface{}) error  { return newErr(KindProtocol, format, args...) }

// KindOf extracts the Kind from err, if it (or something it wraps) is a
// *CodeChainError. ok is false for plain errors.
func KindOf(err error) (k Kind, ok bool) {
	var cerr *CodeChainError
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// Sentinel errors referenced by name across packages (invariant 2 / §7
// scenarios S1-S2, and others).
var (
	ErrAlreadyImported  = errors.New("already imported")
	ErrInvalidSigCount  = errors.New("invalid signature count")
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrTypeMismatch     = errors.New("stack type mismatch")
	ErrTooCheapReplace  = errors.New("too cheap to replace")
	ErrUnknownHandler   = errors.New("no handler registered for custom action")
)

// InvalidSeqError carries the expected/actual seq pair for S2.
type InvalidSeqError struct {
	Expected, Got uint64
}

func (e *InvalidSeqError) Error() string {
	return fmt.Sprintf("invalid seq: expected %d, got %d", e.Expected, e.Got)
}

// InsufficientBalanceError is raised when an account cannot cover a fee or
// a transfer quantity.
type InsufficientBalanceError struct {
	Address          Address
	Required, Actual uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: required %d, have %d", e.Address, e.Required, e.Actual)
}

// TimelockedError is returned by the VM's timelock opcodes when the
// referenced transaction has not yet been mined far enough.
type TimelockedError struct {
	Remaining uint64
}

func (e *TimelockedError) Error() string {
	return fmt.Sprintf("timelocked: %d remaining", e.Remaining)
}

// FailedToUnlockError names the address whose unlock attempt failed.
type FailedToUnlockError struct {
	Address H160
}

func (e *FailedToUnlockError) Error() string {
	return fmt.Sprintf("failed to unlock %s", e.Address.Hex())
}
