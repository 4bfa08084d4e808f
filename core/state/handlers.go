package state

// handlers.go implements the Custom-action handler registry (invariant 5:
// "a Custom action is only accepted if a handler is registered for its
// handler_id; otherwise it is rejected with a Syntax error"). Grounded on
// the teacher's plugin-registry pattern (core/engine_registry.go in
// orbas1-Synnergy): a map guarded by the engine's own single-threaded
// apply path, no separate locking needed since ApplyTransaction already
// runs under the block-import lock (§5).

import core "codechain-core/core"

// CustomHandler applies one registered Custom sub-action against the
// current top-level state. ctx exposes exactly what a handler needs:
// the paying signer and the top-level state to mutate.
type CustomHandler interface {
	// HandlerID is the §6 Custom.HandlerID this handler answers to.
	HandlerID() uint64
	// Apply executes action.Bytes on behalf of signer. Returning an error
	// marks the transaction Failed (KindRuntime) without aborting the block.
	Apply(ctx *ApplyContext, signer core.Address, payload []byte) error
}

// HandlerRegistry looks up a CustomHandler by id.
type HandlerRegistry struct {
	handlers map[uint64]CustomHandler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[uint64]CustomHandler)}
}

// Register installs h, overwriting any existing handler for the same id.
func (r *HandlerRegistry) Register(h CustomHandler) {
	r.handlers[h.HandlerID()] = h
}

// Lookup returns the handler for id, or ok=false if none is registered
// (invariant 5: the caller must then reject with ErrUnknownHandler).
func (r *HandlerRegistry) Lookup(id uint64) (CustomHandler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}
