package sync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	core "codechain-core/core"
)

// RequestID is a request correlation id. newRequestID draws it from a
// process-wide counter, so the ids this node hands out increase
// monotonically.
type RequestID string

var requestCounter uint64

func newRequestID() RequestID {
	return RequestID(strconv.FormatUint(atomic.AddUint64(&requestCounter, 1), 10))
}

// HeadersRequest asks for a contiguous run of headers starting at
// StartNumber.
type HeadersRequest struct {
	StartNumber uint64
	MaxCount    int
}

// HeadersResponse must be a contiguous chain starting exactly at the
// request's StartNumber (§4.6).
type HeadersResponse struct {
	Headers []*core.Header
}

// BodiesRequest asks for the bodies of the listed block hashes.
type BodiesRequest struct {
	Hashes []core.Hash
}

// BodiesResponse has the same length as the BodiesRequest it answers;
// each body's transactions are assumed well-formed (§4.6 "each body is
// a sequence of signed transactions whose actions all resolve").
type BodiesResponse struct {
	Bodies []*core.Body
}

// StateHeadRequest and StateChunkRequest are reserved request kinds
// for a future fast-sync design; this implementation declines them
// rather than guessing a wire format (§9 Open Question).
type StateHeadRequest struct{}
type StateChunkRequest struct{ ChunkIndex uint64 }

// ErrStateSyncUnimplemented is returned by any StateHead/StateChunk
// handler.
func ErrStateSyncUnimplemented() error {
	return core.ErrProtocol("sync: state sync requests are not implemented")
}

func encodeStatus(s Status) []byte {
	b, _ := json.Marshal(s)
	return b
}

func decodeStatus(data []byte) (Status, error) {
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("sync: decode status: %w", err)
	}
	return s, nil
}

// pendingRequest is one entry in a peer's request log: the request
// that was sent, and how to cancel its expiration timer once a
// matching response arrives.
type pendingRequest struct {
	id     RequestID
	isBody bool
	hashes []core.Hash // set for body requests, to requeue on expiry
	cancel func()      // stops the expiration timer; nil for header requests
}

// requestLog correlates outbound requests with their responses
// (§4.6 "Correlation": a response without a matching pending id is
// dropped).
type requestLog struct {
	mu      sync.Mutex
	pending map[RequestID]*pendingRequest
}

func newRequestLog() *requestLog {
	return &requestLog{pending: make(map[RequestID]*pendingRequest)}
}

func (l *requestLog) register(req *pendingRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[req.id] = req
}

// resolve looks up and removes id's pending request. ok is false if id
// is unknown (a late or spoofed response), in which case the caller
// must drop the response.
func (l *requestLog) resolve(id RequestID) (*pendingRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	return req, ok
}

// expire removes id unconditionally (used by the expiration timer
// itself, which fires whether or not a response ever arrives).
func (l *requestLog) expire(id RequestID) (*pendingRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.pending[id]
	if ok {
		delete(l.pending, id)
	}
	return req, ok
}
