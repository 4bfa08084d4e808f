package sync

// transport.go implements Manager's Transport interface over a direct
// libp2p stream per request (§4.6: requests/responses are correlated
// by id, not gossiped — gossip-sub is reserved for the Status topic in
// peer.go). One stream carries exactly one request and its one
// response, then closes, mirroring the teacher's short-lived
// request streams in core/network.go rather than a long-lived
// multiplexed session.

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	core "codechain-core/core"
)

// syncProtocol is the libp2p protocol id this node's sync stream
// handler answers on.
const syncProtocol = protocol.ID("/codechain/sync/1")

// frameKind tags which request type a wire envelope carries.
type frameKind byte

const (
	frameHeadersRequest frameKind = iota
	frameBodiesRequest
)

// requestEnvelope is the single struct written to a stream by the
// requesting side; responseEnvelope is written back by the answering
// side. Both are JSON values written with json.Encoder, which ends each
// with a newline (mirrors encodeStatus/
// decodeStatus's JSON choice in protocol.go).
type requestEnvelope struct {
	Kind    frameKind
	ID      RequestID
	Headers HeadersRequest `json:",omitempty"`
	Bodies  BodiesRequest  `json:",omitempty"`
}

type responseEnvelope struct {
	ID      RequestID
	Err     string          `json:",omitempty"`
	Headers HeadersResponse `json:",omitempty"`
	Bodies  BodiesResponse  `json:",omitempty"`
}

// Responder answers the requests a peer sends us. *chain.Client
// satisfies it directly through its own HeaderByNumber and BodyByHash
// methods; the narrow interface keeps transport.go independent of the
// concrete client.
type Responder interface {
	HeaderByNumber(number uint64) (*core.Header, bool)
	BodyByHash(hash core.Hash) (*core.Body, bool)
}

// AttachResponder registers the stream handler that answers inbound
// Headers/Bodies requests using resp. A node with no Responder (an
// observer that never serves data) simply never calls this.
func (n *Node) AttachResponder(resp Responder) {
	n.host.SetStreamHandler(syncProtocol, func(s network.Stream) {
		defer s.Close()
		n.serveOne(s, resp)
	})
}

func (n *Node) serveOne(s network.Stream, resp Responder) {
	var req requestEnvelope
	if err := json.NewDecoder(s).Decode(&req); err != nil {
		n.log.Debugf("sync: decode request from %s: %v", s.Conn().RemotePeer(), err)
		return
	}

	out := responseEnvelope{ID: req.ID}
	switch req.Kind {
	case frameHeadersRequest:
		out.Headers = answerHeaders(resp, req.Headers)
	case frameBodiesRequest:
		out.Bodies = answerBodies(resp, req.Bodies)
	default:
		out.Err = fmt.Sprintf("sync: unknown request kind %d", req.Kind)
	}

	if err := json.NewEncoder(s).Encode(out); err != nil {
		n.log.Debugf("sync: encode response to %s: %v", s.Conn().RemotePeer(), err)
	}
}

// answerHeaders returns the longest contiguous run of headers starting
// at req.StartNumber that this node actually holds, stopping early at
// a gap rather than erroring (§4.6 "a response must be a contiguous
// chain starting exactly at the request's StartNumber").
func answerHeaders(resp Responder, req HeadersRequest) HeadersResponse {
	max := req.MaxCount
	if max <= 0 || max > maxHeadersPerRequest {
		max = maxHeadersPerRequest
	}
	headers := make([]*core.Header, 0, max)
	for i := 0; i < max; i++ {
		h, ok := resp.HeaderByNumber(req.StartNumber + uint64(i))
		if !ok {
			break
		}
		headers = append(headers, h)
	}
	return HeadersResponse{Headers: headers}
}

func answerBodies(resp Responder, req BodiesRequest) BodiesResponse {
	bodies := make([]*core.Body, 0, len(req.Hashes))
	for _, hash := range req.Hashes {
		b, ok := resp.BodyByHash(hash)
		if !ok {
			continue
		}
		bodies = append(bodies, b)
	}
	return BodiesResponse{Bodies: bodies}
}

var _ Transport = (*Node)(nil)

// SendHeadersRequest implements Transport: open a stream to peer,
// write the request, and dispatch the response into the Manager from
// a background goroutine (the Manager's own expiration timer, not this
// call, is what bounds how long the caller waits overall).
func (n *Node) SendHeadersRequest(p PeerID, id RequestID, req HeadersRequest) error {
	return n.sendRequest(p, requestEnvelope{Kind: frameHeadersRequest, ID: id, Headers: req}, func(resp responseEnvelope) {
		n.mgr.OnHeadersResponse(p, resp.ID, resp.Headers)
	})
}

// SendBodiesRequest implements Transport analogously.
func (n *Node) SendBodiesRequest(p PeerID, id RequestID, req BodiesRequest) error {
	return n.sendRequest(p, requestEnvelope{Kind: frameBodiesRequest, ID: id, Bodies: req}, func(resp responseEnvelope) {
		n.mgr.OnBodiesResponse(p, resp.ID, resp.Bodies)
	})
}

func (n *Node) sendRequest(p PeerID, req requestEnvelope, onResponse func(responseEnvelope)) error {
	pid, err := peer.Decode(string(p))
	if err != nil {
		return fmt.Errorf("sync: decode peer id %s: %w", p, err)
	}
	s, err := n.host.NewStream(n.ctx, pid, syncProtocol)
	if err != nil {
		return fmt.Errorf("sync: open stream to %s: %w", p, err)
	}
	if err := json.NewEncoder(s).Encode(req); err != nil {
		s.Close()
		return fmt.Errorf("sync: write request to %s: %w", p, err)
	}

	go func() {
		defer s.Close()
		var resp responseEnvelope
		if err := json.NewDecoder(bufio.NewReader(s)).Decode(&resp); err != nil {
			n.log.Debugf("sync: read response from %s: %v", p, err)
			return
		}
		if resp.Err != "" {
			n.log.Debugf("sync: %s declined request: %s", p, resp.Err)
			return
		}
		onResponse(resp)
	}()
	return nil
}
