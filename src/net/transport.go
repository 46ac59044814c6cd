package net

// Transport carries the two indexnode RPCs between nodes. Inbound requests are
// delivered on Consumer and answered through RPC.Respond.
type Transport interface {
	// Listen accepts inbound requests until Close. It blocks.
	Listen()

	Consumer() <-chan RPC

	// LocalAddr is the address the transport is bound to.
	LocalAddr() string

	// AdvertiseAddr is the address announced to other nodes.
	AdvertiseAddr() string

	Handshake(target string, args *HandshakeRequest, resp *HandshakeResponse) error

	Gossip(target string, args *GossipRequest, resp *GossipResponse) error

	Close() error
}

// RPCResponse is the answer to an inbound request. A non-nil Error is sent to
// the requester in place of a failure of the call.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC is an inbound request waiting for its response. From is the address of
// the sender as established by the transport, never a value read from the
// request.
type RPC struct {
	Command  interface{}
	From     string
	RespChan chan<- RPCResponse
}

// accepted reports whether resp accepts a handshake.
func accepted(resp RPCResponse) bool {
	hr, ok := resp.Response.(*HandshakeResponse)
	return ok && resp.Error == nil && hr.Accepted
}

// Respond answers the request. It must be called exactly once.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{resp, err}
}

// Handshake returns the request if the RPC is a handshake.
func (r *RPC) Handshake() (*HandshakeRequest, bool) {
	req, ok := r.Command.(*HandshakeRequest)
	return req, ok
}

// Gossip returns the request if the RPC carries a gossip message.
func (r *RPC) Gossip() (*GossipRequest, bool) {
	req, ok := r.Command.(*GossipRequest)
	return req, ok
}
