package net

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInmemAddr returns a random in-memory address.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport routes requests to other InmemTransports of the same process.
// Routes are explicit: a transport only reaches the peers it was connected to.
// Requests are delivered with the local address of the sending transport, and
// gossip is refused until a handshake of the sender was accepted.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	routes     map[string]*InmemTransport
	shaken     map[string]bool
	timeout    time.Duration
}

// NewInmemTransport returns a transport bound to addr, or to a random address
// if addr is empty.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	return addr, &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		routes:     make(map[string]*InmemTransport),
		shaken:     make(map[string]bool),
		timeout:    500 * time.Millisecond,
	}
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Handshake implements the Transport interface.
func (i *InmemTransport) Handshake(target string, args *HandshakeRequest, resp *HandshakeResponse) error {
	out, err := i.deliver(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*HandshakeResponse)
	return nil
}

// Gossip implements the Transport interface.
func (i *InmemTransport) Gossip(target string, args *GossipRequest, resp *GossipResponse) error {
	out, err := i.deliver(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GossipResponse)
	return nil
}

func (i *InmemTransport) deliver(target string, cmd interface{}) (interface{}, error) {
	i.RLock()
	peer, ok := i.routes[target]
	i.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no route to %s", target)
	}
	_, handshake := cmd.(*HandshakeRequest)
	if !handshake && !peer.isShaken(i.localAddr) {
		return nil, errNoHandshake
	}

	timeout := time.NewTimer(i.timeout)
	defer timeout.Stop()

	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: cmd, From: i.localAddr, RespChan: respCh}:
	case <-timeout.C:
		return nil, fmt.Errorf("%s: request not consumed", target)
	}

	select {
	case resp := <-respCh:
		if handshake {
			peer.setShaken(i.localAddr, accepted(resp))
		}
		return resp.Response, resp.Error
	case <-timeout.C:
		return nil, fmt.Errorf("%s: no response", target)
	}
}

func (i *InmemTransport) isShaken(addr string) bool {
	i.RLock()
	defer i.RUnlock()
	return i.shaken[addr]
}

func (i *InmemTransport) setShaken(addr string, ok bool) {
	i.Lock()
	defer i.Unlock()
	if ok {
		i.shaken[addr] = true
	} else {
		delete(i.shaken, addr)
	}
}

// Connect adds a route to t under addr.
func (i *InmemTransport) Connect(addr string, t Transport) {
	i.Lock()
	defer i.Unlock()
	i.routes[addr] = t.(*InmemTransport)
}

// Disconnect removes the route to addr.
func (i *InmemTransport) Disconnect(addr string) {
	i.Lock()
	defer i.Unlock()
	delete(i.routes, addr)
}

// Close drops every route.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.routes = make(map[string]*InmemTransport)
	i.shaken = make(map[string]bool)
	return nil
}

// Listen returns immediately: requests are pushed to the consumer by the
// sending transport.
func (i *InmemTransport) Listen() {
}
