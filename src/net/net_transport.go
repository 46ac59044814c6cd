package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Frame kinds.
const (
	frameHandshake uint8 = iota
	frameGossip
)

const bufSize = 64 * 1024

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	errWrongNetwork = errors.New("frame from another network")

	// errNoHandshake refuses gossip on a connection that was not introduced
	// by an accepted handshake.
	errNoHandshake = errors.New("no accepted handshake")
)

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

/*
NetworkTransport exchanges Handshake and Gossip requests over stream
connections.

A request frame is the 4-byte network magic, one byte for the kind of request,
then the JSON encoded request. The answer is an error string followed by the
response, both JSON encoded. A frame carrying the magic of another network
closes the connection.

Gossip is only served on a connection after an accepted handshake. The peer
of the connection is the remote IP with the port announced in the handshake;
every request of the connection is delivered with that address.

Outbound connections are pooled per target, up to maxPool idle connections.
The last accepted handshake to a target is replayed on every new connection
before its first gossip frame.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	listener  net.Listener
	advertise string
	magic     [4]byte
	timeout   time.Duration

	poolLock sync.Mutex
	pool     map[string][]*peerConn
	hello    map[string]HandshakeRequest
	maxPool  int

	consumeCh chan RPC

	shutdownLock sync.Mutex
	shutdownCh   chan struct{}
}

// peerConn is an outbound connection with its codec.
type peerConn struct {
	target string
	shaken bool
	conn   net.Conn
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

func newPeerConn(target string, conn net.Conn) *peerConn {
	w := bufio.NewWriterSize(conn, bufSize)
	return &peerConn{
		target: target,
		conn:   conn,
		w:      w,
		dec:    codec.NewDecoder(bufio.NewReaderSize(conn, bufSize), jsonHandle()),
		enc:    codec.NewEncoder(w, jsonHandle()),
	}
}

// NewNetworkTransport serves inbound requests accepted by listener. advertise
// is the address announced to other nodes. timeout bounds every exchange.
func NewNetworkTransport(
	listener net.Listener,
	advertise string,
	magic [4]byte,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &NetworkTransport{
		logger:     logger,
		listener:   listener,
		advertise:  advertise,
		magic:      magic,
		timeout:    timeout,
		pool:       make(map[string][]*peerConn),
		hello:      make(map[string]HandshakeRequest),
		maxPool:    maxPool,
		consumeCh:  make(chan RPC),
		shutdownCh: make(chan struct{}),
	}
}

// Close stops the listener and releases pooled connections.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.IsShutdown() {
		return nil
	}
	close(n.shutdownCh)
	err := n.listener.Close()

	n.poolLock.Lock()
	for target, conns := range n.pool {
		for _, c := range conns {
			c.conn.Close()
		}
		delete(n.pool, target)
	}
	n.poolLock.Unlock()

	return err
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	return n.listener.Addr().String()
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.advertise
}

// IsShutdown reports whether Close was called.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Handshake implements the Transport interface.
func (n *NetworkTransport) Handshake(target string, args *HandshakeRequest, resp *HandshakeResponse) error {
	return n.call(target, frameHandshake, args, resp)
}

// Gossip implements the Transport interface.
func (n *NetworkTransport) Gossip(target string, args *GossipRequest, resp *GossipResponse) error {
	return n.call(target, frameGossip, args, resp)
}

func (n *NetworkTransport) take(target string) *peerConn {
	n.poolLock.Lock()
	defer n.poolLock.Unlock()

	conns := n.pool[target]
	if len(conns) == 0 {
		return nil
	}
	c := conns[len(conns)-1]
	conns[len(conns)-1] = nil
	n.pool[target] = conns[:len(conns)-1]
	return c
}

func (n *NetworkTransport) release(c *peerConn) {
	n.poolLock.Lock()
	defer n.poolLock.Unlock()

	if n.IsShutdown() || len(n.pool[c.target]) >= n.maxPool {
		c.conn.Close()
		return
	}
	n.pool[c.target] = append(n.pool[c.target], c)
}

func (n *NetworkTransport) dial(target string) (*peerConn, error) {
	if c := n.take(target); c != nil {
		return c, nil
	}
	conn, err := net.DialTimeout("tcp", target, n.timeout)
	if err != nil {
		return nil, err
	}
	return newPeerConn(target, conn), nil
}

// call sends one request and decodes its answer. The connection goes back to
// the pool only after a complete exchange.
func (n *NetworkTransport) call(target string, kind uint8, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	c, err := n.dial(target)
	if err != nil {
		return err
	}
	if n.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	if kind == frameGossip && !c.shaken {
		if err := n.introduce(c); err != nil {
			c.conn.Close()
			return err
		}
	}

	remoteErr, err := n.exchange(c, kind, args, resp)
	if err != nil {
		c.conn.Close()
		return err
	}
	if hr, ok := resp.(*HandshakeResponse); ok {
		c.shaken = remoteErr == "" && hr.Accepted
		n.poolLock.Lock()
		if c.shaken {
			n.hello[target] = *args.(*HandshakeRequest)
		} else {
			delete(n.hello, target)
		}
		n.poolLock.Unlock()
	}
	n.release(c)

	if remoteErr != "" {
		return errors.New(remoteErr)
	}
	return nil
}

// introduce replays the last accepted handshake to the target of c.
func (n *NetworkTransport) introduce(c *peerConn) error {
	n.poolLock.Lock()
	hello, ok := n.hello[c.target]
	n.poolLock.Unlock()
	if !ok {
		return errNoHandshake
	}

	var resp HandshakeResponse
	remoteErr, err := n.exchange(c, frameHandshake, &hello, &resp)
	if err != nil {
		return err
	}
	if remoteErr != "" {
		return errors.New(remoteErr)
	}
	if !resp.Accepted {
		return fmt.Errorf("handshake refused: %s", resp.Reason)
	}
	c.shaken = true
	return nil
}

// exchange writes a request and reads its answer, along with the error string
// reported by the remote node.
func (n *NetworkTransport) exchange(c *peerConn, kind uint8, args interface{}, resp interface{}) (string, error) {
	if err := n.writeRequest(c, kind, args); err != nil {
		return "", err
	}

	var remoteErr string
	if err := c.dec.Decode(&remoteErr); err != nil {
		return "", err
	}
	if err := c.dec.Decode(resp); err != nil {
		return "", err
	}
	return remoteErr, nil
}

func (n *NetworkTransport) writeRequest(c *peerConn, kind uint8, args interface{}) error {
	if _, err := c.w.Write(n.magic[:]); err != nil {
		return err
	}
	if err := c.w.WriteByte(kind); err != nil {
		return err
	}
	if err := c.enc.Encode(args); err != nil {
		return err
	}
	return c.w.Flush()
}

// Listen implements the Transport interface.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithField("from", conn.RemoteAddr()).Debug("Accepted connection")

		go n.serve(conn)
	}
}

// inbound is the server side of an accepted connection. peer is set once a
// handshake is accepted on it.
type inbound struct {
	conn net.Conn
	r    *bufio.Reader
	dec  *codec.Decoder
	enc  *codec.Encoder
	peer string
}

// serve answers the requests of an inbound connection until it fails.
func (n *NetworkTransport) serve(conn net.Conn) {
	defer conn.Close()

	w := bufio.NewWriterSize(conn, bufSize)
	in := &inbound{
		conn: conn,
		r:    bufio.NewReaderSize(conn, bufSize),
		enc:  codec.NewEncoder(w, jsonHandle()),
	}
	in.dec = codec.NewDecoder(in.r, jsonHandle())

	for {
		err := n.serveRequest(in)
		if err == nil {
			err = w.Flush()
		}
		switch {
		case err == nil:
			continue
		case err == io.EOF:
		case err == ErrTransportShutdown, err == errWrongNetwork:
			n.logger.WithError(err).WithField("from", conn.RemoteAddr()).Debug("Dropping connection")
		default:
			n.logger.WithError(err).WithField("from", conn.RemoteAddr()).Error("Failed to serve request")
		}
		return
	}
}

func (n *NetworkTransport) serveRequest(in *inbound) error {
	var head [5]byte
	if _, err := io.ReadFull(in.r, head[:]); err != nil {
		return err
	}
	if !bytes.Equal(head[:4], n.magic[:]) {
		return errWrongNetwork
	}

	var cmd interface{}
	switch head[4] {
	case frameHandshake:
		cmd = new(HandshakeRequest)
	case frameGossip:
		cmd = new(GossipRequest)
	default:
		return fmt.Errorf("unknown frame kind %d", head[4])
	}
	if err := in.dec.Decode(cmd); err != nil {
		return err
	}

	from := in.peer
	hs, handshake := cmd.(*HandshakeRequest)
	if handshake {
		// a new handshake replaces the previous one
		in.peer = ""
		addr, err := boundAddr(in.conn.RemoteAddr(), hs.From)
		if err != nil {
			return in.answer(RPCResponse{Response: &HandshakeResponse{Reason: err.Error()}})
		}
		from = addr
	} else if from == "" {
		return in.answer(RPCResponse{Error: errNoHandshake})
	}

	respCh := make(chan RPCResponse, 1)
	select {
	case n.consumeCh <- RPC{Command: cmd, From: from, RespChan: respCh}:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	select {
	case resp := <-respCh:
		if handshake && accepted(resp) {
			in.peer = from
		}
		return in.answer(resp)
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}
}

func (in *inbound) answer(resp RPCResponse) error {
	remoteErr := ""
	if resp.Error != nil {
		remoteErr = resp.Error.Error()
	}
	if err := in.enc.Encode(remoteErr); err != nil {
		return err
	}
	return in.enc.Encode(resp.Response)
}

// boundAddr is the address of a peer connected from remote that announces
// advertised: the host of the connection and the announced port.
func boundAddr(remote net.Addr, advertised string) (string, error) {
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return "", err
	}
	_, port, ok := indexnode.SplitAddr(advertised)
	if !ok {
		return "", fmt.Errorf("invalid address %q", advertised)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
