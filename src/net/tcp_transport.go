package net

import (
	"errors"
	"net"
	"time"

	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// NewTCPTransport binds bindAddr and returns a NetworkTransport speaking the
// protocol of params over TCP. advertise, when set, is the address announced
// to other nodes in place of the bound one.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	params *indexnode.Params,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {

	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	adv, err := advertiseAddr(list.Addr(), advertise)
	if err != nil {
		list.Close()
		return nil, err
	}

	return NewNetworkTransport(list, adv, params.Magic, maxPool, timeout, logger), nil
}

// advertiseAddr checks that other nodes can dial the advertised address: a
// TCP address with an explicit host and port.
func advertiseAddr(bound net.Addr, advertise string) (string, error) {
	if advertise == "" {
		addr, ok := bound.(*net.TCPAddr)
		if !ok {
			return "", errNotTCP
		}
		if addr.IP.IsUnspecified() {
			return "", errNotAdvertisable
		}
		return addr.String(), nil
	}

	addr, err := net.ResolveTCPAddr("tcp", advertise)
	if err != nil {
		return "", err
	}
	if addr.IP.IsUnspecified() {
		return "", errNotAdvertisable
	}
	if _, _, ok := indexnode.SplitAddr(advertise); !ok {
		return "", errNotAdvertisable
	}
	return advertise, nil
}
