package indexnode

import (
	"net"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcutil"
)

// SplitAddr returns the IPv4 address and port of an "ip:port" service
// address. ok is false for anything else.
func SplitAddr(addr string) (ip net.IP, port int, ok bool) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, false
	}
	ip = net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, 0, false
	}
	port, err = strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return nil, 0, false
	}
	return ip.To4(), port, true
}

// IsLocalOrPrivate reports whether the address is loopback, RFC1918,
// link-local or unspecified.
func IsLocalOrPrivate(addr string) bool {
	ip, _, ok := SplitAddr(addr)
	if !ok {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		ip = net.ParseIP(host)
		if ip == nil {
			return false
		}
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsUnspecified()
}

// IsValidNetAddr accepts IPv4 service addresses. Non-routable addresses are
// only valid on networks that allow them.
func IsValidNetAddr(addr string, params *Params) bool {
	if _, _, ok := SplitAddr(addr); !ok {
		return false
	}
	return params.AllowPrivateAddrs || !IsLocalOrPrivate(addr)
}

// CheckPort enforces the port policy: mainnet nodes must use the default
// port, nodes on other networks must not.
func CheckPort(addr string, params *Params) bool {
	_, port, ok := SplitAddr(addr)
	if !ok {
		return false
	}
	if params.IsMain() {
		return port == params.MainDefaultPort
	}
	return port != params.MainDefaultPort
}

// PayeeScript is the pay-to-pubkey-hash script of a collateral key. Payment
// logic elsewhere refers to indexnodes by this script.
func PayeeScript(pubKeyCollateral []byte) []byte {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKeyCollateral), &chaincfg.MainNetParams)
	if err != nil {
		return nil
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil
	}
	return script
}
