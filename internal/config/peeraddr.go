package config

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// NormalizePeerAddr accepts a configured peer entry either as a plain
// "host:port" or as a multiaddr ("/ip4/10.0.0.5/tcp/9109") and returns
// the "host:port" form net.Dial expects. Grounded on the teacher's
// internal/network/p2p.go, which parses peer entries with
// ma.NewMultiaddr before extracting routing info; this trims that down
// to what a TCP daemon actually needs (an ip4/ip6/dns/dns4/dns6 host and
// a tcp port) instead of resolving a full libp2p peer.AddrInfo.
func NormalizePeerAddr(entry string) (string, error) {
	addr, err := ma.NewMultiaddr(entry)
	if err != nil {
		// Not a multiaddr; assume it is already "host:port".
		return entry, nil
	}

	host, err := firstValue(addr, ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6)
	if err != nil {
		return "", fmt.Errorf("config: peer addr %q has no host component: %w", entry, err)
	}
	port, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("config: peer addr %q has no /tcp component: %w", entry, err)
	}
	return fmt.Sprintf("%s:%s", host, port), nil
}

func firstValue(addr ma.Multiaddr, codes ...int) (string, error) {
	var lastErr error
	for _, code := range codes {
		v, err := addr.ValueForProtocol(code)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return "", lastErr
}
