package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
)

// TrustSet decides which remote addresses belong to the service's own
// host and therefore get the "official" flag. Loopback and RFC 1918
// private addresses are always trusted (a game server reaching us over
// a private address shares our host or network); the config can list
// additional addresses.
type TrustSet struct {
	trusted map[netip.Addr]struct{}
	public  netip.Addr
}

// NewTrustSet builds a trust set from configured address strings.
// public may be the zero Addr, in which case official entries keep
// their resolved address instead of being rewritten.
func NewTrustSet(trusted []string, public netip.Addr) (*TrustSet, error) {
	set := make(map[netip.Addr]struct{}, len(trusted))
	for _, s := range trusted {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted address %q: %w", s, err)
		}
		set[addr.Unmap()] = struct{}{}
	}
	return &TrustSet{trusted: set, public: public}, nil
}

// Contains reports whether ip is part of the trusted set.
func (t *TrustSet) Contains(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() {
		return true
	}
	_, ok := t.trusted[ip]
	return ok
}

// Resolve computes the advertised address and official flag for a
// connection's resolved remote address. Trusted connections advertise
// the service's public address (when known) so that the listed address
// is reachable from outside; everyone else advertises the address they
// actually connected from.
func (t *TrustSet) Resolve(ip netip.Addr) (advertised netip.Addr, official bool) {
	if !t.Contains(ip) {
		return ip.Unmap(), false
	}
	if t.public.IsValid() {
		return t.public, true
	}
	return ip.Unmap(), true
}

// resolveRemoteAddr extracts the transport-level peer address from the
// request. Forwarded headers are deliberately ignored: behind a proxy
// every connection would look like the proxy, and a spoofable header
// must never decide trust.
func resolveRemoteAddr(r *http.Request) (netip.Addr, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unparseable remote address %q: %w", r.RemoteAddr, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("unparseable remote address %q: %w", r.RemoteAddr, err)
	}
	return addr.Unmap(), nil
}

// DetectPublicAddr finds the address of the interface used for
// outbound traffic. No packet is sent; a connected UDP socket only
// performs a route lookup. Behind NAT this yields the private address,
// so deployments there should set trust.public_address instead.
func DetectPublicAddr() (netip.Addr, error) {
	conn, err := net.Dial("udp", "1.1.1.1:53")
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unparseable local address %v", udpAddr.IP)
	}
	return addr.Unmap(), nil
}
