package imagesource

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
)

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// EgressPolicy restricts which destinations URL fetches may reach.
type EgressPolicy struct {
	// AllowPrivate permits loopback, private, link-local and other non-public addresses.
	AllowPrivate bool
	// AllowedHosts, when non-empty, lists the only hosts that may be fetched.
	// "*.example.com" matches any subdomain of example.com.
	AllowedHosts []string
}

// CheckHost reports whether a URL host passes the allow-list.
func (p *EgressPolicy) CheckHost(host string) error {
	if len(p.AllowedHosts) == 0 {
		return nil
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, pattern := range p.AllowedHosts {
		pattern = strings.ToLower(pattern)
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return nil
			}
			continue
		}
		if host == pattern {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not in the allow-list", ErrEgressDenied, host)
}

// CheckIP reports whether a resolved address may be dialed.
func (p *EgressPolicy) CheckIP(ip net.IP) error {
	if p.AllowPrivate {
		return nil
	}
	if isRestricted(ip) {
		return fmt.Errorf("%w: address %s is not publicly routable", ErrEgressDenied, ip)
	}
	return nil
}

// control is installed as net.Dialer.Control so the check runs on the address
// actually dialed, after DNS resolution and on every redirect.
func (p *EgressPolicy) control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEgressDenied, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: cannot parse address %q", ErrEgressDenied, host)
	}
	return p.CheckIP(ip)
}

func isRestricted(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	if addr, ok := netip.AddrFromSlice(ip); ok {
		addr = addr.Unmap()
		if sharedAddressSpace.Contains(addr) || (addr.Is4() && addr.As4()[0] == 0) {
			return true
		}
	}
	return false
}
