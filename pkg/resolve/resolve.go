// Package resolve maps target names to IPv4 addresses.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

var (
	ErrNoAddress = errors.New("no IPv4 address")
	ErrNotIPv4   = errors.New("address is not IPv4")
)

// literal returns host as an IPv4 address if it is an IP literal
func literal(host string) (net.IP, bool, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, false, nil
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, true, nil
	}
	return nil, true, fmt.Errorf("%w: %s", ErrNotIPv4, host)
}

// System resolves through the operating system resolver
type System struct{}

// LookupIPv4 returns the first IPv4 address of host
func (System) LookupIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip, ok, err := literal(host); ok {
		return ip, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoAddress, host)
}

// DNS resolves by sending A queries to a specific server
type DNS struct {
	Server  string // host or host:port, port 53 if omitted
	Timeout time.Duration
}

// NewDNS creates a resolver for server
func NewDNS(server string, timeout time.Duration) *DNS {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &DNS{Server: server, Timeout: timeout}
}

// LookupIPv4 queries the server for host's A records and returns the first.
// A truncated UDP answer is retried over TCP.
func (r *DNS) LookupIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip, ok, err := literal(host); ok {
		return ip, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	server := r.Server
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	resp, err := r.exchange(ctx, "udp", msg, server)
	if err == nil && resp.Truncated {
		resp, err = r.exchange(ctx, "tcp", msg, server)
	}
	if err != nil {
		return nil, err
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s: %s", host, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.To4(), nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoAddress, host)
}

func (r *DNS) exchange(ctx context.Context, network string, msg *dns.Msg, server string) (*dns.Msg, error) {
	client := &dns.Client{
		Net:     network,
		Timeout: r.Timeout,
	}

	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", network, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	return resp, nil
}
