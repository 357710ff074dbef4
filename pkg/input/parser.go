package input

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"net"
	"os"
	"slices"
	"strings"

	"golang.org/x/net/idna"
)

// MaxCIDRSize caps how many addresses a single CIDR may expand to.
const MaxCIDRSize = 1 << 16

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrIPv6          = errors.New("IPv6 targets are not supported")
	ErrCIDRTooLarge  = errors.New("CIDR range too large")
)

// Options controls how targets are normalized.
type Options struct {
	// DefaultPort is joined to targets given without a port. When empty,
	// targets must not carry a port (ICMP).
	DefaultPort string
}

// ParseTargets parses command-line targets (hosts, IPs, CIDRs, comma-separated)
func ParseTargets(targets []string, opts Options) ([]string, error) {
	var out []string

	for _, target := range targets {
		for part := range strings.SplitSeq(target, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			expanded, err := parseTarget(part, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
	}

	return out, nil
}

// ParseFile reads targets from a file (one per line, # comments)
func ParseFile(filename string, opts Options) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		expanded, err := parseTarget(line, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, expanded...)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return out, nil
}

func parseTarget(s string, opts Options) ([]string, error) {
	host, port, hasPort := splitPort(s)
	if hasPort && opts.DefaultPort == "" {
		return nil, fmt.Errorf("%w %s: port not allowed", ErrInvalidTarget, s)
	}
	if !hasPort {
		port = opts.DefaultPort
	}

	var hosts []string
	if strings.Contains(host, "/") {
		ips, err := ExpandCIDR(host)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %s: %w", host, err)
		}
		for _, ip := range ips {
			hosts = append(hosts, ip.String())
		}
	} else {
		if err := validHost(host); err != nil {
			return nil, err
		}
		hosts = []string{host}
	}

	if port == "" {
		return hosts, nil
	}
	for i, h := range hosts {
		hosts[i] = net.JoinHostPort(h, port)
	}
	return hosts, nil
}

// splitPort separates "host:port". A bare IPv6 literal is left whole so
// validHost can reject it with ErrIPv6.
func splitPort(s string) (host, port string, ok bool) {
	if strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		return s, "", false
	}
	h, p, err := net.SplitHostPort(s)
	if err != nil {
		return s, "", false
	}
	return h, p, true
}

func validHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() == nil {
			return fmt.Errorf("%w: %s", ErrIPv6, host)
		}
		return nil
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidTarget, host, err)
	}
	// A numeric final label is a malformed address, not a name.
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if last := labels[len(labels)-1]; last == "" || strings.Trim(last, "0123456789") == "" {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, host)
	}
	return nil
}

// IPRange returns an iterator over IPs in a CIDR range
// This enables lazy evaluation and streaming without allocating the full slice
// Example: for ip := range IPRange("192.168.1.0/24") { process(ip) }
func IPRange(cidr string) (iter.Seq[net.IP], error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	if ip.To4() == nil {
		return nil, ErrIPv6
	}
	if ones, bits := ipnet.Mask.Size(); 1<<(bits-ones) > MaxCIDRSize {
		return nil, fmt.Errorf("%w: /%d", ErrCIDRTooLarge, ones)
	}
	start := ip.Mask(ipnet.Mask).To4()

	return func(yield func(net.IP) bool) {
		for currentIP := slices.Clone(start); ipnet.Contains(currentIP); incrementIP(currentIP) {
			if !yield(slices.Clone(currentIP)) {
				return
			}
		}
	}, nil
}

// ExpandCIDR expands a CIDR range into individual IPs
// For streaming use cases, prefer IPRange() to avoid allocating the full slice
func ExpandCIDR(cidr string) ([]net.IP, error) {
	seq, err := IPRange(cidr)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// incrementIP increments an IP address by one
func incrementIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
