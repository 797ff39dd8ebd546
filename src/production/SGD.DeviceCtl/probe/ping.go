package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Ping methods
const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

const protocolICMP = 1

var (
	// ErrICMPNotPermitted means neither an unprivileged nor a raw ICMP socket could be opened
	ErrICMPNotPermitted = errors.New("icmp sockets are not permitted for this user")
	// ErrResolve wraps name lookup failures
	ErrResolve = errors.New("failed to resolve")
	// ErrNoIPv4 means the host exists but has no IPv4 address to echo
	ErrNoIPv4 = errors.New("no IPv4 address")
)

// PingOptions controls Ping
type PingOptions struct {
	Count    int
	Timeout  time.Duration
	Interval time.Duration
	// FallbackPort is dialed when ICMP is not available
	FallbackPort int
}

// PingResult summarises a reachability test
type PingResult struct {
	Host     string          `json:"host"`
	Addr     string          `json:"addr"`
	Method   string          `json:"method"`
	Sent     int             `json:"sent"`
	Received int             `json:"received"`
	RTTs     []time.Duration `json:"rtts"`
}

// Reachable reports whether at least one probe was answered
func (r PingResult) Reachable() bool {
	return r.Received > 0
}

// Loss returns the packet loss as a percentage
func (r PingResult) Loss() float64 {
	if r.Sent == 0 {
		return 100
	}
	return float64(r.Sent-r.Received) / float64(r.Sent) * 100
}

func (o PingOptions) withDefaults() PingOptions {
	if o.Count <= 0 {
		o.Count = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	return o
}

// Ping sends ICMP echo requests to host. When the user may not open ICMP
// sockets, or the host is IPv6 only, it falls back to timing TCP connects
// to opts.FallbackPort.
func Ping(ctx context.Context, host string, opts PingOptions) (*PingResult, error) {
	opts = opts.withDefaults()

	addr, err := resolveIPv4(ctx, host)
	if errors.Is(err, ErrNoIPv4) && opts.FallbackPort > 0 {
		return TCPPing(ctx, host, opts.FallbackPort, opts)
	}
	if err != nil {
		return nil, err
	}

	result, err := icmpPing(ctx, host, addr, opts)
	if errors.Is(err, ErrICMPNotPermitted) && opts.FallbackPort > 0 {
		return TCPPing(ctx, host, opts.FallbackPort, opts)
	}
	return result, err
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%w: %s is an IPv6 literal", ErrNoIPv4, host)
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err == nil && len(ips) > 0 {
		return ips[0], nil
	}
	if all, lerr := net.DefaultResolver.LookupIP(ctx, "ip", host); lerr == nil && len(all) > 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoIPv4, host)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrResolve, host, err)
	}
	return nil, fmt.Errorf("%w for %s", ErrNoIPv4, host)
}

// listenICMP prefers the unprivileged datagram socket, then a raw socket
func listenICMP() (*icmp.PacketConn, bool, error) {
	if conn, err := icmp.ListenPacket("udp4", "0.0.0.0"); err == nil {
		return conn, true, nil
	}
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, false, ErrICMPNotPermitted
		}
		return nil, false, fmt.Errorf("%w: %v", ErrICMPNotPermitted, err)
	}
	return conn, false, nil
}

func icmpPing(ctx context.Context, host string, addr net.IP, opts PingOptions) (*PingResult, error) {
	conn, datagram, err := listenICMP()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var dst net.Addr = &net.IPAddr{IP: addr}
	if datagram {
		dst = &net.UDPAddr{IP: addr}
	}

	result := &PingResult{Host: host, Addr: addr.String(), Method: MethodICMP}
	id := os.Getpid() & 0xffff
	for seq := 1; seq <= opts.Count; seq++ {
		if seq > 1 {
			if err := sleep(ctx, opts.Interval); err != nil {
				return result, nil
			}
		}
		result.Sent++
		rtt, err := echo(conn, dst, id, seq, datagram, opts.Timeout)
		if err == nil {
			result.Received++
			result.RTTs = append(result.RTTs, rtt)
		}
	}
	return result, nil
}

func echo(conn *icmp.PacketConn, dst net.Addr, id, seq int, datagram bool, timeout time.Duration) (time.Duration, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("gardenctl")},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	if err := conn.SetDeadline(start.Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := conn.WriteTo(b, dst); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		if !sameHost(peer, dst) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if matchesEcho(reply, id, seq, datagram) {
			return time.Since(start), nil
		}
	}
}

// matchesEcho checks Seq, and ID on raw sockets; the kernel rewrites ID on datagram sockets
func matchesEcho(reply *icmp.Message, id, seq int, datagram bool) bool {
	body, ok := reply.Body.(*icmp.Echo)
	if !ok || body.Seq != seq {
		return false
	}
	return datagram || body.ID == id
}

func sameHost(a, b net.Addr) bool {
	ipOf := func(addr net.Addr) net.IP {
		switch v := addr.(type) {
		case *net.IPAddr:
			return v.IP
		case *net.UDPAddr:
			return v.IP
		}
		return nil
	}
	ipA, ipB := ipOf(a), ipOf(b)
	return ipA != nil && ipA.Equal(ipB)
}

// TCPPing times TCP connects to host:port
func TCPPing(ctx context.Context, host string, port int, opts PingOptions) (*PingResult, error) {
	opts = opts.withDefaults()
	target := net.JoinHostPort(host, strconv.Itoa(port))
	result := &PingResult{Host: host, Addr: target, Method: MethodTCP}

	dialer := net.Dialer{Timeout: opts.Timeout}
	for i := 0; i < opts.Count; i++ {
		if i > 0 {
			if err := sleep(ctx, opts.Interval); err != nil {
				return result, nil
			}
		}
		result.Sent++
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			continue
		}
		result.Received++
		result.RTTs = append(result.RTTs, time.Since(start))
		conn.Close()
	}
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
