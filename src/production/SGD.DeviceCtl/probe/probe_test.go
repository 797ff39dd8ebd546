package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

func listen(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// fakeBroker answers every CONNECT with CONNACK, accepting only the given
// credentials. Connections that close before sending a packet are ignored.
func fakeBroker(t *testing.T, username, password string) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				pkt, err := packets.ReadPacket(conn)
				if err != nil {
					return
				}
				connect, ok := pkt.(*packets.ConnectPacket)
				if !ok {
					return
				}
				ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
				ack.ReturnCode = packets.Accepted
				if connect.Username != username || string(connect.Password) != password {
					ack.ReturnCode = packets.ErrRefusedNotAuthorised
				}
				if err := ack.Write(conn); err != nil {
					return
				}
				_, _ = io.Copy(io.Discard, conn)
			}(conn)
		}
	}()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a port that had a listener a moment ago
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestIPv4Addrs(t *testing.T) {
	_, v4, _ := net.ParseCIDR("192.168.1.42/24")
	_, v6, _ := net.ParseCIDR("fe80::1/64")
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("192.168.1.42"), Mask: v4.Mask},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: v6.Mask},
		&net.IPAddr{IP: net.ParseIP("127.0.0.1")},
	}
	assert.Equal(t, []InterfaceAddr{{Interface: "wlan0", Address: "192.168.1.42"}}, ipv4Addrs("wlan0", addrs))
}

func TestHostIPv4sSkipsLoopback(t *testing.T) {
	addrs, err := HostIPv4s()
	require.NoError(t, err)
	for _, a := range addrs {
		assert.False(t, net.ParseIP(a.Address).IsLoopback(), a.Address)
	}
}

func TestTCPPing(t *testing.T) {
	host, port := listen(t)

	res, err := TCPPing(context.Background(), host, port, PingOptions{Count: 2, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, MethodTCP, res.Method)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Received)
	assert.True(t, res.Reachable())
	assert.Zero(t, res.Loss())

	res, err = TCPPing(context.Background(), host, closedPort(t), PingOptions{Count: 1})
	require.NoError(t, err)
	assert.False(t, res.Reachable())
	assert.Equal(t, float64(100), res.Loss())
}

func TestResolveIPv4(t *testing.T) {
	ip, err := resolveIPv4(context.Background(), "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ip.String())

	_, err = resolveIPv4(context.Background(), "::1")
	assert.ErrorIs(t, err, ErrNoIPv4)

	_, err = resolveIPv4(context.Background(), "no-such-host.invalid")
	assert.ErrorIs(t, err, ErrResolve)
}

func TestPing_IPv6FallsBackToTCP(t *testing.T) {
	ln, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		t.Skipf("no IPv6 loopback: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	res, err := Ping(context.Background(), "::1", PingOptions{Count: 1, FallbackPort: port})
	require.NoError(t, err)
	assert.Equal(t, MethodTCP, res.Method)
	assert.True(t, res.Reachable())

	_, err = Ping(context.Background(), "::1", PingOptions{Count: 1})
	assert.ErrorIs(t, err, ErrNoIPv4)
}

func TestSameHost(t *testing.T) {
	dst := &net.IPAddr{IP: net.ParseIP("10.0.0.5")}
	assert.True(t, sameHost(&net.IPAddr{IP: net.ParseIP("10.0.0.5")}, dst))
	assert.True(t, sameHost(&net.UDPAddr{IP: net.ParseIP("10.0.0.5")}, &net.UDPAddr{IP: net.ParseIP("10.0.0.5")}))
	assert.False(t, sameHost(&net.IPAddr{IP: net.ParseIP("10.0.0.9")}, dst))
	assert.False(t, sameHost(nil, dst))
}

func TestMatchesEcho(t *testing.T) {
	reply := &icmp.Message{Type: ipv4.ICMPTypeEchoReply, Body: &icmp.Echo{ID: 77, Seq: 3}}
	assert.True(t, matchesEcho(reply, 77, 3, false))
	assert.False(t, matchesEcho(reply, 78, 3, false))
	assert.True(t, matchesEcho(reply, 78, 3, true))
	assert.False(t, matchesEcho(reply, 77, 4, true))
}

func TestTestBroker_Refused(t *testing.T) {
	port := closedPort(t)
	report := TestBroker(context.Background(), BrokerTarget{Host: "127.0.0.1", Port: port}, time.Second)

	assert.False(t, report.OK())
	assert.False(t, report.TCPOpen)
	assert.Equal(t, FailureRefused, report.Failure)
	assert.NotEmpty(t, report.Suggestions)
}

func TestTestBroker_NotMQTT(t *testing.T) {
	host, port := listen(t)
	report := TestBroker(context.Background(), BrokerTarget{Host: host, Port: port}, time.Second)

	assert.True(t, report.TCPOpen)
	assert.False(t, report.Connected)
	assert.NotEqual(t, FailureNone, report.Failure)
}

func TestTestBroker_Connects(t *testing.T) {
	host, port := fakeBroker(t, "garden", "s3cret")
	target := BrokerTarget{Host: host, Port: port, Username: "garden", Password: "s3cret"}

	report := TestBroker(context.Background(), target, 2*time.Second)
	assert.True(t, report.TCPOpen)
	assert.True(t, report.Connected, report.Error)
	assert.True(t, report.OK())
	assert.Equal(t, FailureNone, report.Failure)
	assert.Empty(t, report.Suggestions)
}

func TestTestBroker_BadCredentials(t *testing.T) {
	host, port := fakeBroker(t, "garden", "s3cret")
	target := BrokerTarget{Host: host, Port: port, Username: "garden", Password: "wrong"}

	report := TestBroker(context.Background(), target, 2*time.Second)
	assert.True(t, report.TCPOpen)
	assert.False(t, report.Connected)
	assert.Equal(t, FailureAuth, report.Failure)
	require.NotEmpty(t, report.Suggestions)
	assert.Contains(t, report.Suggestions[0], "MQTT_USERNAME/MQTT_PASSWORD")
}

func TestClassifyConnectError(t *testing.T) {
	assert.Equal(t, FailureAuth, classifyConnectError(packets.ErrorRefusedBadUsernameOrPassword))
	assert.Equal(t, FailureAuth, classifyConnectError(packets.ErrorRefusedNotAuthorised))
	assert.Equal(t, FailureProtocol, classifyConnectError(errors.New("EOF")))
}

func TestHints(t *testing.T) {
	refused := Hints(FailureRefused, config.ContainerBrokerPort)
	assert.Len(t, refused, 3)
	assert.Contains(t, refused[1], "18883")

	odd := Hints(FailureRefused, 9999)
	assert.Len(t, odd, 4)

	assert.NotEmpty(t, Hints(FailureTimeout, 1883))
	assert.NotEmpty(t, Hints(FailureAuth, 1883))
	assert.Nil(t, Hints(FailureNone, 1883))
}

func TestTargetFromProfile(t *testing.T) {
	target := TargetFromProfile(config.TemplateProfile())
	assert.Equal(t, "192.168.1.100:18883", target.Address())
	assert.Equal(t, "iot_admin", target.Username)
}
