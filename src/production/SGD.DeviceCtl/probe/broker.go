package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
)

// FailureKind classifies why a broker test failed
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureResolve  FailureKind = "resolve"
	FailureRefused  FailureKind = "refused"
	FailureTimeout  FailureKind = "timeout"
	FailureAuth     FailureKind = "auth"
	FailureProtocol FailureKind = "protocol"
)

// BrokerTarget is the endpoint and credentials a device would use
type BrokerTarget struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	CAFile   string
}

// TargetFromProfile takes the broker settings of a device profile
func TargetFromProfile(p config.DeviceProfile) BrokerTarget {
	return BrokerTarget{
		Host:     p.MQTTBroker,
		Port:     p.MQTTPort,
		Username: p.MQTTUsername,
		Password: p.MQTTPassword,
	}
}

// Address returns host:port
func (t BrokerTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// BrokerReport is the outcome of TestBroker
type BrokerReport struct {
	Target      string        `json:"target"`
	TCPOpen     bool          `json:"tcp_open"`
	TCPLatency  time.Duration `json:"tcp_latency"`
	Connected   bool          `json:"mqtt_connected"`
	Failure     FailureKind   `json:"failure,omitempty"`
	Error       string        `json:"error,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// OK reports whether the MQTT session was accepted
func (r BrokerReport) OK() bool {
	return r.Connected
}

// TestBroker checks that the port is open, then performs an MQTT CONNECT
// with the target's credentials and disconnects.
func TestBroker(ctx context.Context, t BrokerTarget, timeout time.Duration) BrokerReport {
	report := BrokerReport{Target: t.Address()}

	latency, err := TCPProbe(ctx, t.Host, t.Port, timeout)
	if err != nil {
		report.fail(classifyDialError(err), err, t.Port)
		return report
	}
	report.TCPOpen = true
	report.TCPLatency = latency

	if err := MQTTConnect(t, timeout); err != nil {
		report.fail(classifyConnectError(err), err, t.Port)
		return report
	}
	report.Connected = true
	return report
}

func (r *BrokerReport) fail(kind FailureKind, err error, port int) {
	r.Failure = kind
	r.Error = err.Error()
	r.Suggestions = Hints(kind, port)
}

// TCPProbe dials host:port once and returns the connect time
func TCPProbe(ctx context.Context, host string, port int, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, err
	}
	conn.Close()
	return time.Since(start), nil
}

// MQTTConnect opens and closes one MQTT session
func MQTTConnect(t BrokerTarget, timeout time.Duration) error {
	opts := mqtt.NewClientOptions().
		AddBroker(config.BrokerURL(t.Host, t.Port, t.UseTLS)).
		SetClientID("gardenctl-probe-" + uuid.NewString()[:8]).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)
	if t.Username != "" {
		opts.SetUsername(t.Username)
		opts.SetPassword(t.Password)
	}
	if t.UseTLS {
		tlsCfg, err := config.TLSConfig(t.CAFile)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout + time.Second) {
		return fmt.Errorf("mqtt connect timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	client.Disconnect(250)
	return nil
}

func classifyDialError(err error) FailureKind {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return FailureResolve
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailureRefused
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureRefused
}

func classifyConnectError(err error) FailureKind {
	switch {
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword), errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return FailureAuth
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureProtocol
}

// Hints lists the known causes of a failure, most likely first
func Hints(kind FailureKind, port int) []string {
	firewall := "Check the host firewall allows inbound TCP on the broker port (Windows Defender Firewall, ufw, firewalld)."
	runtime := "Check the container runtime is running and the broker container is up (docker ps)."
	mapping := fmt.Sprintf("Check the docker-compose port mapping: the device must use the published host port. "+
		"The stock compose file publishes %d; a broker outside containers listens on %d.",
		config.ContainerBrokerPort, config.NativeBrokerPort)

	switch kind {
	case FailureResolve:
		return []string{
			"MQTT_BROKER does not resolve; use the IPv4 address printed by 'gardenctl net hostip'.",
		}
	case FailureRefused:
		hints := []string{runtime, mapping}
		if port != config.ContainerBrokerPort && port != config.NativeBrokerPort {
			hints = append(hints, fmt.Sprintf("Port %d is neither %d nor %d; confirm it is the broker's port.",
				port, config.ContainerBrokerPort, config.NativeBrokerPort))
		}
		return append(hints, firewall)
	case FailureTimeout:
		return []string{
			firewall,
			"Check the device and the broker host are on the same network and MQTT_BROKER is that host's current IP.",
			runtime,
		}
	case FailureAuth:
		return []string{
			"The broker rejected MQTT_USERNAME/MQTT_PASSWORD; they must match the broker's configured account.",
		}
	case FailureProtocol:
		return []string{
			"The port answered but did not speak MQTT; check that TLS settings and the port match the broker listener.",
			mapping,
		}
	}
	return nil
}
