package probe

import (
	"fmt"
	"net"
	"sort"
)

// InterfaceAddr is one IPv4 address bound to a local interface
type InterfaceAddr struct {
	Interface string `json:"interface"`
	Address   string `json:"address"`
}

// HostIPv4s lists the IPv4 addresses of every up, non-loopback interface.
// These are the candidates for MQTT_BROKER when the broker runs on this machine.
func HostIPv4s() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var out []InterfaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, ipv4Addrs(iface.Name, addrs)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out, nil
}

func ipv4Addrs(name string, addrs []net.Addr) []InterfaceAddr {
	var out []InterfaceAddr
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		out = append(out, InterfaceAddr{Interface: name, Address: ip4.String()})
	}
	return out
}
