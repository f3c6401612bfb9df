package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// NetUDP sends over UDP with a single TCP retry on truncation
	NetUDP = "udp"
	// NetTCP sends over TCP only
	NetTCP = "tcp"

	defaultDNSPort = uint16(53)
)

// Upstream is the definition of an external DNS server under test
type Upstream struct {
	Net  string
	Host string
	Port uint16
}

// IsZero returns true for an unconfigured upstream
func (u Upstream) IsZero() bool {
	return u.Host == ""
}

// Address returns the host:port address of the upstream
func (u Upstream) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(int(u.Port)))
}

func (u Upstream) String() string {
	return fmt.Sprintf("%s:%s", u.Net, u.Address())
}

// UnmarshalYAML implements `yaml.Unmarshaler`.
func (u *Upstream) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	upstream, err := ParseUpstream(s)
	if err != nil {
		return err
	}

	*u = upstream

	return nil
}

// ParseUpstream creates a new Upstream from a string in format
// [net:]host[:port], where net is one of udp, tcp (default udp).
func ParseUpstream(upstream string) (Upstream, error) {
	if strings.TrimSpace(upstream) == "" {
		return Upstream{}, nil
	}

	n := NetUDP

	for _, prefix := range []string{NetUDP, NetTCP} {
		if strings.HasPrefix(upstream, prefix+":") {
			n = prefix
			upstream = strings.TrimPrefix(upstream, prefix+":")

			break
		}
	}

	host, portString, err := net.SplitHostPort(upstream)
	if err != nil {
		// no port given, use the default
		return Upstream{Net: n, Host: upstream, Port: defaultDNSPort}, nil
	}

	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return Upstream{}, fmt.Errorf("can't convert port to number (1 - 65535) %w", err)
	}

	return Upstream{Net: n, Host: host, Port: uint16(port)}, nil
}
