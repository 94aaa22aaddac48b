// File: endpoint/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// Textual endpoint parsing and resolution to socket-bind specs.

package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-mux/api"
)

// Spec describes one bindable socket: the socket(2) triple plus the
// address to bind or connect to.
type Spec struct {
	Domain   int
	Type     int
	Protocol int
	Addr     unix.Sockaddr
}

// String prints the spec's address in the input grammar: host:port for
// internet addresses, the path for filesystem sockets.
func (s Spec) String() string {
	switch a := s.Addr.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	}
	return "<unresolved>"
}

// Resolve parses text and returns one or more socket specs for the given
// socket type. defaultPort applies when text carries no port. Hostnames
// may yield several alternatives, in resolver order.
func Resolve(text string, sotype int, defaultPort int) ([]Spec, error) {
	if text == "" {
		return nil, api.ErrInvalidEndpoint
	}
	if text[0] == '/' || text[0] == '.' {
		return []Spec{{
			Domain: unix.AF_UNIX,
			Type:   sotype,
			Addr:   &unix.SockaddrUnix{Name: text},
		}}, nil
	}

	host, port, err := splitHostPort(text, defaultPort)
	if err != nil {
		return nil, err
	}

	if ip := net.ParseIP(host); ip != nil {
		spec, err := ipSpec(ip, sotype, port)
		if err != nil {
			return nil, err
		}
		return []Spec{spec}, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("resolving %q: %w", host, api.ErrInvalidEndpoint)
	}
	specs := make([]Spec, 0, len(ips))
	for _, ip := range ips {
		spec, err := ipSpec(ip, sotype, port)
		if err != nil {
			continue
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, api.ErrInvalidEndpoint
	}
	return specs, nil
}

// splitHostPort separates host and port. IPv6 literals must be bracketed;
// an unbracketed string with more than one colon is rejected.
func splitHostPort(text string, defaultPort int) (string, int, error) {
	if strings.HasPrefix(text, "[") {
		end := strings.IndexByte(text, ']')
		if end < 0 {
			return "", 0, api.ErrInvalidEndpoint
		}
		host := text[1:end]
		rest := text[end+1:]
		if rest == "" {
			return host, defaultPort, nil
		}
		if rest[0] != ':' {
			return "", 0, api.ErrInvalidEndpoint
		}
		port, err := parsePort(rest[1:])
		return host, port, err
	}
	switch strings.Count(text, ":") {
	case 0:
		return text, defaultPort, nil
	case 1:
		i := strings.IndexByte(text, ':')
		port, err := parsePort(text[i+1:])
		return text[:i], port, err
	}
	return "", 0, api.ErrInvalidEndpoint
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, api.ErrInvalidEndpoint
	}
	return port, nil
}

func ipSpec(ip net.IP, sotype, port int) (Spec, error) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return Spec{Domain: unix.AF_INET, Type: sotype, Addr: sa}, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip16)
		return Spec{Domain: unix.AF_INET6, Type: sotype, Addr: sa}, nil
	}
	return Spec{}, api.ErrInvalidEndpoint
}
