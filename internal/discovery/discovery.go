// Package discovery locates sample servers advertised over mDNS.
package discovery

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// DefaultService is the service type sample servers advertise.
const DefaultService = "_beam1090._tcp"

// Server is one advertised sample server.
type Server struct {
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
	Channels  int // advertised channel count, 0 when absent
	TXT       []string
}

// Addr returns the dial address, preferring an IPv4 endpoint.
func (s Server) Addr() string {
	for _, ip := range s.Addresses {
		if ip4 := ip.To4(); ip4 != nil {
			return net.JoinHostPort(ip4.String(), strconv.Itoa(s.Port))
		}
	}
	if len(s.Addresses) > 0 {
		return net.JoinHostPort(s.Addresses[0].String(), strconv.Itoa(s.Port))
	}
	return net.JoinHostPort(strings.TrimSuffix(s.Hostname, "."), strconv.Itoa(s.Port))
}

// Browse collects service announcements until ctx ends and returns the
// deduplicated servers seen, sorted by hostname and port.
func Browse(ctx context.Context, service string, logger *slog.Logger) ([]Server, error) {
	if service == "" {
		service = DefaultService
	}
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	seen := make(map[string]Server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				srv := serverFromEntry(e)
				seen[fmt.Sprintf("%s|%d", srv.Hostname, srv.Port)] = srv
				logger.Debug("sample server seen",
					"instance", srv.Instance, "addr", srv.Addr(), "channels", srv.Channels)
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-done

	out := make([]Server, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sortServers(out)
	return out, nil
}

func serverFromEntry(e *zeroconf.ServiceEntry) Server {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Server{
		Instance:  unescapeInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		Channels:  channelsFromTXT(e.Text),
		TXT:       append([]string(nil), e.Text...),
	}
}

// unescapeInstance removes zeroconf escape sequences: "\ " => " ".
func unescapeInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

// channelsFromTXT reads the advertised "channels=N" record.
func channelsFromTXT(txt []string) int {
	for _, kv := range txt {
		val, ok := strings.CutPrefix(kv, "channels=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

func sortServers(list []Server) {
	slices.SortFunc(list, func(a, b Server) int {
		if c := cmp.Compare(a.Hostname, b.Hostname); c != 0 {
			return c
		}
		return cmp.Compare(a.Port, b.Port)
	})
}
