package shell

import (
	"fmt"
	"net"
	"strconv"

	"github.com/RonIovine/pshell-sub001/pkg/config"
)

// StartConfigured starts the transport named in s.Name's pshell-server.conf
// stanza, if one exists, falling back to defaultType/defaultPort/defaultHost
// otherwise (spec 4.6-adjacent "Config files": "pshell-server.conf:
// per-server-name stanzas, keys port=<n>, host=<hostname>,
// type=udp|unix|tcp|local"; original_source/c/demo/pshellServerDemo.cc:
// "setup our port number, this is the default port number used if our
// serverName is not found in the pshell-server.conf file").
func (s *Server) StartConfigured(defaultType string, defaultHost string, defaultPort int, mode Mode) error {
	typ, host, port := defaultType, defaultHost, defaultPort

	if e, ok := config.LoadServer(s.Name); ok {
		if e.Type != "" {
			typ = e.Type
		}
		if e.Host != "" {
			host = e.Host
		}
		if e.Port != 0 {
			port = e.Port
		}
	}

	switch typ {
	case "udp":
		return s.StartUDP(net.JoinHostPort(host, strconv.Itoa(port)), mode)
	case "unix":
		return s.StartUnix(mode)
	case "tcp":
		return s.StartTCP(net.JoinHostPort(host, strconv.Itoa(port)), mode)
	case "local":
		return s.StartLocal(mode)
	default:
		return fmt.Errorf("shell: unknown transport type %q", typ)
	}
}
