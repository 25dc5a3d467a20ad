package shell

import (
	"fmt"
	"net"

	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

// StartUDP binds a datagram/IP transport (spec "Shell Server": "Datagram/IP
// (UDP): multi-client, each request is its own message ... No idle
// timeout.").
func (s *Server) StartUDP(addr string, mode Mode) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}

	s.addCloser(conn)
	s.ensureBuiltins(registry.TransportUDP)
	t := newDgramTransport(s, conn, "udp:"+addr)

	s.run(mode, t.serve)
	return nil
}
