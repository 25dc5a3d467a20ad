package shell

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

// StartUnix binds a datagram/local-socket transport under /tmp (spec
// "Filesystem sockets": "Local-datagram servers bind /tmp/<serverName>
// ... removed on graceful teardown.").
func (s *Server) StartUnix(mode Mode) error {
	path := filepath.Join(os.TempDir(), s.Name)
	os.Remove(path)

	conn, err := net.ListenPacket("unixgram", path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}

	s.addCloser(conn)
	s.mu.Lock()
	s.socketPath = path
	s.mu.Unlock()

	s.ensureBuiltins(registry.TransportUnix)
	t := newDgramTransport(s, conn, "unix:"+path)

	s.run(mode, t.serve)
	return nil
}
