package shell

import (
	"fmt"
	"net"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/readline"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

// StartTCP binds a stream/IP transport: a single session at a time, driven
// over the Readline Core, with the spec's 10-minute idle timeout (spec
// "Shell Server": "Stream/IP (TCP): single session ... 10-minute idle
// timeout closing the session.").
func (s *Server) StartTCP(addr string, mode Mode) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSocketBindFailed, err)
	}

	s.addCloser(l)
	s.ensureBuiltins(registry.TransportTCP)

	s.run(mode, func() { s.acceptTCP(l) })
	return nil
}

func (s *Server) acceptTCP(l net.Listener) {
	for s.IsRunning() {
		conn, err := l.Accept()
		if err != nil {
			if s.IsRunning() {
				logTransportErr("tcp", err)
			}
			return
		}

		log.Infoln("tcp: client connected:", conn.RemoteAddr())
		s.serveTCPSession(conn)
		log.Infoln("tcp: client disconnected:", conn.RemoteAddr())
	}
}

func (s *Server) serveTCPSession(conn net.Conn) {
	defer conn.Close()

	ed, err := readline.NewSocketEditor(conn)
	if err != nil {
		logTransportErr("tcp", err)
		return
	}
	ed.SetIdleTimeout(s.IdleTimeout.Milliseconds())
	s.setHistory(ed.History())

	s.runREPL(ed, func(resp string) {
		conn.Write([]byte(resp))
	})
}
