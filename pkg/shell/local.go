package shell

import (
	"fmt"
	"os"

	"github.com/RonIovine/pshell-sub001/pkg/readline"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

// StartLocal drives the dispatcher from the host process's own
// controlling terminal via the Readline Core; there is no socket (spec
// "Shell Server": "In-process local: the dispatcher is driven from the
// host process's controlling terminal ... there is no socket.").
//
// Local has no idle timeout (spec "Concurrency & Resource Model":
// "Timeouts").
func (s *Server) StartLocal(mode Mode) error {
	ed := readline.NewTTYEditor()
	s.setHistory(ed.History())
	s.ensureBuiltins(registry.TransportLocal)

	s.run(mode, func() {
		s.runREPL(ed, func(resp string) { fmt.Fprint(os.Stdout, resp) })
	})
	return nil
}
