package shell

import (
	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/readline"
)

// runREPL drives one interactive session to completion: prompt, read a
// line, dispatch it, write the response, repeat until the editor reports
// EOF, an idle timeout, or the "quit" built-in is invoked. It is shared by
// the stream (TCP) and in-process local transports, which differ only in
// which readline.Editor they hand in (spec "Shell Server": dispatch
// algorithm is common to all four transports).
func (s *Server) runREPL(ed readline.Editor, write func(string)) {
	defer ed.Close()

	ed.SetCompleter(func(line string) []string { return s.Registry.Keywords() })

	for s.IsRunning() {
		line, err := ed.GetInput(s.Prompt)
		if err == readline.ErrIdleTimeout {
			log.Infoln("session idle timeout, closing")
			return
		}
		if err == readline.ErrEOF || err != nil {
			return
		}

		if line == "" {
			continue
		}
		if line == "quit" {
			return
		}

		_, resp := s.Registry.Dispatch(line)
		write(resp)
	}
}
