package control

import (
	"github.com/RonIovine/pshell-sub001/internal/pager"
	"github.com/RonIovine/pshell-sub001/pkg/readline"
)

// Attach drives an interactive session off the aggregator's own registry,
// the generic counterpart to pkg/miniclient's Conn.Attach: a TTY readline
// loop that dispatches locally (into the forwarding commands AddServer
// installed) instead of across one fixed socket.
func (a *Aggregator) Attach(prompt string) {
	ed := readline.NewTTYEditor()
	defer ed.Close()

	ed.SetCompleter(func(string) []string { return a.Registry.Keywords() })

	for {
		line, err := ed.GetInput(prompt)
		if err == readline.ErrEOF || err != nil {
			return
		}
		if line == "" {
			continue
		}
		if line == "quit" || line == "disconnect" {
			return
		}

		_, resp := a.Registry.Dispatch(line)
		pager.Default.Page(resp)
	}
}
