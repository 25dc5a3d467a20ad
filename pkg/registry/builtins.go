package registry

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
)

// Transport tells InstallBuiltins which built-ins to auto-install: `quit`
// only makes sense for TCP/local sessions (spec section "Command Registry
// and Dispatcher": "Built-in commands automatically added").
type Transport int

const (
	TransportUDP Transport = iota
	TransportUnix
	TransportTCP
	TransportLocal
)

// History is the minimal interface InstallBuiltins needs from a readline
// history ring, kept separate so registry doesn't import pkg/readline.
type History interface {
	Lines() []string
}

// InstallBuiltins registers help, quit (TCP/local only), history, and
// batch on r.
func InstallBuiltins(r *Registry, transport Transport, hist History) error {
	if err := r.Add(&Entry{
		Keyword:         "help",
		Description:     "show a list of all registered commands",
		MaxArgs:         0,
		ShowUsageOnHelp: true,
		Handler: func(ctx *Context, argv []string) {
			keywords := r.Keywords()
			sort.Strings(keywords)

			tw := tabwriter.NewWriter(&sbuf{ctx}, 0, 4, 2, ' ', 0)
			for _, k := range keywords {
				e, _ := r.Lookup(k)
				fmt.Fprintf(tw, "%s\t-  %s\n", k, e.Description)
			}
			tw.Flush()
		},
	}); err != nil {
		return err
	}

	if transport == TransportTCP || transport == TransportLocal {
		if err := r.Add(&Entry{
			Keyword:     "quit",
			Description: "close this session",
			Handler:     func(ctx *Context, argv []string) {},
		}); err != nil {
			return err
		}
	}

	if err := r.Add(&Entry{
		Keyword:     "history",
		Description: "show command history",
		Handler: func(ctx *Context, argv []string) {
			if hist == nil {
				return
			}
			for i, l := range hist.Lines() {
				ctx.Printf("%4d  %s\n", i+1, l)
			}
		},
	}); err != nil {
		return err
	}

	if err := r.Add(&Entry{
		Keyword:         "batch",
		Description:     "run commands from a file",
		Usage:           "batch <file>",
		MinArgs:         1,
		MaxArgs:         1,
		ShowUsageOnHelp: true,
		Handler: func(ctx *Context, argv []string) {
			f, err := os.Open(argv[0])
			if err != nil {
				ctx.Printf("ERROR: %v\n", err)
				return
			}
			defer f.Close()

			s := bufio.NewScanner(f)
			for s.Scan() {
				line := s.Text()
				if line == "" || line[0] == '#' {
					continue
				}
				_, resp := r.Dispatch(line)
				ctx.Printf("%s", resp)
			}
		},
	}); err != nil {
		return err
	}

	return nil
}

// sbuf adapts a *Context to an io.Writer so the stdlib fmt machinery (e.g.
// fmt.Fprintf with a tabwriter) can write into its response buffer.
type sbuf struct{ ctx *Context }

func (s *sbuf) Write(p []byte) (int, error) {
	s.ctx.Printf("%s", string(p))
	return len(p), nil
}
