package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/RonIovine/pshell-sub001/internal/ranges"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

// Aggregator consolidates the commands of several remote Shell Servers
// into one local Command Registry, the dynamic counterpart to the
// hard-coded pattern in original_source/c/demo/pshellAggregatorDemo.cc: one
// registry entry per connected control name, each handler forwarding its
// argv to that remote server and printing whatever text comes back.
type Aggregator struct {
	Client   *Client
	Registry *registry.Registry

	timeout     time.Duration
	serverNames []string
}

// NewAggregator wires reg so that AddServer-registered control names show
// up as ordinary dispatchable commands.
func NewAggregator(reg *registry.Registry, timeout time.Duration) *Aggregator {
	if reg == nil {
		reg = registry.New()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{Client: NewClient(), Registry: reg, timeout: timeout}
}

// AddServer connects to a remote Shell Server and registers controlName as
// a local command: invoking it forwards argv verbatim to the remote
// server and prints the response (spec 4.6, SPEC_FULL supplement on the
// aggregator pattern).
func (a *Aggregator) AddServer(controlName, remote string, port int) error {
	sid, err := a.Client.Connect(controlName, remote, port, a.timeout)
	if err != nil {
		return fmt.Errorf("aggregator: connect %s: %w", controlName, err)
	}
	a.serverNames = append(a.serverNames, controlName)

	return a.Registry.Add(&registry.Entry{
		Keyword:         controlName,
		Description:     "forward commands to remote server " + controlName,
		Usage:           "[<remote command> [<args>]]",
		MinArgs:         0,
		MaxArgs:         registry.MaxArgs,
		ShowUsageOnHelp: false,
		Handler: func(ctx *registry.Context, argv []string) {
			if len(argv) == 0 || ctx.IsHelp() || (len(argv) > 0 && argv[0] == "help") {
				listing, err := a.Client.ExtractCommands(sid)
				if err != nil {
					ctx.Printf("ERROR: %v\n", err)
					return
				}
				ctx.Printf("%s", listing)
				return
			}

			cmd := strings.Join(argv, " ")
			res, text, err := a.Client.SendCommandExtract(sid, a.timeout, "%s", cmd)
			if err != nil {
				ctx.Printf("ERROR: %v\n", err)
				return
			}
			if res != Success {
				ctx.Printf("ERROR: %s\n", res)
				return
			}
			if text != "" {
				ctx.Printf("%s", text)
			}
		},
	})
}

// Close disconnects every aggregated server.
func (a *Aggregator) Close() error {
	return a.Client.DisconnectAll()
}

// Servers renders the connected control names, compressing any shared
// numeric-suffix naming convention (e.g. many "node1".."node20"-style
// servers) into bracketed range notation; cmd/pshell-aggregator prints it
// at startup.
func (a *Aggregator) Servers() string {
	return ranges.UnsplitList(a.serverNames)
}
