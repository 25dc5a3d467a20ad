// Command pshell-aggregator consolidates several remote Shell Servers into
// one interactive shell, the generic (runtime-configurable) counterpart to
// the hard-coded pattern in
// original_source/c/demo/pshellAggregatorDemo.cc: each -server flag adds
// one remote control name as a local command.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/RonIovine/pshell-sub001/pkg/control"
	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

const banner = "pshell-aggregator: consolidated control shell"

// serverList collects repeated -server name@host:port flags.
type serverList []string

func (s *serverList) String() string { return strings.Join(*s, ",") }
func (s *serverList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var (
	f_servers serverList
	f_timeout = flag.Duration("timeout", 5*time.Second, "default per-command response timeout")
)

func usage() {
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr, "  -server name@host:port  add a remote UDP shell server (repeatable)")
	fmt.Fprintln(os.Stderr, "  -server name@socketName add a remote local-socket shell server (port omitted)")
	flag.PrintDefaults()
}

func parseServer(spec string) (name, host string, port int, err error) {
	name, rest, ok := strings.Cut(spec, "@")
	if !ok {
		return "", "", 0, fmt.Errorf("malformed -server %q, want name@host:port", spec)
	}
	host, portStr, ok := strings.Cut(rest, ":")
	if !ok {
		return name, rest, control.UnixServer, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed port in -server %q: %w", spec, err)
	}
	return name, host, port, nil
}

func main() {
	flag.Var(&f_servers, "server", "remote shell server to aggregate, name@host:port or name@socketName")
	flag.Usage = usage
	flag.Parse()

	log.AddLogger("stdout", os.Stdout, log.WARN, true)

	reg := registry.New()
	agg := control.NewAggregator(reg, *f_timeout)

	for _, spec := range f_servers {
		name, host, port, err := parseServer(spec)
		if err != nil {
			log.Fatal("%v", err)
		}
		if err := agg.AddServer(name, host, port); err != nil {
			log.Fatal("%v", err)
		}
		fmt.Printf("aggregated %s\n", name)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		agg.Close()
		os.Exit(0)
	}()

	fmt.Println(banner)
	fmt.Println("connected servers:", agg.Servers())
	agg.Attach("aggregator> ")
	agg.Close()
}
