// Command pshelld is a demo host program: it registers a handful of
// sample commands, links the Dynamic Trace Filter Engine, and starts a
// Shell Server on the transport named by -type, in the style of
// original_source/c/demo/pshellServerDemo.cc and
// cmd/minimega_ref/main.go's flag/signal-handling idiom.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
	"github.com/RonIovine/pshell-sub001/pkg/shell"
	"github.com/RonIovine/pshell-sub001/pkg/trace"
)

const banner = "pshelld, a demo Shell Server host"

var (
	f_name    = flag.String("name", "pshellServerDemo", "shell server name, looked up in pshell-server.conf")
	f_type    = flag.String("type", "local", "transport type: udp|unix|tcp|local")
	f_host    = flag.String("host", "localhost", "bind host for udp/tcp")
	f_port    = flag.Int("port", 6001, "bind port for udp/tcp")
	f_version = flag.Bool("version", false, "print version and exit")
)

func usage() {
	fmt.Fprintln(os.Stderr, banner)
	flag.PrintDefaults()
}

func registerSignalHandlers(s *shell.Server) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigs
		s.Stop()
		os.Exit(0)
	}()
}

func installDemoCommands(reg *registry.Registry) {
	reg.Add(&registry.Entry{
		Keyword:     "hello",
		Description: "prints args back, demonstrating variadic printing",
		Usage:       "[<arg1> <arg2> ...]",
		MinArgs:     0,
		MaxArgs:     registry.MaxArgs,
		Handler: func(ctx *registry.Context, argv []string) {
			ctx.Printf("helloWorld: %s\n", strings.Join(argv, " "))
		},
	})

	reg.Add(&registry.Entry{
		Keyword:         "wheel",
		Description:     "spins a keepalive wheel for 3 seconds",
		Usage:           "none",
		ShowUsageOnHelp: true,
		Handler: func(ctx *registry.Context, argv []string) {
			for i := 0; i < 10; i++ {
				ctx.Wheel("spinning ")
				time.Sleep(300 * time.Millisecond)
			}
			ctx.March("\ndone\n")
		},
	})
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.AddLogger("stdout", os.Stdout, log.INFO, true)

	if *f_version {
		fmt.Println(banner)
		os.Exit(0)
	}

	reg := registry.New()
	installDemoCommands(reg)

	engine := trace.NewEngine()
	engine.AddLevel("ERROR", 0, true, false)
	engine.AddLevel("WARN", 1, true, true)
	engine.AddLevel("INFO", 2, false, true)
	engine.Init(func(line string) { fmt.Println(line) })
	if err := trace.InstallCommands(reg, engine); err != nil {
		log.Fatal("installing trace commands: %v", err)
	}

	s := shell.NewServer(*f_name, reg)
	s.Banner = banner
	s.Title = *f_name
	s.Prompt = *f_name + "> "

	registerSignalHandlers(s)

	if err := s.StartConfigured(*f_type, *f_host, *f_port, shell.Blocking); err != nil {
		log.Fatal("starting shell server: %v", err)
	}
}
