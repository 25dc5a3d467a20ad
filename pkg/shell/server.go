// Package shell implements the Shell Server: four transport variants
// (datagram/IP, datagram/local-socket, stream/IP, in-process local)
// sharing one dispatcher, response buffer, and built-in command set
// (spec section "Shell Server").
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/readline"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
	"github.com/RonIovine/pshell-sub001/pkg/wire"
)

// ProtocolVersion must match between a Control Client and a Shell Server
// or the session is refused (spec "version gate" testable property).
const ProtocolVersion = 1

// Mode selects whether Start* blocks the caller's goroutine or spawns a
// background worker (spec "Start modes").
type Mode int

const (
	Blocking Mode = iota
	NonBlocking
)

var (
	ErrSocketBindFailed = errors.New("shell: socket bind failed")
	ErrHostResolveFailed = errors.New("shell: host resolve failed")
)

// Server is one Shell Server instance. The zero value is not usable; use
// NewServer.
type Server struct {
	Name   string
	Registry *registry.Registry

	Banner string
	Title  string
	Prompt string

	// IdleTimeout only applies to the stream (TCP) transport (spec
	// "Concurrency & Resource Model": "The TCP shell has a 10-minute
	// idle timeout; UDP/UNIX have none; local has none.").
	IdleTimeout time.Duration

	running         int32
	closers         []io.Closer
	socketPath      string
	wg              sync.WaitGroup
	mu              sync.Mutex
	builtinsAdded   bool
	history         *readline.History
}

func NewServer(name string, reg *registry.Registry) *Server {
	if reg == nil {
		reg = registry.New()
	}
	return &Server{
		Name:        name,
		Registry:    reg,
		Prompt:      name + "> ",
		IdleTimeout: 10 * time.Minute,
	}
}

func (s *Server) IsRunning() bool { return atomic.LoadInt32(&s.running) != 0 }

func (s *Server) markRunning()   { atomic.StoreInt32(&s.running, 1) }
func (s *Server) markNotRunning() { atomic.StoreInt32(&s.running, 0) }

// Stop tears down every transport this Server owns: sockets are closed,
// filesystem sockets removed, and workers joined (spec "Concurrency &
// Resource Model": "Cancellation").
func (s *Server) Stop() error {
	s.markNotRunning()

	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	path := s.socketPath
	s.socketPath = ""
	s.mu.Unlock()

	for _, c := range closers {
		c.Close()
	}
	if path != "" {
		os.Remove(path)
	}

	s.wg.Wait()
	return nil
}

func (s *Server) addCloser(c io.Closer) {
	s.mu.Lock()
	s.closers = append(s.closers, c)
	s.mu.Unlock()
}

// ensureBuiltins installs help/quit/history/batch on first use, per spec
// "Command Registry and Dispatcher": "Built-in commands automatically
// added." Idempotent, since a Server's Start* is expected to be called once;
// a second Start* on the same Server (a different transport kind) leaves
// the first transport's builtins in place rather than erroring on
// re-registration of "help"/"history"/"batch".
func (s *Server) ensureBuiltins(transport registry.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.builtinsAdded {
		return
	}
	s.builtinsAdded = true

	if err := registry.InstallBuiltins(s.Registry, transport, historyAdapter{s}); err != nil {
		log.Error("installing built-in commands: %v", err)
	}
}

// setHistory points the shared `history` built-in at the readline ring of
// whichever interactive session (TCP or local) is currently live.
func (s *Server) setHistory(h *readline.History) {
	s.mu.Lock()
	s.history = h
	s.mu.Unlock()
}

// historyAdapter satisfies registry.History by reading whatever history
// ring setHistory last installed, so the `history` built-in -- registered
// once on a Registry shared across reconnects -- always reflects the live
// session rather than a snapshot taken at install time.
type historyAdapter struct{ s *Server }

func (h historyAdapter) Lines() []string {
	h.s.mu.Lock()
	hist := h.s.history
	h.s.mu.Unlock()

	if hist == nil {
		return nil
	}
	return hist.Lines()
}

// run either blocks the caller (Blocking) or spawns fn in the background
// and returns immediately (NonBlocking), per spec "Start modes".
func (s *Server) run(mode Mode, fn func()) {
	s.markRunning()

	if mode == Blocking {
		fn()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// commandListing renders the QUERY_COMMANDS1 response, used for `help`
// over the wire (it reuses the registry's own help text by dispatching
// "help" locally).
func (s *Server) commandListing() string {
	_, resp := s.Registry.Dispatch("help")
	return resp
}

// commandNames renders QUERY_COMMANDS2: the keyword list delimited by
// '/', for tab completion (spec Data Model: Wire Message).
func (s *Server) commandNames() string {
	return strings.Join(s.Registry.Keywords(), "/")
}

func clampPayloadSize(requested int) int {
	if requested < wire.DefaultPayloadSize {
		return wire.DefaultPayloadSize
	}
	if requested > wire.MaxPayloadSize {
		return wire.MaxPayloadSize
	}
	return requested
}

// splitResponse fragments resp into consecutive chunks no larger than
// payloadSize, matching spec "Response assembly rule": "a response
// larger than the negotiated payload size is split across consecutive
// datagrams with the same seq-num; only the final datagram has
// COMMAND_COMPLETE set."
func splitResponse(resp string, payloadSize int) []string {
	if resp == "" {
		return []string{""}
	}

	var chunks []string
	for len(resp) > payloadSize {
		chunks = append(chunks, resp[:payloadSize])
		resp = resp[payloadSize:]
	}
	chunks = append(chunks, resp)
	return chunks
}

func parseVersion(payload string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	return n, err == nil
}

func versionMismatchText(clientVersion int) string {
	return fmt.Sprintf("ERROR: version mismatch: client=%d server=%d", clientVersion, ProtocolVersion)
}

func logTransportErr(transport string, err error) {
	if err != nil {
		log.Error("%s: %v", transport, err)
	}
}
