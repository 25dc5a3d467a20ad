// Package registry implements the Command Registry: an ordered table of
// {keyword, handler, description, usage, minArgs, maxArgs,
// showUsageOnHelp} entries, plus the dispatch algorithm that turns a
// tokenized command line into a handler invocation (spec section "Command
// Registry and Dispatcher").
package registry

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/token"
)

// MaxArgs is the hard ceiling on an Entry's MaxArgs (spec invariant
// min_args <= max_args <= 30).
const MaxArgs = 30

var (
	ErrDuplicateKeyword = errors.New("registry: duplicate keyword")
	ErrInvalidUsage     = errors.New("registry: invalid usage")
	ErrTooManyArgs      = errors.New("registry: too many args")

	ErrCommandNotFound = errors.New("command not found")
	ErrInvalidArgCount = errors.New("invalid argument count")
)

// Handler is invoked with argv excluding the command keyword (unless the
// registry was built with IncludeCommandInArgs).
type Handler func(ctx *Context, argv []string)

// Context is passed to a Handler so it can write to the per-request
// response buffer and introspect the current invocation (spec's
// "Variadic handler printing" and "Aggregator duplicate handlers" design
// notes).
type Context struct {
	buf      strings.Builder
	keyword  string
	isHelp   bool
	wheelPos int

	// Flush, when set by the owning transport, is called by Flush() to
	// emit an intermediate frame. Nil on stream/local transports, where
	// Flush is a documented no-op (spec Design Notes, Open Question).
	Flush func(partial string)
}

// Printf appends formatted text to the response buffer.
func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&c.buf, format, args...)
}

// Keyword returns the keyword this invocation was dispatched under. This
// is how a handler registered under multiple keywords (the aggregator use
// case) tells them apart without requiring IncludeCommandInArgs.
func (c *Context) Keyword() string { return c.keyword }

// IsHelp reports whether the current invocation was triggered by a
// trailing "?" or "-h" on a command whose ShowUsageOnHelp is false.
func (c *Context) IsHelp() bool { return c.isHelp }

// ShowUsage emits a command's registered usage to the response buffer.
// Handlers consult IsHelp() to decide whether to call it themselves.
func (c *Context) ShowUsage(usage string) { c.Printf("%s\n", usage) }

// FlushNow emits whatever has accumulated as an intermediate frame. A
// no-op unless the owning transport wired Flush (UDP/UNIX only).
func (c *Context) FlushNow() {
	if c.Flush != nil {
		c.Flush(c.buf.String())
		c.buf.Reset()
	}
}

var wheelGlyphs = [...]byte{'|', '/', '-', '\\'}

// Wheel appends (or starts) a rotating ASCII keepalive tick and flushes --
// used for long commands that would otherwise trip a control client's
// response timeout (spec section "Shell Server", SPEC_FULL supplement 1).
func (c *Context) Wheel(prefix string) {
	c.wheelPos = (c.wheelPos + 1) % len(wheelGlyphs)
	c.Printf("\r%s%c", prefix, wheelGlyphs[c.wheelPos])
	c.FlushNow()
}

// March appends s verbatim and flushes, the non-spinning sibling of Wheel.
func (c *Context) March(s string) {
	c.Printf("%s", s)
	c.FlushNow()
}

// Response returns the accumulated response buffer.
func (c *Context) Response() string { return c.buf.String() }

// Entry is one Command Registry row.
type Entry struct {
	Keyword         string
	Handler         Handler
	Description     string
	Usage           string
	MinArgs         int
	MaxArgs         int
	ShowUsageOnHelp bool
}

func (e *Entry) validate() error {
	if strings.ContainsAny(e.Keyword, " \t\n\r") || e.Keyword == "" {
		return fmt.Errorf("%w: keyword %q contains whitespace", ErrInvalidUsage, e.Keyword)
	}
	if e.MinArgs > e.MaxArgs {
		return fmt.Errorf("%w: minArgs %d > maxArgs %d", ErrInvalidUsage, e.MinArgs, e.MaxArgs)
	}
	if e.MaxArgs > MaxArgs {
		return fmt.Errorf("%w: maxArgs %d exceeds %d", ErrTooManyArgs, e.MaxArgs, MaxArgs)
	}
	if e.Usage == "" && (e.MinArgs != 0 || e.MaxArgs != 0) {
		return fmt.Errorf("%w: no usage set but minArgs/maxArgs non-zero", ErrInvalidUsage)
	}
	return nil
}

// Result is the outcome of a Dispatch call.
type Result int

const (
	Success Result = iota
	NotFound
	InvalidArgCount
)

// Registry is the ordered command table. The zero value is usable.
type Registry struct {
	// AllowDuplicates puts the registry into aggregator mode, where the
	// same keyword may be registered more than once (last registration
	// wins for exact-match purposes, but all are retained for `help`).
	AllowDuplicates bool

	// IncludeCommandInArgs mirrors the build-time
	// INCLUDE_COMMAND_IN_ARGS_LIST flag: when true, argv[0] passed to a
	// Handler is the keyword itself.
	IncludeCommandInArgs bool

	order   []string
	entries map[string][]*Entry
}

func New() *Registry {
	return &Registry{entries: make(map[string][]*Entry)}
}

// Add inserts a new Entry. Fails with ErrDuplicateKeyword unless the
// registry allows duplicates.
func (r *Registry) Add(e *Entry) error {
	if r.entries == nil {
		r.entries = make(map[string][]*Entry)
	}

	if err := e.validate(); err != nil {
		return err
	}

	if _, ok := r.entries[e.Keyword]; ok && !r.AllowDuplicates {
		return fmt.Errorf("%w: %q", ErrDuplicateKeyword, e.Keyword)
	}

	if _, ok := r.entries[e.Keyword]; !ok {
		r.order = append(r.order, e.Keyword)
	}
	r.entries[e.Keyword] = append(r.entries[e.Keyword], e)

	return nil
}

// Lookup returns the most recently registered Entry for keyword.
func (r *Registry) Lookup(keyword string) (*Entry, bool) {
	es, ok := r.entries[keyword]
	if !ok || len(es) == 0 {
		return nil, false
	}
	return es[len(es)-1], true
}

// Keywords returns the registered keywords in registration order.
func (r *Registry) Keywords() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Entries returns every Entry registered under keyword (more than one only
// in aggregator/duplicate-allowed mode).
func (r *Registry) Entries(keyword string) []*Entry {
	return r.entries[keyword]
}

// Dispatch tokenizes line on whitespace, matches argv[0] against the
// registry, validates the argument count, and invokes the handler. It
// never touches a transport -- this is the "run_command" entry point used
// for both remote dispatch and local bootstrap/meta-commands.
func (r *Registry) Dispatch(line string) (Result, string) {
	return r.DispatchFlush(line, nil)
}

// DispatchFlush is Dispatch with a flush callback wired into the Context,
// so a long-running handler's Wheel/March/FlushNow calls actually emit
// intermediate frames. Datagram transports pass their own send function;
// everyone else passes nil, for which FlushNow does nothing and Wheel/March
// only append to the response (spec "Shell Server", SPEC_FULL supplement 1).
func (r *Registry) DispatchFlush(line string, flush func(partial string)) (Result, string) {
	argv := token.Tokenize(line, " \t")
	if len(argv) == 0 {
		return Success, ""
	}

	keyword := argv[0]
	args := argv[1:]

	e, ok := r.Lookup(keyword)
	if !ok {
		log.Debug("dispatch: command not found: %q", keyword)
		return NotFound, "command not found\n"
	}

	if len(args) < e.MinArgs || len(args) > e.MaxArgs {
		if e.ShowUsageOnHelp {
			return InvalidArgCount, e.Usage + "\n"
		}
		return InvalidArgCount, "invalid argument count\n"
	}

	ctx := &Context{keyword: keyword, Flush: flush}

	if len(args) > 0 {
		last := args[len(args)-1]
		if last == "?" || last == "-h" {
			if e.ShowUsageOnHelp {
				return Success, e.Usage + "\n"
			}
			ctx.isHelp = true
		}
	}

	callArgs := args
	if r.IncludeCommandInArgs {
		callArgs = argv
	}

	e.Handler(ctx, callArgs)

	return Success, ctx.Response()
}
