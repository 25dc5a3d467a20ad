package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/RonIovine/pshell-sub001/pkg/registry"
	"github.com/RonIovine/pshell-sub001/pkg/token"
)

const traceUsage = "on | off | level <name> [<name>...] | default | show | " +
	"file <name>[:<linelo>-<linehi>] ... | function <name> ... | thread <name> ... | local on|off"

// InstallCommands registers the `trace` command into reg, the engine's
// shell surface (spec 4.7 "Shell surface"). Only installed when the Trace
// Filter Engine is linked into the host program, matching the original
// library's optional-module design ("this module can be omitted in the
// build of the pshell library if this functionality is not desired").
func InstallCommands(reg *registry.Registry, e *Engine) error {
	return reg.Add(&registry.Entry{
		Keyword:         "trace",
		Description:     "control the dynamic trace filter",
		Usage:           traceUsage,
		MinArgs:         1,
		MaxArgs:         registry.MaxArgs,
		ShowUsageOnHelp: true,
		Handler: func(ctx *registry.Context, argv []string) {
			e.dispatch(ctx, argv)
		},
	})
}

func (e *Engine) dispatch(ctx *registry.Context, argv []string) {
	switch argv[0] {
	case "on":
		e.SetEnabled(true)
		ctx.Printf("trace enabled\n")

	case "off":
		e.SetEnabled(false)
		ctx.Printf("trace disabled\n")

	case "level":
		if len(argv) < 2 {
			ctx.Printf("%s\n", traceUsage)
			return
		}
		if err := e.SetLevel(argv[1:]...); err != nil {
			ctx.Printf("ERROR: %v\n", err)
			return
		}
		ctx.Printf("level set to: %s\n", strings.Join(argv[1:], " "))

	case "default":
		e.ResetDefault()
		ctx.Printf("mask reset to default\n")

	case "show":
		ctx.Printf("%s", e.show())

	case "file":
		if len(argv) < 2 {
			ctx.Printf("%s\n", traceUsage)
			return
		}
		for _, spec := range argv[1:] {
			file, ranges, err := parseFileSpec(spec)
			if err != nil {
				ctx.Printf("ERROR: %v\n", err)
				continue
			}
			e.AddFileFilter(file, ranges...)
		}

	case "function":
		if len(argv) < 2 {
			ctx.Printf("%s\n", traceUsage)
			return
		}
		e.AddFunctionFilter(argv[1:]...)

	case "thread":
		if len(argv) < 2 {
			ctx.Printf("%s\n", traceUsage)
			return
		}
		e.AddThreadFilter(argv[1:]...)

	case "local":
		if len(argv) != 2 || (argv[1] != "on" && argv[1] != "off") {
			ctx.Printf("%s\n", traceUsage)
			return
		}
		e.SetLocalFilter(argv[1] == "on")

	default:
		ctx.Printf("ERROR: unknown trace sub-command %q\n%s\n", argv[0], traceUsage)
	}
}

// parseFileSpec parses "name[:linelo-linehi]" per spec 4.7's `trace file`
// syntax.
func parseFileSpec(spec string) (string, []LineRange, error) {
	name, rangeStr, hasRange := strings.Cut(spec, ":")
	if !hasRange {
		return name, nil, nil
	}

	lo, hi, found := strings.Cut(rangeStr, "-")
	if !found || !token.IsDecimal(lo) || !token.IsDecimal(hi) {
		return "", nil, fmt.Errorf("invalid line range %q", rangeStr)
	}
	loN, _ := strconv.Atoi(lo)
	hiN, _ := strconv.Atoi(hi)
	return name, []LineRange{{Lo: loN, Hi: hiN}}, nil
}

// show renders the full engine state for `trace show`.
func (e *Engine) show() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder

	fmt.Fprintf(&b, "trace: enabled=%v local=%v\n", e.enabled, e.localFilterOn)

	names := make([]string, 0, len(e.levels))
	for n := range e.levels {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(&b, "levels:\n")
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, n := range names {
		lvl := e.levels[n]
		on := !lvl.IsMaskable || e.currentMask.Test(lvl.Value)
		fmt.Fprintf(tw, "  %s\tvalue=%d\tmaskable=%v\ton=%v\n", lvl.Name, lvl.Value, lvl.IsMaskable, on)
	}
	tw.Flush()

	if len(e.fileFilters) > 0 {
		fmt.Fprintf(&b, "file filters:\n")
		for f, ranges := range e.fileFilters {
			fmt.Fprintf(&b, "  %s %v\n", f, ranges)
		}
	}
	if len(e.functionFilters) > 0 {
		fmt.Fprintf(&b, "function filters: %s\n", joinKeys(e.functionFilters))
	}
	if len(e.threadFilters) > 0 {
		fmt.Fprintf(&b, "thread filters: %s\n", joinKeys(e.threadFilters))
	}

	return b.String()
}

func joinKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}
