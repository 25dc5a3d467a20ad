// Package trace implements the Dynamic Trace Filter Engine: a registry of
// trace levels, a runtime-configurable mask, and per-file/function/thread
// locality filters that gate an application's own trace call sites (spec
// section "Trace Filter Engine").
//
// Grounded on pkg/minilog's Level/filter-list shape, extended to the
// richer file/function/thread/line-range/watchpoint/callback model
// described in original_source/include/TraceFilter.h and
// original_source/c/include/TraceFilter.h. The bit-per-level mask uses
// github.com/bits-and-blooms/bitset, the one pack dependency that targets
// exactly this "named bit in a growable set" shape.
package trace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
)

// Control governs what happens when a Watch or Callback trigger fires
// (original_source's tf_TraceControl: TF_ONCE, TF_CONTINUOUS, TF_ABORT).
type Control int

const (
	Once Control = iota
	Continuous
	Abort
)

var (
	ErrUnknownLevel     = errors.New("trace: unknown level")
	ErrDuplicateLevel   = errors.New("trace: duplicate level name or value")
	ErrAlreadyInitAdded = errors.New("trace: level added after init")
)

// Level is one registered trace level (spec "Trace Level": "{name, value,
// is_default_on, is_maskable}"). All levels must be added before Init;
// after that the set is frozen.
type Level struct {
	Name         string
	Value        uint
	IsDefaultOn  bool
	IsMaskable   bool
}

// LineRange is an inclusive [Lo, Hi] line-number predicate for a file
// filter entry (spec "trace file <name>[:<linelo>-<linehi>]").
type LineRange struct{ Lo, Hi int }

func (r LineRange) contains(line int) bool {
	if r.Lo == 0 && r.Hi == 0 {
		return true // no range given: whole file matches
	}
	return line >= r.Lo && line <= r.Hi
}

// Watch is a memory-watchpoint trigger: on each isFilterPassed call its
// Read function is compared against the last observed value (spec 4.7
// clause 4).
type Watch struct {
	Symbol  string
	Width   int
	Format  string
	Control Control

	Read func() []byte

	file, line int
	function   string
	last       []byte
	fired      bool // ONCE watches stop comparing after firing
}

// Callback is a predicate trigger: invoked on every isFilterPassed call;
// an emit fires on the false->true transition (spec 4.7 clause 5).
type Callback struct {
	Name     string
	Function func() bool
	Control  Control

	file, line int
	function   string
	lastTrue   bool
	fired      bool
}

// EmitFunc is the pluggable "emit formatted log line" callback; the
// formatter/log sink itself is out of scope (spec §1 "Out of scope").
type EmitFunc func(line string)

// Engine is the process-wide Trace Filter State (spec "Trace Filter
// State"). The zero value is not usable; use NewEngine.
type Engine struct {
	mu sync.Mutex

	levels    map[string]*Level
	byValue   map[uint]*Level
	inited    bool

	enabled      bool
	defaultMask  *bitset.BitSet
	currentMask  *bitset.BitSet

	fileFilters     map[string][]LineRange
	functionFilters map[string]bool
	threadFilters   map[string]bool
	localFilterOn   bool

	watches   []*Watch
	callbacks []*Callback

	threadNames map[string]string // goroutine-local id (string key from caller) -> name

	emit EmitFunc
}

func NewEngine() *Engine {
	return &Engine{
		levels:          make(map[string]*Level),
		byValue:         make(map[uint]*Level),
		defaultMask:     bitset.New(64),
		currentMask:     bitset.New(64),
		fileFilters:     make(map[string][]LineRange),
		functionFilters: make(map[string]bool),
		threadFilters:   make(map[string]bool),
		threadNames:     make(map[string]string),
		emit:            func(string) {},
	}
}

// AddLevel registers a trace level. Must be called before Init (spec
// "Trace Level": "All levels are registered before trace_init; after that
// the set is frozen.").
func (e *Engine) AddLevel(name string, value uint, isDefaultOn, isMaskable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inited {
		return ErrAlreadyInitAdded
	}
	if _, ok := e.levels[name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateLevel, name)
	}
	if _, ok := e.byValue[value]; ok {
		return fmt.Errorf("%w: value %d", ErrDuplicateLevel, value)
	}

	lvl := &Level{Name: name, Value: value, IsDefaultOn: isDefaultOn, IsMaskable: isMaskable}
	e.levels[name] = lvl
	e.byValue[value] = lvl

	if isDefaultOn && isMaskable {
		e.defaultMask.Set(value)
	}

	return nil
}

// Init freezes the level set, seeds the current mask from the default
// mask, and sets the emit callback through which passed trace lines are
// written (spec "Out of scope": "the core invokes a pluggable 'emit
// formatted log line' callback").
func (e *Engine) Init(emit EmitFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inited = true
	e.enabled = true
	e.currentMask = e.defaultMask.Clone()
	if emit != nil {
		e.emit = emit
	}
}

// RegisterThread associates the calling goroutine's id with a thread name
// for thread-based trace filtering (spec "register_thread").
func (e *Engine) RegisterThread(threadName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threadNames[goroutineKey()] = threadName
}

func (e *Engine) currentThreadName() string {
	return e.threadNames[goroutineKey()]
}

// SetEnabled turns the filter engine globally on or off (`trace on|off`).
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	e.enabled = on
	e.mu.Unlock()
}

// SetLevel sets the current mask to exactly the named, maskable levels
// (`trace level <name> [<name>...]`).
func (e *Engine) SetLevel(names ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	mask := bitset.New(64)
	for _, n := range names {
		lvl, ok := e.levels[n]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownLevel, n)
		}
		if lvl.IsMaskable {
			mask.Set(lvl.Value)
		}
	}
	e.currentMask = mask
	return nil
}

// ResetDefault restores the current mask to the default mask (`trace
// default`).
func (e *Engine) ResetDefault() {
	e.mu.Lock()
	e.currentMask = e.defaultMask.Clone()
	e.mu.Unlock()
}

// AddFileFilter adds file (optionally restricted to one or more line
// ranges) to the active file locality filter set (`trace file
// <name>[:<linelo>-<linehi>] ...`).
func (e *Engine) AddFileFilter(file string, ranges ...LineRange) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(ranges) == 0 {
		ranges = []LineRange{{}} // zero range: whole file matches
	}
	e.fileFilters[file] = append(e.fileFilters[file], ranges...)
}

// AddFunctionFilter adds function names to the active function locality
// filter set (`trace function <name> ...`).
func (e *Engine) AddFunctionFilter(functions ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range functions {
		e.functionFilters[f] = true
	}
}

// AddThreadFilter adds thread names to the active thread locality filter
// set (`trace thread <name> ...`).
func (e *Engine) AddThreadFilter(threads ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range threads {
		e.threadFilters[t] = true
	}
}

// ClearFilters empties every locality filter, returning to "no locality
// filter active" (vacuously-true) behavior.
func (e *Engine) ClearFilters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileFilters = make(map[string][]LineRange)
	e.functionFilters = make(map[string]bool)
	e.threadFilters = make(map[string]bool)
}

// SetLocalFilter toggles local-filter mode (`trace local on|off`).
func (e *Engine) SetLocalFilter(on bool) {
	e.mu.Lock()
	e.localFilterOn = on
	e.mu.Unlock()
}

func (e *Engine) localityPassed(file string, line int, function string) bool {
	if len(e.fileFilters) == 0 && len(e.functionFilters) == 0 && len(e.threadFilters) == 0 {
		return true // no locality filter active: vacuously satisfied
	}

	if ranges, ok := e.fileFilters[file]; ok {
		for _, r := range ranges {
			if r.contains(line) {
				return true
			}
		}
	}
	if e.functionFilters[function] {
		return true
	}
	if e.threadFilters[e.currentThreadName()] {
		return true
	}
	return false
}

// IsFilterPassed is the single hot-path query every trace call site
// invokes (spec 4.7). It returns true iff the engine is enabled, level is
// admitted by the current mask (or is non-maskable), and, while local
// filtering is on (SetLocalFilter), locality passes;
// it also drives watchpoint and callback evaluation and their emits as a
// side effect, exactly mirroring the original C library's behavior of
// coupling the gate check to trigger evaluation.
func (e *Engine) IsFilterPassed(file string, line int, function string, levelName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false
	}

	lvl, ok := e.levels[levelName]
	if !ok {
		log.Debug("trace: unknown level %q queried", levelName)
		return false
	}

	if lvl.IsMaskable && !e.currentMask.Test(lvl.Value) {
		return false
	}

	if e.localFilterOn && !e.localityPassed(file, line, function) {
		return false
	}

	e.evalWatches()
	e.evalCallbacks()

	return true
}

func (e *Engine) evalWatches() {
	kept := e.watches[:0]
	for _, w := range e.watches {
		cur := w.Read()
		changed := !bytesEqual(cur, w.last)
		w.last = cur

		if changed {
			e.emit(fmt.Sprintf(w.Format, w.Symbol, cur))
			switch w.Control {
			case Once:
				continue // drop: do not keep for future evaluation
			case Abort:
				panic(fmt.Sprintf("trace watch %q triggered abort", w.Symbol))
			}
		}
		kept = append(kept, w)
	}
	e.watches = kept
}

func (e *Engine) evalCallbacks() {
	kept := e.callbacks[:0]
	for _, c := range e.callbacks {
		now := c.Function()
		transitioned := now && !c.lastTrue
		c.lastTrue = now

		if transitioned {
			e.emit(fmt.Sprintf("callback %q fired", c.Name))
			switch c.Control {
			case Once:
				continue
			case Abort:
				panic(fmt.Sprintf("trace callback %q triggered abort", c.Name))
			}
		}
		kept = append(kept, c)
	}
	e.callbacks = kept
}

// AddWatch registers a memory watchpoint (`TF_WATCH` macro equivalent).
func (e *Engine) AddWatch(w *Watch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watches = append(e.watches, w)
}

// AddCallback registers a predicate trigger (`TF_CALLBACK` macro
// equivalent).
func (e *Engine) AddCallback(c *Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, c)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
