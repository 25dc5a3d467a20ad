package trace_test

import (
	"testing"

	"github.com/RonIovine/pshell-sub001/pkg/trace"
)

func newTestEngine(t *testing.T) *trace.Engine {
	t.Helper()
	e := trace.NewEngine()
	if err := e.AddLevel("ERROR", 0, true, false); err != nil {
		t.Fatalf("AddLevel ERROR: %v", err)
	}
	if err := e.AddLevel("WARN", 1, true, true); err != nil {
		t.Fatalf("AddLevel WARN: %v", err)
	}
	if err := e.AddLevel("INFO", 2, false, true); err != nil {
		t.Fatalf("AddLevel INFO: %v", err)
	}
	e.Init(nil)
	return e
}

func TestDuplicateLevelRejected(t *testing.T) {
	e := trace.NewEngine()
	if err := e.AddLevel("WARN", 1, true, true); err != nil {
		t.Fatalf("AddLevel WARN: %v", err)
	}
	if err := e.AddLevel("WARN", 1, true, true); err == nil {
		t.Fatalf("expected error adding duplicate level")
	}
}

func TestFilterOffWhenDisabled(t *testing.T) {
	e := newTestEngine(t)
	e.SetEnabled(false)
	if e.IsFilterPassed("x.go", 1, "f", "ERROR") {
		t.Fatalf("expected filter to fail when engine disabled")
	}
}

func TestNonMaskableLevelAlwaysPasses(t *testing.T) {
	e := newTestEngine(t)
	if !e.IsFilterPassed("x.go", 1, "f", "ERROR") {
		t.Fatalf("non-maskable level should pass regardless of mask")
	}
}

func TestMaskableLevelGatedByCurrentMask(t *testing.T) {
	e := newTestEngine(t)

	if !e.IsFilterPassed("x.go", 1, "f", "WARN") {
		t.Fatalf("WARN is default-on, expected pass")
	}
	if e.IsFilterPassed("x.go", 1, "f", "INFO") {
		t.Fatalf("INFO is default-off, expected fail")
	}

	if err := e.SetLevel("INFO"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if !e.IsFilterPassed("x.go", 1, "f", "INFO") {
		t.Fatalf("INFO explicitly set, expected pass")
	}
	if e.IsFilterPassed("x.go", 1, "f", "WARN") {
		t.Fatalf("WARN no longer in mask, expected fail")
	}

	e.ResetDefault()
	if !e.IsFilterPassed("x.go", 1, "f", "WARN") {
		t.Fatalf("after ResetDefault, WARN should pass again")
	}
}

func TestLocalityFilterVacuousWhenInactive(t *testing.T) {
	e := newTestEngine(t)
	e.SetLocalFilter(true)
	if !e.IsFilterPassed("x.go", 1, "f", "ERROR") {
		t.Fatalf("no locality filters registered: should pass vacuously")
	}
}

func TestLocalityFilterByFileLineRange(t *testing.T) {
	e := newTestEngine(t)
	e.SetLocalFilter(true)
	e.AddFileFilter("match.go", trace.LineRange{Lo: 10, Hi: 20})

	if e.IsFilterPassed("other.go", 15, "f", "ERROR") {
		t.Fatalf("unfiltered file should fail once a file filter is active")
	}
	if !e.IsFilterPassed("match.go", 15, "f", "ERROR") {
		t.Fatalf("in-range line of a filtered file should pass")
	}
	if e.IsFilterPassed("match.go", 25, "f", "ERROR") {
		t.Fatalf("out-of-range line should fail")
	}
}

func TestWatchEmitsOnChangeAndOnceStopsAfterFiring(t *testing.T) {
	e := newTestEngine(t)

	var emitted []string
	e.Init(func(s string) { emitted = append(emitted, s) })

	val := 0
	e.AddWatch(&trace.Watch{
		Symbol:  "val",
		Format:  "%s changed to %v",
		Control: trace.Once,
		Read:    func() []byte { return []byte{byte(val)} },
	})

	e.IsFilterPassed("x.go", 1, "f", "ERROR") // the first Read differs from the initial nil value, so it fires
	if len(emitted) != 1 {
		t.Fatalf("expected one emit on first evaluation (nil -> value transition), got %d", len(emitted))
	}

	val = 1
	e.IsFilterPassed("x.go", 1, "f", "ERROR")
	// ONCE watch was dropped after first fire, so a second change must not emit again.
	if len(emitted) != 1 {
		t.Fatalf("expected ONCE watch not to re-fire, got %d emits", len(emitted))
	}
}

func TestCallbackFiresOnFalseToTrueTransition(t *testing.T) {
	e := newTestEngine(t)

	var emitted int
	e.Init(func(string) { emitted++ })

	state := false
	e.AddCallback(&trace.Callback{
		Name:     "ready",
		Control:  trace.Continuous,
		Function: func() bool { return state },
	})

	e.IsFilterPassed("x.go", 1, "f", "ERROR")
	if emitted != 0 {
		t.Fatalf("callback false, expected no emit, got %d", emitted)
	}

	state = true
	e.IsFilterPassed("x.go", 1, "f", "ERROR")
	if emitted != 1 {
		t.Fatalf("expected one emit on false->true transition, got %d", emitted)
	}

	e.IsFilterPassed("x.go", 1, "f", "ERROR")
	if emitted != 1 {
		t.Fatalf("staying true should not re-emit for CONTINUOUS, got %d", emitted)
	}
}
