package registry_test

import (
	"strings"
	"testing"

	"github.com/RonIovine/pshell-sub001/pkg/registry"
)

func TestAddDuplicateKeyword(t *testing.T) {
	r := registry.New()
	e := &registry.Entry{Keyword: "foo", Handler: func(*registry.Context, []string) {}}

	if err := r.Add(e); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := r.Add(e); err == nil {
		t.Fatal("expected duplicate keyword error")
	}
}

func TestAddInvalidUsage(t *testing.T) {
	r := registry.New()

	if err := r.Add(&registry.Entry{Keyword: "has space"}); err == nil {
		t.Fatal("expected whitespace-in-keyword error")
	}
	if err := r.Add(&registry.Entry{Keyword: "bad", MinArgs: 3, MaxArgs: 1, Usage: "x"}); err == nil {
		t.Fatal("expected min>max error")
	}
	if err := r.Add(&registry.Entry{Keyword: "toomany", MinArgs: 0, MaxArgs: 31, Usage: "x"}); err == nil {
		t.Fatal("expected too-many-args error")
	}
}

func TestDispatchBasicHelp(t *testing.T) {
	r := registry.New()
	r.Add(&registry.Entry{
		Keyword:     "helloWorld",
		Description: "prints args",
		MinArgs:     0,
		MaxArgs:     20,
		Usage:       "helloWorld [args]...",
		Handler:     func(ctx *registry.Context, argv []string) {},
	})
	registry.InstallBuiltins(r, registry.TransportLocal, nil)

	res, resp := r.Dispatch("help")
	if res != registry.Success {
		t.Fatalf("help dispatch failed: %v", res)
	}
	if !strings.Contains(resp, "helloWorld  -  prints args") {
		t.Fatalf("expected help listing to contain helloWorld entry, got %q", resp)
	}
}

func TestDispatchArgCountFailure(t *testing.T) {
	r := registry.New()
	r.Add(&registry.Entry{
		Keyword:         "meta",
		Usage:           "<a> <b> <c>",
		MinArgs:         3,
		MaxArgs:         3,
		ShowUsageOnHelp: true,
		Handler:         func(ctx *registry.Context, argv []string) { t.Fatal("handler should not run") },
	})

	res, resp := r.Dispatch("meta x y")
	if res != registry.InvalidArgCount {
		t.Fatalf("expected InvalidArgCount, got %v", res)
	}
	if resp != "<a> <b> <c>\n" {
		t.Fatalf("expected usage line, got %q", resp)
	}
}

func TestDispatchNotFound(t *testing.T) {
	r := registry.New()
	res, resp := r.Dispatch("nosuchcommand")
	if res != registry.NotFound || resp != "command not found\n" {
		t.Fatalf("unexpected result: %v %q", res, resp)
	}
}

func TestDispatchWildcardSubstring(t *testing.T) {
	r := registry.New()
	r.Add(&registry.Entry{
		Keyword: "wildcardMatch",
		MinArgs: 1,
		MaxArgs: 1,
		Usage:   "wildcardMatch <arg>",
		Handler: func(ctx *registry.Context, argv []string) {
			if len(argv[0]) >= 2 && strings.HasPrefix("settings", argv[0]) {
				ctx.Printf("argv 'settings' match\n")
				return
			}
			ctx.Printf("ambiguous\n")
		},
	})

	_, resp := r.Dispatch("wildcardMatch se")
	if !strings.Contains(resp, "argv 'settings' match") {
		t.Fatalf("expected match, got %q", resp)
	}
}

func TestAggregatorDuplicateKeywordsAllowed(t *testing.T) {
	r := registry.New()
	r.AllowDuplicates = true

	shared := func(ctx *registry.Context, argv []string) {
		ctx.Printf("invoked as %s\n", ctx.Keyword())
	}

	if err := r.Add(&registry.Entry{Keyword: "on", Handler: shared}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(&registry.Entry{Keyword: "on", Handler: shared}); err != nil {
		t.Fatalf("Add with duplicates allowed should succeed: %v", err)
	}

	_, resp := r.Dispatch("on")
	if resp != "invoked as on\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestIncludeCommandInArgs(t *testing.T) {
	r := registry.New()
	r.IncludeCommandInArgs = true

	var seen []string
	r.Add(&registry.Entry{
		Keyword: "echo",
		MinArgs: 0,
		MaxArgs: 30,
		Usage:   "[<args>...]",
		Handler: func(ctx *registry.Context, argv []string) { seen = argv },
	})

	r.Dispatch("echo a b")
	if len(seen) != 3 || seen[0] != "echo" {
		t.Fatalf("expected argv[0] to be keyword, got %#v", seen)
	}
}
