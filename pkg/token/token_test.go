package token_test

import (
	"reflect"
	"testing"

	"github.com/RonIovine/pshell-sub001/pkg/token"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in     string
		delims string
		want   []string
	}{
		{"help", " ", []string{"help"}},
		{"  meta  x   y ", " ", []string{"meta", "x", "y"}},
		{"", " ", nil},
		{"a,b,,c", ",", []string{"a", "b", "c"}},
	}

	for _, c := range cases {
		got := token.Tokenize(c.in, c.delims)
		if len(got) == 0 && len(c.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokenize(%q, %q) = %#v, want %#v", c.in, c.delims, got, c.want)
		}
	}
}

func TestClassifiers(t *testing.T) {
	if !token.IsDecimal("-123") || token.IsDecimal("12.3") || token.IsDecimal("") {
		t.Error("IsDecimal failed")
	}
	if !token.IsHex("0xFF", true) || token.IsHex("FF", true) || !token.IsHex("FF", false) {
		t.Error("IsHex failed")
	}
	if !token.IsFloat("-3.14") || token.IsFloat("3") || token.IsFloat("3.") {
		t.Error("IsFloat failed")
	}
	if !token.IsIPv4Addr("192.168.1.1") || token.IsIPv4Addr("256.0.0.1") {
		t.Error("IsIPv4Addr failed")
	}
	if !token.IsIPv4AddrMask("10.0.0.0/24") || token.IsIPv4AddrMask("10.0.0.0/33") {
		t.Error("IsIPv4AddrMask failed")
	}
	if !token.IsAlphaNumeric("abc123") || token.IsAlphaNumeric("abc 123") {
		t.Error("IsAlphaNumeric failed")
	}
}

func TestIsSubstring(t *testing.T) {
	if !token.IsSubstring("se", "settings", 2) {
		t.Error("expected 'se' to match 'settings' with minChars 2")
	}
	if token.IsSubstring("s", "settings", 2) {
		t.Error("expected 's' to be too short to match with minChars 2")
	}
}

func TestGetOption(t *testing.T) {
	if opt, val, ok := token.GetOption("-f5", ""); !ok || opt != "f" || val != "5" {
		t.Errorf("GetOption short failed: %q %q %v", opt, val, ok)
	}
	if opt, val, ok := token.GetOption("rate=10", "rate"); !ok || opt != "rate" || val != "10" {
		t.Errorf("GetOption long failed: %q %q %v", opt, val, ok)
	}
	if _, _, ok := token.GetOption("rate=10", "other"); ok {
		t.Error("expected mismatch to fail")
	}
}

func TestToIntToFloat(t *testing.T) {
	if n, ok := token.ToInt("0x1F"); !ok || n != 31 {
		t.Errorf("ToInt hex failed: %d %v", n, ok)
	}
	if n, ok := token.ToInt("42"); !ok || n != 42 {
		t.Errorf("ToInt decimal failed: %d %v", n, ok)
	}
	if f, ok := token.ToFloat("2.5"); !ok || f != 2.5 {
		t.Errorf("ToFloat failed: %v %v", f, ok)
	}
}
