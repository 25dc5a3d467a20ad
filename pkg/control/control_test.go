package control_test

import (
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/RonIovine/pshell-sub001/pkg/control"
	"github.com/RonIovine/pshell-sub001/pkg/registry"
	"github.com/RonIovine/pshell-sub001/pkg/shell"
	"github.com/RonIovine/pshell-sub001/pkg/wire"
)

// fakeServer answers QUERY_VERSION/QUERY_PAYLOAD_SIZE/QUERY_COMMANDS1/
// CONTROL_COMMAND on a bare UDP socket, standing in for a Shell Server so
// control.Client can be exercised without depending on package shell's
// dgramTransport. Like pkg/shell/datagram.go's dgramTransport.handle, it
// only answers commands once the version handshake has set its verified
// flag (it ignores QUERY_COMMANDS1/CONTROL_COMMAND until then, where the
// real server replies with an error), so a test against it actually
// exercises Client.Connect's handshake.
func fakeServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	return fakeServerOpts(t, true)
}

// fakeServerOpts lets TestSendCommandTimeout ask for a server that completes
// the handshake but never answers a subsequent command.
func fakeServerOpts(t *testing.T, answerCommands bool) (addr string, stop func()) {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		verified := false
		buf := make([]byte, 4096)
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			msg, err := wire.Unmarshal(buf[:n])
			if err != nil {
				continue
			}

			switch msg.Type {
			case wire.QueryVersion:
				if msg.Payload != fmt.Sprint(shell.ProtocolVersion) {
					continue
				}
				verified = true
				resp := &wire.Message{Type: wire.QueryVersion, Seq: msg.Seq, Payload: fmt.Sprint(shell.ProtocolVersion)}
				conn.WriteTo(resp.Marshal(), from)
			case wire.QueryPayloadSize:
				resp := &wire.Message{Type: wire.QueryPayloadSize, Seq: msg.Seq, Payload: fmt.Sprint(wire.DefaultPayloadSize)}
				conn.WriteTo(resp.Marshal(), from)
			case wire.QueryCommands1:
				if !verified {
					continue
				}
				resp := &wire.Message{Type: wire.CommandComplete, Seq: msg.Seq, Payload: "echo - echoes args\n"}
				conn.WriteTo(resp.Marshal(), from)
			case wire.ControlCommand:
				if !verified || !msg.RespNeeded || !answerCommands {
					continue
				}
				resp := &wire.Message{Type: wire.CommandComplete, Seq: msg.Seq, Payload: "got: " + msg.Payload}
				conn.WriteTo(resp.Marshal(), from)
			}
		}
	}()

	return conn.LocalAddr().String(), func() {
		conn.Close()
		<-done
	}
}

func TestSendCommandExtractRoundTrip(t *testing.T) {
	addr, stop := fakeServer(t)
	defer stop()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	c := control.NewClient()
	sid, err := c.Connect("test", host, port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.DisconnectAll()

	res, text, err := c.SendCommandExtract(sid, time.Second, "echo %s", "hello")
	if err != nil {
		t.Fatalf("SendCommandExtract: %v", err)
	}
	if res != control.Success {
		t.Fatalf("result = %v, want Success", res)
	}
	if text != "got: echo hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestSendCommandTimeout(t *testing.T) {
	// The server answers the handshake (so Connect succeeds) but never
	// answers an actual command, exercising SendCommand's own timeout path.
	addr, stop := fakeServerOpts(t, false)
	defer stop()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	c := control.NewClient()
	sid, err := c.Connect("silent", host, port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.DisconnectAll()

	res, err := c.SendCommand(sid, 100*time.Millisecond, "noop")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if res != control.Timeout {
		t.Fatalf("result = %v, want Timeout", res)
	}
}

func TestConnectFailsVersionMismatch(t *testing.T) {
	// A server that never verifies (payload never matches) should make
	// Connect itself fail rather than silently hand back a usable sid.
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			msg, err := wire.Unmarshal(buf[:n])
			if err != nil {
				continue
			}
			if msg.Type == wire.QueryVersion {
				resp := &wire.Message{Type: wire.QueryVersion, Seq: msg.Seq, Payload: "ERROR: version mismatch: client=1 server=2"}
				conn.WriteTo(resp.Marshal(), from)
				return
			}
		}
	}()
	defer func() { conn.Close(); <-done }()

	addr := conn.LocalAddr().(*net.UDPAddr)
	c := control.NewClient()
	if _, err := c.Connect("bad-version", addr.IP.String(), addr.Port, time.Second); err == nil {
		t.Fatalf("Connect: expected version mismatch error, got nil")
	}
}

// TestConnectAgainstRealServer exercises Client.Connect/SendCommandExtract
// against an actual shell.Server UDP transport, not the hand-rolled
// fakeServer: it is the regression test for Connect performing the
// QUERY_VERSION handshake dgramTransport.handle requires before it will
// answer anything else.
func TestConnectAgainstRealServer(t *testing.T) {
	reg := registry.New()
	reg.Add(&registry.Entry{
		Keyword: "echo",
		MinArgs: 0,
		MaxArgs: registry.MaxArgs,
		Usage:   "[<args>...]",
		Handler: func(ctx *registry.Context, argv []string) {
			for i, a := range argv {
				if i > 0 {
					ctx.Printf(" ")
				}
				ctx.Printf("%s", a)
			}
		},
	})

	s := shell.NewServer("controlTestServer", reg)

	ln, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("pre-bind probe: %v", err)
	}
	addr := ln.LocalAddr().(*net.UDPAddr)
	ln.Close()

	if err := s.StartUDP(addr.String(), shell.NonBlocking); err != nil {
		t.Fatalf("StartUDP: %v", err)
	}
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)

	c := control.NewClient()
	sid, err := c.Connect("controlTestServer", addr.IP.String(), addr.Port, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.DisconnectAll()

	res, text, err := c.SendCommandExtract(sid, time.Second, "echo hello world")
	if err != nil {
		t.Fatalf("SendCommandExtract: %v", err)
	}
	if res != control.Success {
		t.Fatalf("result = %v, want Success", res)
	}
	if text != "hello world" {
		t.Fatalf("text = %q, want %q", text, "hello world")
	}
}

func TestSendMulticastSkipsUnknownSessions(t *testing.T) {
	c := control.NewClient()
	c.AddMulticast("reset", 1, 2, 3)
	c.AddMulticast("reset", 2, 4)

	// SendMulticast on an unresolvable sid set should not panic; it just
	// silently skips unknown sessions (sid 1-4 were never Connect()-ed).
	c.SendMulticast("reset now")
}
