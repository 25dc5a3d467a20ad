package shell

import (
	"fmt"
	"net"
	"sync"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/wire"
)

// dgramSession tracks the per-source-address state a stateless datagram
// transport still needs: whether the version handshake succeeded, and the
// negotiated payload size (spec Data Model "Server State": response_buffer
// lifetime is "exactly one request/response cycle", but payload size
// negotiation and version verification persist for the session).
type dgramSession struct {
	mu       sync.Mutex // serializes dispatch for this source address
	verified bool
	refused  bool
	payload  int
}

// dgramTransport is shared by StartUDP and StartUnix: both speak the same
// Wire Message protocol over a net.PacketConn, differing only in how the
// socket is created and torn down.
type dgramTransport struct {
	s    *Server
	conn net.PacketConn
	name string

	mu       sync.Mutex
	sessions map[string]*dgramSession

	// workers bounds concurrent in-flight dispatches across sessions
	// (spec "Concurrency & Resource Model": "multiple datagram sessions
	// may run concurrently on separate workers").
	workers chan struct{}
}

const maxDatagramWorkers = 16

func newDgramTransport(s *Server, conn net.PacketConn, name string) *dgramTransport {
	return &dgramTransport{
		s:        s,
		conn:     conn,
		name:     name,
		sessions: make(map[string]*dgramSession),
		workers:  make(chan struct{}, maxDatagramWorkers),
	}
}

func (t *dgramTransport) sessionFor(addr string) *dgramSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[addr]
	if !ok {
		sess = &dgramSession{payload: wire.DefaultPayloadSize}
		t.sessions[addr] = sess
	}
	return sess
}

func (t *dgramTransport) serve() {
	buf := make([]byte, wire.MaxPayloadSize+wire.HeaderSize)

	for t.s.IsRunning() {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if t.s.IsRunning() {
				logTransportErr(t.name, err)
			}
			return
		}

		msg, err := wire.Unmarshal(buf[:n])
		if err != nil {
			logTransportErr(t.name, err)
			continue
		}

		sess := t.sessionFor(addr.String())

		select {
		case t.workers <- struct{}{}:
			go func() {
				defer func() { <-t.workers }()
				t.handle(addr, sess, msg)
			}()
		default:
			// Worker pool saturated: handle inline rather than drop.
			t.handle(addr, sess, msg)
		}
	}
}

func (t *dgramTransport) send(addr net.Addr, m *wire.Message) {
	if _, err := t.conn.WriteTo(m.Marshal(), addr); err != nil {
		logTransportErr(t.name, fmt.Errorf("send to %v: %w", addr, err))
	}
}

func (t *dgramTransport) handle(addr net.Addr, sess *dgramSession, msg *wire.Message) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.refused {
		return
	}

	switch msg.Type {
	case wire.QueryVersion:
		clientVersion, ok := parseVersion(msg.Payload)
		if !ok || clientVersion != ProtocolVersion {
			sess.refused = true
			t.send(addr, &wire.Message{Type: wire.QueryVersion, Seq: msg.Seq, Payload: versionMismatchText(clientVersion)})
			log.Warn("%s: refusing session %v: version mismatch", t.name, addr)
			return
		}
		sess.verified = true
		t.send(addr, &wire.Message{Type: wire.QueryVersion, Seq: msg.Seq, Payload: fmt.Sprint(ProtocolVersion)})

	case wire.QueryPayloadSize:
		t.send(addr, &wire.Message{Type: wire.QueryPayloadSize, Seq: msg.Seq, Payload: fmt.Sprint(sess.payload)})

	case wire.UpdatePayloadSize:
		requested, ok := parseVersion(msg.Payload)
		if !ok {
			return
		}
		sess.payload = clampPayloadSize(requested)
		t.send(addr, &wire.Message{Type: wire.UpdatePayloadSize, Seq: msg.Seq, Payload: fmt.Sprint(sess.payload)})

	case wire.QueryName:
		t.send(addr, &wire.Message{Type: wire.QueryName, Seq: msg.Seq, Payload: t.s.Name})

	case wire.QueryBanner:
		t.send(addr, &wire.Message{Type: wire.QueryBanner, Seq: msg.Seq, Payload: t.s.Banner})

	case wire.QueryTitle:
		t.send(addr, &wire.Message{Type: wire.QueryTitle, Seq: msg.Seq, Payload: t.s.Title})

	case wire.QueryPrompt:
		t.send(addr, &wire.Message{Type: wire.QueryPrompt, Seq: msg.Seq, Payload: t.s.Prompt})

	case wire.QueryCommands1:
		t.respondChunked(addr, msg.Seq, sess.payload, t.s.commandListing())

	case wire.QueryCommands2:
		t.respondChunked(addr, msg.Seq, sess.payload, t.s.commandNames())

	case wire.UserCommand, wire.ControlCommand:
		if !sess.verified {
			t.send(addr, &wire.Message{Type: wire.CommandComplete, Seq: msg.Seq, Payload: "ERROR: session not verified, send QUERY_VERSION first\n"})
			return
		}

		flush := func(partial string) {
			if !msg.RespNeeded {
				return
			}
			t.send(addr, &wire.Message{Type: wire.UserCommand, Seq: msg.Seq, Payload: partial})
		}

		_, resp := t.s.Registry.DispatchFlush(msg.Payload, flush)

		if !msg.RespNeeded {
			return
		}

		t.respondChunked(addr, msg.Seq, sess.payload, resp)
	}
}

// respondChunked implements the fragmentation rule: chunks share Seq, only
// the final one carries COMMAND_COMPLETE.
func (t *dgramTransport) respondChunked(addr net.Addr, seq uint32, payloadSize int, resp string) {
	chunks := splitResponse(resp, payloadSize)
	for i, c := range chunks {
		typ := wire.UserCommand
		if i == len(chunks)-1 {
			typ = wire.CommandComplete
		}
		t.send(addr, &wire.Message{Type: typ, Seq: seq, Payload: c})
	}
}
