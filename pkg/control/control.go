// Package control implements the Control Client: a session table keyed by
// opaque session id, a request/response mirror of the Shell Server's Wire
// Message protocol, and multicast groups that fan a command out to many
// sessions at once (spec section "Control Client").
//
// It is grounded on pkg/miniclient's Conn/session shape, generalized from a
// single fixed local-socket target to a multi-session, multi-transport
// table, and on the aggregator pattern described in
// original_source/c/src/PshellAggregator.cc.
package control

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RonIovine/pshell-sub001/pkg/config"
	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
	"github.com/RonIovine/pshell-sub001/pkg/shell"
	"github.com/RonIovine/pshell-sub001/pkg/wire"
)

// defaultHandshakeTimeout bounds the version/payload-size negotiation when
// Connect is not given a usable defaultTimeout to borrow.
const defaultHandshakeTimeout = 5 * time.Second

// Result mirrors PshellControlResults: the first three are echoed from the
// remote dispatch result, the rest are generated locally by the control
// side (original_source/include/PshellControl.h).
type Result int

const (
	Success Result = iota
	NotFound
	InvalidArgCount
	SendFailure
	SelectFailure
	ReceiveFailure
	Timeout
	NotConnected
)

func (r Result) String() string {
	switch r {
	case Success:
		return "PSHELL_COMMAND_SUCCESS"
	case NotFound:
		return "PSHELL_COMMAND_NOT_FOUND"
	case InvalidArgCount:
		return "PSHELL_COMMAND_INVALID_ARG_COUNT"
	case SendFailure:
		return "PSHELL_SOCKET_SEND_FAILURE"
	case SelectFailure:
		return "PSHELL_SOCKET_SELECT_FAILURE"
	case ReceiveFailure:
		return "PSHELL_SOCKET_RECEIVE_FAILURE"
	case Timeout:
		return "PSHELL_SOCKET_TIMEOUT"
	case NotConnected:
		return "PSHELL_SOCKET_NOT_CONNECTED"
	default:
		return "PSHELL_UNKNOWN"
	}
}

// InvalidSID is returned by Connect on failure (PSHELL_INVALID_SID).
const InvalidSID = 0xFFFF

// UnixServer requests a local-socket session instead of UDP, mirroring
// PSHELL_UNIX_SERVER (port 0 is not a valid UDP port anyway).
const UnixServer = 0

var (
	ErrUnknownSession   = errors.New("control: unknown session")
	ErrResolveFailed    = errors.New("control: could not resolve host")
	ErrHandshakeTimeout = errors.New("control: version handshake timed out")
)

// special remote-host names (spec 4.6 "connect").
const (
	hostLocalhost = "localhost"
	hostMyHost    = "myhost"
	hostAnyHost   = "anyhost"
	hostAnyBcast  = "anybcast"
)

// session is one entry in the Control Client's session table.
type session struct {
	sid            uint16
	controlName    string
	conn           net.Conn
	destAddr       string
	sourcePath     string // non-empty only for a local-socket session's own /tmp bind
	defaultTimeout time.Duration
	payloadSize    int // negotiated via QUERY_PAYLOAD_SIZE during the handshake
	seq            uint32
	mu             sync.Mutex
}

func (s *session) nextSeq() uint32 { return atomic.AddUint32(&s.seq, 1) }

// handshake performs the QUERY_VERSION exchange every Shell Server datagram
// transport requires before it will answer anything else
// (pkg/shell/datagram.go's dgramTransport.handle refuses UserCommand and
// ControlCommand until its session is verified), then QUERY_PAYLOAD_SIZE to
// learn the negotiated chunk size. Connect calls this before a sid is ever
// handed out, so no caller can reach sendCommand against an unverified
// session.
func (s *session) handshake(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	seq := s.nextSeq()
	req := &wire.Message{Type: wire.QueryVersion, RespNeeded: true, Seq: seq, Payload: fmt.Sprint(shell.ProtocolVersion)}
	if _, err := s.conn.Write(req.Marshal()); err != nil {
		return fmt.Errorf("control: version handshake send: %w", err)
	}

	resp, err := s.readHandshakeResponse(seq, timeout)
	if err != nil {
		return fmt.Errorf("control: version handshake: %w", err)
	}
	if resp.Payload != fmt.Sprint(shell.ProtocolVersion) {
		return fmt.Errorf("control: version handshake: %s", resp.Payload)
	}

	seq = s.nextSeq()
	req = &wire.Message{Type: wire.QueryPayloadSize, RespNeeded: true, Seq: seq}
	if _, err := s.conn.Write(req.Marshal()); err != nil {
		return fmt.Errorf("control: payload-size handshake send: %w", err)
	}

	resp, err = s.readHandshakeResponse(seq, timeout)
	if err != nil {
		return fmt.Errorf("control: payload-size handshake: %w", err)
	}
	if n, err := strconv.Atoi(resp.Payload); err == nil {
		s.payloadSize = n
	}

	return nil
}

func (s *session) readHandshakeResponse(seq uint32, timeout time.Duration) (*wire.Message, error) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer s.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, wire.MaxPayloadSize+wire.HeaderSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrHandshakeTimeout
		}
		return nil, err
	}

	resp, err := wire.Unmarshal(buf[:n])
	if err != nil {
		return nil, err
	}
	if resp.Seq != seq {
		return nil, fmt.Errorf("unexpected seq %d, want %d", resp.Seq, seq)
	}
	return resp, nil
}

// Client owns the session table and multicast group map (spec "Control
// Session" / "Multicast Group" data model entries). The zero value is not
// usable; use NewClient.
type Client struct {
	mu        sync.Mutex
	sessions  map[uint16]*session
	nextSID   uint16
	multicast map[string][]uint16 // keyword -> ordered sids, registration order
}

func NewClient() *Client {
	return &Client{
		sessions:  make(map[uint16]*session),
		multicast: make(map[string][]uint16),
	}
}

// resolveHost maps the spec's special remote names to a dial target.
func resolveHost(remote string) (string, error) {
	switch remote {
	case hostLocalhost:
		return "127.0.0.1", nil
	case hostMyHost:
		ifaces, err := net.InterfaceAddrs()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrResolveFailed, err)
		}
		for _, a := range ifaces {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
		return "127.0.0.1", nil
	case hostAnyHost:
		return "0.0.0.0", nil
	case hostAnyBcast:
		return "255.255.255.255", nil
	default:
		if net.ParseIP(remote) != nil {
			return remote, nil
		}
		addrs, err := net.LookupHost(remote)
		if err != nil || len(addrs) == 0 {
			return "", fmt.Errorf("%w: %s", ErrResolveFailed, remote)
		}
		return addrs[0], nil
	}
}

// Connect opens a session to a remote Shell Server: UDP when port != 0,
// a local (UNIX datagram) socket when port == UnixServer, in which case
// remote names the server's bound /tmp path and the client binds its own
// ephemeral /tmp socket (spec "Filesystem sockets": "clients bind
// /tmp/pshellControlClient<rand>").
//
// A pshell-control.conf stanza for controlName overrides remote and port,
// and replaces defaultTimeout only with a non-zero timeout= value;
// timeout="none", which config.LoadControl reports as 0, leaves
// defaultTimeout as passed.
func (c *Client) Connect(controlName, remote string, port int, defaultTimeout time.Duration) (uint16, error) {
	var conn net.Conn
	var dest string
	var sourcePath string

	if overlay, ok := config.LoadControl(controlName); ok {
		if overlay.IsUnix {
			remote, port = overlay.Unix, UnixServer
		} else if overlay.UDP != "" {
			remote = overlay.UDP
			if overlay.Port != 0 {
				port = overlay.Port
			}
		}
		if overlay.Timeout != 0 {
			defaultTimeout = time.Duration(overlay.Timeout) * time.Millisecond
		}
	}

	if port == UnixServer {
		path := filepath.Join(os.TempDir(), remote)
		sourcePath = filepath.Join(os.TempDir(), "pshellControlClient"+uuid.NewString()[:8])
		os.Remove(sourcePath)

		laddr := &net.UnixAddr{Name: sourcePath, Net: "unixgram"}
		raddr := &net.UnixAddr{Name: path, Net: "unixgram"}

		uconn, err := net.DialUnix("unixgram", laddr, raddr)
		if err != nil {
			return InvalidSID, fmt.Errorf("%w: %v", ErrResolveFailed, err)
		}
		conn = uconn
		dest = path
	} else {
		host, err := resolveHost(remote)
		if err != nil {
			return InvalidSID, err
		}
		dest = net.JoinHostPort(host, strconv.Itoa(port))

		uconn, err := net.Dial("udp", dest)
		if err != nil {
			return InvalidSID, fmt.Errorf("%w: %v", ErrResolveFailed, err)
		}
		conn = uconn
	}

	sess := &session{
		controlName:    controlName,
		conn:           conn,
		destAddr:       dest,
		sourcePath:     sourcePath,
		defaultTimeout: defaultTimeout,
		payloadSize:    wire.DefaultPayloadSize,
	}

	if err := sess.handshake(defaultTimeout); err != nil {
		conn.Close()
		if sourcePath != "" {
			os.Remove(sourcePath)
		}
		return InvalidSID, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sid := c.allocSID()
	sess.sid = sid
	c.sessions[sid] = sess

	return sid, nil
}

// allocSID picks a free slot via random probe over a bounded table, per
// spec "Control Session": "creation picks a free slot (random probe) and
// returns its index." Must be called with c.mu held.
func (c *Client) allocSID() uint16 {
	for {
		sid := uint16(rand.Intn(InvalidSID))
		if _, taken := c.sessions[sid]; !taken {
			return sid
		}
	}
}

func (c *Client) get(sid uint16) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[sid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, sid)
	}
	return s, nil
}

// Disconnect tears down one session's socket and any /tmp bind it owns.
func (c *Client) Disconnect(sid uint16) error {
	c.mu.Lock()
	s, ok := c.sessions[sid]
	if ok {
		delete(c.sessions, sid)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSession, sid)
	}
	return s.close()
}

func (s *session) close() error {
	err := s.conn.Close()
	if s.sourcePath != "" {
		os.Remove(s.sourcePath)
	}
	return err
}

// DisconnectAll tears down every session (spec "called upon program
// termination ... especially important ... for a unix server").
func (c *Client) DisconnectAll() error {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[uint16]*session)
	c.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetDefaultTimeout overrides a session's default response timeout.
func (c *Client) SetDefaultTimeout(sid uint16, d time.Duration) error {
	s, err := c.get(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.defaultTimeout = d
	s.mu.Unlock()
	return nil
}

// SendCommand formats and sends a CONTROL_COMMAND to sid, waiting up to
// timeout for a response (spec 4.6 "send_command"). A timeout of 0 does
// not wait: the call returns Success as soon as the datagram is sent.
func (c *Client) SendCommand(sid uint16, timeout time.Duration, format string, args ...interface{}) (Result, error) {
	res, _, err := c.sendCommand(sid, timeout, false, format, args...)
	return res, err
}

// SendCommandExtract is SendCommand but also returns the response text on
// Success (spec 4.6 "send_command_extract"). A zero timeout with extract
// collects no bytes, which is a caller misuse, not an error.
func (c *Client) SendCommandExtract(sid uint16, timeout time.Duration, format string, args ...interface{}) (Result, string, error) {
	if timeout == 0 {
		log.Warn("control: SendCommandExtract called with zero timeout, no response will be collected")
	}
	return c.sendCommand(sid, timeout, true, format, args...)
}

func (c *Client) sendCommand(sid uint16, timeout time.Duration, extract bool, format string, args ...interface{}) (Result, string, error) {
	s, err := c.get(sid)
	if err != nil {
		return NotConnected, "", err
	}

	cmd := format
	if len(args) > 0 {
		cmd = fmt.Sprintf(format, args...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq()
	msg := &wire.Message{Type: wire.ControlCommand, RespNeeded: timeout > 0, Seq: seq, Payload: cmd}

	if _, err := s.conn.Write(msg.Marshal()); err != nil {
		return SendFailure, "", fmt.Errorf("control: send: %w", err)
	}

	if timeout <= 0 {
		return Success, "", nil
	}

	return s.waitResponse(seq, timeout, extract)
}

func (s *session) waitResponse(seq uint32, timeout time.Duration, extract bool) (Result, string, error) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer s.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, wire.MaxPayloadSize+wire.HeaderSize)
	var collected string

	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return Timeout, collected, nil
			}
			return ReceiveFailure, collected, fmt.Errorf("control: receive: %w", err)
		}

		msg, err := wire.Unmarshal(buf[:n])
		if err != nil {
			return ReceiveFailure, collected, fmt.Errorf("control: unmarshal: %w", err)
		}
		if msg.Seq != seq {
			continue // stray datagram from a prior, timed-out exchange
		}

		if extract {
			collected += msg.Payload
		}

		if msg.Type == wire.CommandComplete {
			return Success, collected, nil
		}
	}
}

// ExtractCommands sends QUERY_COMMANDS1 and returns the response verbatim,
// for an aggregator's `help` (spec 4.6 "extract_commands").
func (c *Client) ExtractCommands(sid uint16) (string, error) {
	s, err := c.get(sid)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq()
	msg := &wire.Message{Type: wire.QueryCommands1, RespNeeded: true, Seq: seq}
	if _, err := s.conn.Write(msg.Marshal()); err != nil {
		return "", fmt.Errorf("control: send: %w", err)
	}

	timeout := s.defaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	res, text, err := s.waitResponse(seq, timeout, true)
	if err != nil {
		return "", err
	}
	if res != Success {
		return "", fmt.Errorf("control: extract commands: %s", res)
	}
	return text, nil
}

// AddMulticast registers sids under keyword, in call order. Re-adding the
// same (keyword, sid) pair is a no-op (spec "Multicast Group": "Adding a
// session to a group is idempotent on (keyword, sid).").
func (c *Client) AddMulticast(keyword string, sids ...uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.multicast[keyword]
	for _, sid := range sids {
		dup := false
		for _, have := range existing {
			if have == sid {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, sid)
		}
	}
	c.multicast[keyword] = existing
}

// SendMulticast transmits line's command, with respNeeded=false, to every
// member of every multicast group whose keyword matches line's first
// token, in registration order, discarding all responses (spec 4.6
// "send_multicast"). No ordering is promised across groups.
func (c *Client) SendMulticast(line string) {
	keyword := line
	for i, r := range line {
		if r == ' ' || r == '\t' {
			keyword = line[:i]
			break
		}
	}

	c.mu.Lock()
	sids := append([]uint16(nil), c.multicast[keyword]...)
	c.mu.Unlock()

	for _, sid := range sids {
		s, err := c.get(sid)
		if err != nil {
			continue
		}

		s.mu.Lock()
		seq := s.nextSeq()
		msg := &wire.Message{Type: wire.ControlCommand, RespNeeded: false, Seq: seq, Payload: line}
		if _, err := s.conn.Write(msg.Marshal()); err != nil {
			log.Error("control: multicast send to sid %d: %v", sid, err)
		}
		s.mu.Unlock()
	}
}
