package readline

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/ziutek/telnet"
)

const (
	backspace = 0x08
	del       = 0x7f
	bell      = 0x07
)

// SocketEditor drives the Readline Core over an accepted stream-transport
// connection (spec section "Readline Core": "works over either a local
// terminal or an accepted TCP socket"). It wraps the connection with
// github.com/ziutek/telnet so that IAC option-negotiation sequences sent
// by a real telnet client are consumed transparently before any byte
// reaches the line editor (spec Design Notes: "Telnet option
// negotiation").
type SocketEditor struct {
	conn     *telnet.Conn
	r        *bufio.Reader
	hist     *History
	style    CompletionStyle
	idle     time.Duration
	complete Completer

	lastTab bool
}

// NewSocketEditor wraps an already-accepted net.Conn.
func NewSocketEditor(conn net.Conn) (*SocketEditor, error) {
	tc, err := telnet.NewConn(conn)
	if err != nil {
		return nil, err
	}

	return &SocketEditor{
		conn:  tc,
		r:     bufio.NewReader(tc),
		hist:  NewHistory(100),
		style: Fast,
	}, nil
}

func (e *SocketEditor) SetCompleter(c Completer)             { e.complete = c }
func (e *SocketEditor) SetCompletionStyle(s CompletionStyle) { e.style = s }
func (e *SocketEditor) SetIdleTimeout(ms int64) {
	if ms <= 0 {
		e.idle = 0
		return
	}
	e.idle = time.Duration(ms) * time.Millisecond
}
func (e *SocketEditor) History() *History { return e.hist }
func (e *SocketEditor) Close() error      { return e.conn.Close() }

func (e *SocketEditor) write(s string) {
	e.conn.Write([]byte(s))
}

// GetInput implements the Readline Core's IDLE -> EDITING ->
// COMMITTED|TIMED_OUT state machine (spec section "Readline Core") one
// byte at a time.
func (e *SocketEditor) GetInput(prompt string) (string, error) {
	e.write(prompt)

	var line []rune
	cursor := 0

	redraw := func() {
		e.write("\r\x1b[K" + prompt + string(line))
		if cursor < len(line) {
			e.write("\x1b[" + itoa(len(line)-cursor) + "D")
		}
	}

	for {
		if e.idle > 0 {
			e.conn.SetReadDeadline(time.Now().Add(e.idle))
		}

		b, err := e.r.ReadByte()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return "", ErrIdleTimeout
			}
			return "", ErrEOF
		}

		if b != '\t' {
			e.lastTab = false
		}

		switch {
		case b == '\r' || b == '\n':
			// Swallow the LF of a CRLF pair.
			if b == '\r' {
				if next, err := e.r.Peek(1); err == nil && len(next) == 1 && next[0] == '\n' {
					e.r.ReadByte()
				}
			}
			e.write("\r\n")
			committed := string(line)
			if committed != "" {
				e.hist.Append(committed)
				e.hist.ResetCursor()
			}
			return committed, nil

		case b == backspace || b == del:
			if cursor > 0 {
				line = append(line[:cursor-1], line[cursor:]...)
				cursor--
				redraw()
			}

		case b == '\t':
			e.handleTab(prompt, &line, &cursor, redraw)

		case b == 0x1b: // ESC: arrow keys
			e.handleEscape(&line, &cursor, redraw)

		case b >= 0x20 && b < 0x7f:
			line = append(line[:cursor], append([]rune{rune(b)}, line[cursor:]...)...)
			cursor++
			redraw()

		default:
			// Ignore other control bytes (Ctrl-A/E etc. are not in scope).
		}
	}
}

func (e *SocketEditor) handleEscape(line *[]rune, cursor *int, redraw func()) {
	b1, err := e.r.ReadByte()
	if err != nil || b1 != '[' {
		return
	}
	b2, err := e.r.ReadByte()
	if err != nil {
		return
	}

	switch b2 {
	case 'C': // right
		if *cursor < len(*line) {
			*cursor++
			redraw()
		}
	case 'D': // left
		if *cursor > 0 {
			*cursor--
			redraw()
		}
	case 'A': // up: history recall
		if prev, ok := e.hist.Prev(); ok {
			*line = []rune(prev)
			*cursor = len(*line)
			redraw()
		}
	case 'B': // down: history recall
		if next, ok := e.hist.Next(); ok {
			*line = []rune(next)
			*cursor = len(*line)
			redraw()
		}
	}
}

func (e *SocketEditor) handleTab(prompt string, line *[]rune, cursor *int, redraw func()) {
	if e.complete == nil {
		return
	}

	full := string(*line)
	first := full
	if i := strings.IndexByte(full, ' '); i >= 0 {
		first = full[:i]
	}

	candidates := e.complete(first)

	switch e.style {
	case Fast:
		applyCompletion(line, cursor, first, candidates)
		if len(candidates) > 1 {
			e.write("\r\n" + strings.Join(candidates, "  ") + "\r\n")
		}
		redraw()

	case Classic:
		if !e.lastTab {
			e.lastTab = true
			e.write(string(rune(bell)))
			return
		}
		e.lastTab = false
		if len(candidates) > 0 {
			e.write("\r\n" + strings.Join(candidates, "  ") + "\r\n")
		}
		redraw()
	}
}

func applyCompletion(line *[]rune, cursor *int, first string, candidates []string) {
	if len(candidates) != 1 {
		return
	}
	rest := string(*line)[len(first):]
	*line = []rune(candidates[0] + rest)
	*cursor = len(candidates[0])
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
