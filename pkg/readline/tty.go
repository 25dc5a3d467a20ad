package readline

import (
	"io"
	"time"

	"github.com/peterh/liner"
)

// TTYEditor drives the Readline Core over the host process's own
// controlling terminal, via github.com/peterh/liner -- the same library
// the teacher's miniclient.Attach uses for its interactive REPL.
type TTYEditor struct {
	state    *liner.State
	hist     *History
	style    CompletionStyle
	idleMS   int64
	complete Completer
}

func NewTTYEditor() *TTYEditor {
	s := liner.NewLiner()
	s.SetCtrlCAborts(true)

	e := &TTYEditor{state: s, hist: NewHistory(100), style: Fast}
	s.SetTabCompletionStyle(liner.TabPrints)
	s.SetCompleter(func(line string) []string {
		if e.complete == nil {
			return nil
		}
		return e.complete(line)
	})

	return e
}

func (e *TTYEditor) SetCompleter(c Completer) { e.complete = c }

func (e *TTYEditor) SetCompletionStyle(s CompletionStyle) {
	e.style = s
	switch s {
	case Classic:
		// liner has no exact "beep once, print on second tab" mode; the
		// closest analogue is cycling candidates rather than printing
		// them all immediately.
		e.state.SetTabCompletionStyle(liner.TabCircular)
	default:
		e.state.SetTabCompletionStyle(liner.TabPrints)
	}
}

func (e *TTYEditor) SetIdleTimeout(ms int64) { e.idleMS = ms }

func (e *TTYEditor) History() *History { return e.hist }

func (e *TTYEditor) GetInput(prompt string) (string, error) {
	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		line, err := e.state.Prompt(prompt)
		ch <- result{line, err}
	}()

	if e.idleMS <= 0 {
		r := <-ch
		return e.finish(r.line, r.err)
	}

	select {
	case r := <-ch:
		return e.finish(r.line, r.err)
	case <-time.After(time.Duration(e.idleMS) * time.Millisecond):
		return "", ErrIdleTimeout
	}
}

func (e *TTYEditor) finish(line string, err error) (string, error) {
	if err == liner.ErrPromptAborted {
		return "", nil
	}
	if err == io.EOF {
		return "", ErrEOF
	}
	if err != nil {
		return "", err
	}

	e.hist.Append(line)
	e.state.AppendHistory(line)
	e.hist.ResetCursor()

	return line, nil
}

func (e *TTYEditor) Close() error { return e.state.Close() }
