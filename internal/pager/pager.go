// Package pager pipes long command responses in the aggregator's
// interactive session (control.Aggregator.Attach) through $PAGER when they
// would overflow the terminal, adapted from
// pkg/minipager (same Pager interface and line-count threshold), replacing
// its raw syscall.Syscall(SYS_IOCTL) window-size probe with
// golang.org/x/sys/unix.IoctlGetWinsize.
package pager

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	log "github.com/RonIovine/pshell-sub001/pkg/pshelllog"
)

// Pager renders output to the user, paginating it when long.
type Pager interface {
	Page(output string)
}

var Default Pager = &defaultPager{}

type defaultPager struct{}

func (defaultPager) Page(output string) {
	if output == "" {
		return
	}

	rows := termRows()
	if rows == 0 {
		fmt.Println(output)
		return
	}

	lines := strings.Count(output, "\n")
	if lines < 2*rows {
		fmt.Println(output)
		return
	}

	fmt.Printf("-- sending %v lines to $PAGER --\n", lines)

	cmdName := os.Getenv("PAGER")
	if cmdName == "" {
		cmdName = "less"
	}

	cmd := exec.Command(cmdName)
	cmd.Stdin = strings.NewReader(output)
	cmd.Stdout = os.Stdout

	if err := cmd.Run(); err != nil {
		log.Error("pager: %v", err)
	}
}

func termRows() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		log.Debug("pager: ioctl winsize: %v", err)
		return 0
	}
	return int(ws.Row)
}
