package pshelllog

import (
	"container/ring"
	"fmt"
	"sync"
	"time"
)

// Ring is a bounded, thread-safe log sink suitable for backing a shell
// `history`-style command that dumps recent log lines.
type Ring struct {
	size int

	mu sync.Mutex
	r  *ring.Ring
}

func NewRing(size int) *Ring {
	return &Ring{r: ring.New(size), size: size}
}

// Write implements io.Writer so a Ring can be passed directly to AddLogger.
func (l *Ring) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.r.Value = fmt.Sprintf("%s %s", time.Now().Format("2006/01/02 15:04:05"), string(p))
	l.r = l.r.Next()

	return len(p), nil
}

// Dump returns the buffered lines, oldest first.
func (l *Ring) Dump() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]string, 0, l.size)
	l.r.Do(func(v interface{}) {
		if v == nil {
			return
		}
		res = append(res, v.(string))
	})
	return res
}
