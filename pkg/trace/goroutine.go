package trace

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineKey stands in for the C library's thread-local storage slot
// (original_source's tf_registerThread/pthread_self): it extracts the
// current goroutine id from its own stack trace header so RegisterThread
// can associate a human name with "whichever goroutine called this".
func goroutineKey() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	// Stack traces begin with "goroutine <id> [running]:".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return ""
	}
	rest := buf[len(prefix):]
	end := bytes.IndexByte(rest, ' ')
	if end < 0 {
		return ""
	}
	id, err := strconv.ParseUint(string(rest[:end]), 10, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(id, 10)
}
