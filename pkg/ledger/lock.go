package ledger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock files older than this are assumed to belong to a crashed writer and
// are taken over.
const staleLockAfter = 30 * time.Second

// acquireLock serializes cross-process appends with an O_CREATE|O_EXCL lock
// file. In-process serialization is the appender mutex; this guards against
// a second kernel process on the same ledger.
func acquireLock(path string) (func(), error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, serr := os.Stat(path); serr == nil && time.Since(info.ModTime()) > staleLockAfter {
			_ = os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held past deadline (holder pid %s)", path, lockHolder(path))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func lockHolder(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	if _, err := strconv.Atoi(strings.TrimSpace(string(raw))); err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(raw))
}
