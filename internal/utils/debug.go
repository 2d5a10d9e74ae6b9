package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	debugDir  = "."
	debugFile *os.File
	debugOnce sync.Once
	debugMu   sync.Mutex
)

// ConfigureDebug sets the directory Debug writes its log file into. The
// first Debug call after it opens a new log file there; sync.Once keeps
// later Debug calls on that file until ConfigureDebug is called again.
func ConfigureDebug(dir string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugDir = dir
	debugOnce = sync.Once{}
	debugFile = nil
}

// Debug writes a timestamped message to a run-scoped debug-<ts>.log file
// under the configured directory.
func Debug(format string, args ...any) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	debugOnce.Do(func() {
		debugMu.Lock()
		dir := debugDir
		debugMu.Unlock()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return
		}
		name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
		debugFile, _ = os.Create(filepath.Join(dir, name))
	})
	if debugFile != nil {
		fmt.Fprintf(debugFile, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
		debugFile.Sync()
	}
}

// CleanupLogs removes the oldest debug-*.log files in the configured
// directory until at most keep remain.
func CleanupLogs(keep int) {
	debugMu.Lock()
	dir := debugDir
	debugMu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, "debug-") && strings.HasSuffix(n, ".log") {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	excess := len(names) - keep
	for i := 0; i < excess; i++ {
		os.Remove(filepath.Join(dir, names[i]))
	}
}
