// Package util provides helper functions for logging events and managing virtual serial pairs.
package util

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

var (
	debugMu     sync.RWMutex
	debugTopics = map[string]bool{}
)

// SetupLogger configures the standard logger used by every component.
func SetupLogger() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
	log.SetPrefix("")
}

// EnableDebug switches on debug output for the given topics ("all" enables everything).
func EnableDebug(topics ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	for _, t := range topics {
		debugTopics[t] = true
	}
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	logf("INFO", msg, args...)
}

// Warn prints recoverable problems with timestamp.
func Warn(msg string, args ...any) {
	logf("WARN", msg, args...)
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	logf("ERROR", msg, args...)
}

// Debug prints a message only when its topic was enabled.
func Debug(topic, msg string, args ...any) {
	debugMu.RLock()
	on := debugTopics[topic] || debugTopics["all"]
	debugMu.RUnlock()
	if !on {
		return
	}
	logf("DEBUG", "["+topic+"] "+msg, args...)
}

func logf(level, msg string, args ...any) {
	log.Printf("[%s] %s | %s", level, time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}
