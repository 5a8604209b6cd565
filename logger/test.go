package logger

import (
	"fmt"
	"sync"
)

// TestLogEntry is a single captured log record.
type TestLogEntry struct {
	Severity string
	Message  string
	Metadata map[string]interface{}
}

// TestLogger captures log entries in memory for assertions in tests.
type TestLogger struct {
	mu       *sync.Mutex
	entries  *[]TestLogEntry
	metadata map[string]interface{}
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a Logger that records every entry. Derived loggers
// created with With or WithPrefix share the same entry slice.
func NewTestLogger() *TestLogger {
	return &TestLogger{mu: &sync.Mutex{}, entries: &[]TestLogEntry{}}
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{})
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{mu: c.mu, entries: c.entries, metadata: kv}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

// Entries returns a snapshot of everything logged so far.
func (c *TestLogger) Entries() []TestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TestLogEntry, len(*c.entries))
	copy(out, *c.entries)
	return out
}

func (c *TestLogger) log(severity string, msg string, args ...interface{}) {
	c.mu.Lock()
	*c.entries = append(*c.entries, TestLogEntry{
		Severity: severity,
		Message:  fmt.Sprintf(msg, args...),
		Metadata: c.metadata,
	})
	c.mu.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.log("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.log("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.log("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.log("WARN", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.log("ERROR", msg, args...) }
