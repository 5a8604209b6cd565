package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// JSONLogEntry defines a single structured log line.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type jsonLogger struct {
	prefixes []string
	metadata map[string]interface{}
	writer   io.Writer
	logLevel LogLevel
	ts       *time.Time // for unit testing
}

var _ Logger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	prefixes := make([]string, len(c.prefixes))
	copy(prefixes, c.prefixes)
	metadata := make(map[string]interface{})
	for k, v := range c.metadata {
		metadata[k] = v
	}
	return &jsonLogger{
		prefixes: prefixes,
		metadata: metadata,
		writer:   c.writer,
		logLevel: c.logLevel,
		ts:       c.ts,
	}
}

func (c *jsonLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	return clone
}

func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	clone.prefixes = append(clone.prefixes, prefix)
	return clone
}

func (c *jsonLogger) log(level LogLevel, severity string, msg string, args ...interface{}) {
	if level < c.logLevel {
		return
	}
	ts := time.Now()
	if c.ts != nil {
		ts = *c.ts
	}
	message := fmt.Sprintf(msg, args...)
	if len(c.prefixes) > 0 {
		message = strings.Join(c.prefixes, " ") + " " + message
	}
	entry := JSONLogEntry{
		Timestamp: ts,
		Severity:  severity,
		Message:   message,
		Metadata:  c.metadata,
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: json.Marshal: %v\n", err)
		return
	}
	fmt.Fprintln(c.writer, string(buf))
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) {
	c.log(LevelTrace, "TRACE", msg, args...)
}

func (c *jsonLogger) Debug(msg string, args ...interface{}) {
	c.log(LevelDebug, "DEBUG", msg, args...)
}

func (c *jsonLogger) Info(msg string, args ...interface{}) {
	c.log(LevelInfo, "INFO", msg, args...)
}

func (c *jsonLogger) Warn(msg string, args ...interface{}) {
	c.log(LevelWarn, "WARN", msg, args...)
}

func (c *jsonLogger) Error(msg string, args ...interface{}) {
	c.log(LevelError, "ERROR", msg, args...)
}

// NewJSONLogger returns a new Logger that writes one JSON object per line
// to w. The level defaults to the value of QUERYCACHE_LOG_LEVEL when no
// level is provided.
func NewJSONLogger(w io.Writer, levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{
		metadata: make(map[string]interface{}),
		writer:   w,
		logLevel: level,
	}
}
