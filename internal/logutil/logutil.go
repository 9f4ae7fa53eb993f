package logutil

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	logger  = log.NewWithOptions(os.Stderr, log.Options{Prefix: "metapost", ReportTimestamp: true, Level: log.InfoLevel})
	verbose bool
	mu      sync.RWMutex
)

// SetVerbose adjusts the global logging level.
func SetVerbose(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enable
	if enable {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// Verbose reports whether verbose logging is enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Debugf logs a debug message when verbose logging is enabled.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an informational message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// Leveled exposes the shared logger to retryablehttp.
func Leveled() retryablehttp.LeveledLogger {
	return leveled{}
}

type leveled struct{}

func (leveled) Error(msg string, keysAndValues ...any) {
	logger.Error(msg, redactAll(keysAndValues)...)
}

func (leveled) Info(msg string, keysAndValues ...any) {
	logger.Info(msg, redactAll(keysAndValues)...)
}

func (leveled) Debug(msg string, keysAndValues ...any) {
	logger.Debug(msg, redactAll(keysAndValues)...)
}

func (leveled) Warn(msg string, keysAndValues ...any) {
	logger.Warn(msg, redactAll(keysAndValues)...)
}

var tokenParam = regexp.MustCompile(`\b((?:access_token|client_secret|code)=)[^&\s"']+`)

// Redact masks credential query parameters in s.
func Redact(s string) string {
	return tokenParam.ReplaceAllString(s, "${1}REDACTED")
}

func redactAll(keysAndValues []any) []any {
	out := make([]any, len(keysAndValues))
	for i, v := range keysAndValues {
		switch v := v.(type) {
		case string:
			out[i] = Redact(v)
		case error:
			out[i] = Redact(v.Error())
		case fmt.Stringer:
			out[i] = Redact(v.String())
		default:
			out[i] = v
		}
	}
	return out
}
