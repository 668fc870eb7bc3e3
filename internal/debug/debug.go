package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/themescan/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running in MCP mode (set by main)
var MCPMode = false

var (
	logger   = zap.NewNop()
	loggerMu sync.RWMutex
)

// Options controls how NewLogger builds the process logger
type Options struct {
	Verbose bool
	// LogFile, when set, receives log output in addition to stderr.
	LogFile string
}

// SetMCPMode enables MCP mode. Logs never go to stdout in this mode.
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// IsDebugEnabled returns true if debug-level logging was requested via build flag or env
func IsDebugEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	return os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true"
}

// NewLogger builds a production zap logger writing to stderr
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.Verbose || IsDebugEnabled() {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.LogFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.LogFile)
	}
	return cfg.Build()
}

// DefaultLogFile returns a timestamped log path under the temp directory
func DefaultLogFile() (string, error) {
	logDir := filepath.Join(os.TempDir(), "themescan-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	timestamp := time.Now().Format("2006-01-02T150405")
	return filepath.Join(logDir, fmt.Sprintf("themescan-%s.log", timestamp)), nil
}

// SetLogger replaces the process logger. Pass nil to silence logging.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// L returns the process logger
func L() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Sync flushes buffered log entries
func Sync() {
	_ = L().Sync()
}

// Component returns a logger tagged with a component name
func Component(name string) *zap.Logger {
	return L().With(zap.String("component", name))
}

// LogFetch logs a debug-level message for the Shopify transport
func LogFetch(msg string, fields ...zap.Field) {
	Component("fetch").Debug(msg, fields...)
}

// LogScan logs a debug-level message for the scan pipeline
func LogScan(msg string, fields ...zap.Field) {
	Component("scan").Debug(msg, fields...)
}

// LogServer logs an info-level message for the HTTP server
func LogServer(msg string, fields ...zap.Field) {
	Component("server").Info(msg, fields...)
}

// LogMCP logs an info-level message for the MCP server
func LogMCP(msg string, fields ...zap.Field) {
	Component("mcp").Info(msg, fields...)
}
