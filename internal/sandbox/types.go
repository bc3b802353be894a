package sandbox

import (
	"errors"
	"time"
)

var (
	// ErrScriptFailed wraps syntax errors, thrown exceptions and interrupts
	ErrScriptFailed = errors.New("script failed")
	// ErrUnknownObject is returned for ids the runtime never handed out
	ErrUnknownObject = errors.New("unknown object")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("sandbox runtime is closed")
)

// Config defines sandbox configuration
type Config struct {
	Timeout       time.Duration // Per-call execution timeout
	MaxCallStack  int           // Maximum JS call stack depth, 0 for the engine default
	EnableConsole bool          // Capture console.log/warn/error/info
	EnableDOM     bool          // Expose document built from DOMHTML
	DOMHTML       string        // Page markup, sanitized before parsing
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// DefaultConfig returns a config suitable for interactive inspection
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
		EnableDOM:     true,
	}
}
