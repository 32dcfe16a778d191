package sandbox

import (
	"errors"
	"time"

	"github.com/vitrinehq/vitrine/internal/domain/protocol"
	"github.com/vitrinehq/vitrine/internal/shared/pending"
)

var (
	// ErrNotInitialized indicates a call before Init
	ErrNotInitialized = errors.New("sandbox not initialized")

	// ErrTerminated indicates a call on, or a request pending at, a
	// terminated manager
	ErrTerminated = errors.New("sandbox terminated")

	// ErrTimeout indicates no response within the request window
	ErrTimeout = pending.ErrTimeout
)

// ExecutionError carries a failure reported from inside the execution
// context. The message is preserved verbatim.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// State is the execution context lifecycle
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateTerminated
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Gate is the pluggable validation predicate run before any code executes.
// The manager depends on this interface, not a concrete validator, so a
// parser-based checker can replace the text scan without protocol changes.
type Gate interface {
	Validate(code string) error
}

// Sink consumes the ordered operation stream bound for the renderer
type Sink func(op protocol.Operation)

// LogEntry is one captured console call
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ExecuteResult summarizes one script evaluation
type ExecuteResult struct {
	Console    []LogEntry    `json:"console,omitempty"`
	OpsEmitted int           `json:"ops_emitted"`
	Duration   time.Duration `json:"duration"`
}

// Config controls a manager and the worker it boots
type Config struct {
	// ExecTimeout bounds one script evaluation
	ExecTimeout time.Duration

	// OpTimeout bounds one operation or batch round trip
	OpTimeout time.Duration

	// InboxSize is the worker request queue depth
	InboxSize int

	// StreamSize is the operation stream buffer depth
	StreamSize int

	// MaxCallStack caps VM call depth
	MaxCallStack int

	// Bootstrap runs once at worker boot; a failure fails Init
	Bootstrap string

	// EnableConsole installs the captured console object
	EnableConsole bool

	// Gate validates code before it reaches the worker. Required.
	Gate Gate

	// Sink receives the operation stream. Optional; nil discards.
	Sink Sink
}

// DefaultConfig returns production defaults. The caller still provides
// the Gate.
func DefaultConfig() Config {
	return Config{
		ExecTimeout:   5 * time.Second,
		OpTimeout:     5 * time.Second,
		InboxSize:     256,
		StreamSize:    1024,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

func (c *Config) validate() error {
	if c.Gate == nil {
		return errors.New("sandbox config: gate is required")
	}
	if c.ExecTimeout <= 0 || c.OpTimeout <= 0 {
		return errors.New("sandbox config: timeouts must be positive")
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	if c.StreamSize <= 0 {
		c.StreamSize = 1024
	}
	return nil
}
