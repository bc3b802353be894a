package inspector

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation marks misuse such as expanding a primitive
	ErrInvalidOperation = errors.New("invalid inspector operation")
	// ErrRemoteFetchFailed wraps resolver failures during expansion or serialization
	ErrRemoteFetchFailed = errors.New("remote fetch failed")
	// ErrGetterEvaluationFailed wraps a getter that threw when invoked
	ErrGetterEvaluationFailed = errors.New("getter evaluation failed")
	// ErrNodeDetached is returned for operations on torn-down nodes
	ErrNodeDetached = errors.New("node has been torn down")
)

// ErrorKind classifies the error stored on a node
type ErrorKind int

const (
	ErrorInvalidOperation ErrorKind = iota
	ErrorRemoteFetchFailed
	ErrorGetterEvaluationFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorInvalidOperation:
		return "InvalidOperation"
	case ErrorRemoteFetchFailed:
		return "RemoteFetchFailed"
	case ErrorGetterEvaluationFailed:
		return "GetterEvaluationFailed"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for _, candidate := range []ErrorKind{ErrorInvalidOperation, ErrorRemoteFetchFailed, ErrorGetterEvaluationFailed} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// LoadError is the failure recorded on a node after a fetch or getter error
type LoadError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *LoadError) Error() string {
	return e.Kind.String() + ": " + e.Message
}
