// Package protocol defines the JSON wire format spoken between a resolver
// client and a server that owns a remote execution context.
//
//	POST /protocol/evaluate                  {expression}  -> {value}
//	GET  /protocol/objects/:id/properties    ?start=&end=  -> {properties}
//	POST /protocol/objects/:id/getter                      -> {value} | 422 {error}
//
// Bodies are encoded with sonic.
package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

const (
	Prefix       = "/protocol"
	EvaluatePath = Prefix + "/evaluate"
)

var (
	// ErrBadRange is returned for malformed or inverted start/end parameters
	ErrBadRange = errors.New("invalid range")
	// ErrNotFound means the context does not know the object or getter
	ErrNotFound = errors.New("remote object not found")
	// ErrScriptFailed means evaluated code or a getter threw
	ErrScriptFailed = errors.New("remote script failed")
)

// EvaluateRequest asks the context to evaluate an expression globally
type EvaluateRequest struct {
	Expression string `json:"expression" binding:"required"`
}

// ValueResponse carries one described value. Error is set instead when a
// getter threw.
type ValueResponse struct {
	Value *value.RemoteValue `json:"value,omitempty"`
	Error string             `json:"error,omitempty"`
}

// PropertiesResponse lists the properties or entries of one object
type PropertiesResponse struct {
	Properties []value.PropertyDescriptor `json:"properties"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// PropertiesPath is the properties endpoint of one object
func PropertiesPath(id value.ObjectID) string {
	return fmt.Sprintf("%s/objects/%s/properties", Prefix, url.PathEscape(string(id)))
}

// GetterPath is the getter endpoint of one getter reference
func GetterPath(ref value.ObjectID) string {
	return fmt.Sprintf("%s/objects/%s/getter", Prefix, url.PathEscape(string(ref)))
}

// RangeQuery renders a range as query parameters; nil means no range
func RangeQuery(rng *bucket.Range) map[string]string {
	if rng == nil {
		return nil
	}
	return map[string]string{
		"start": strconv.Itoa(rng.Start),
		"end":   strconv.Itoa(rng.End),
	}
}

// ParseRange reads the start and end query parameters. Both empty means no
// range; one without the other is an error.
func ParseRange(start, end string) (*bucket.Range, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("%w: start and end go together", ErrBadRange)
	}

	s, err := strconv.Atoi(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %w", ErrBadRange, err)
	}
	e, err := strconv.Atoi(end)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %w", ErrBadRange, err)
	}
	if s < 0 || e < s {
		return nil, fmt.Errorf("%w: [%d,%d]", ErrBadRange, s, e)
	}
	return &bucket.Range{Start: s, End: e}, nil
}

// Marshal encodes a protocol body
func Marshal(v interface{}) ([]byte, error) {
	return sonic.Marshal(v)
}

// Unmarshal decodes a protocol body
func Unmarshal(data []byte, v interface{}) error {
	return sonic.Unmarshal(data, v)
}
