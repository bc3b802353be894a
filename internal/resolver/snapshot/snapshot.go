// Package snapshot answers inspector requests from a recorded object table,
// so values of a terminated execution can be explored offline.
//
// A Recorder wraps a live backend and captures every answer it gives. The
// resulting Snapshot can be saved as JSON, JSONC, YAML, TOML or CBOR,
// optionally compressed with zstd or lz4, and served again by a Store.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// Version is the snapshot layout written by this package
const Version = 1

var (
	ErrUnknownExpression = errors.New("expression not recorded")
	ErrUnknownObject     = errors.New("object not recorded")
	ErrUnknownGetter     = errors.New("getter not recorded")
	ErrGetterThrew       = errors.New("getter threw")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
	ErrVersion           = errors.New("unsupported snapshot version")
)

// GetterResult is the recorded outcome of one getter invocation
type GetterResult struct {
	Value *value.RemoteValue `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Error string             `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// Snapshot is a recorded slice of a remote object graph
type Snapshot struct {
	Version int                                           `json:"version" yaml:"version" toml:"version"`
	Roots   map[string]value.RemoteValue                  `json:"roots" yaml:"roots" toml:"roots"`
	Objects map[value.ObjectID][]value.PropertyDescriptor `json:"objects" yaml:"objects" toml:"objects"`
	Getters map[value.ObjectID]GetterResult               `json:"getters,omitempty" yaml:"getters,omitempty" toml:"getters,omitempty"`
}

// New returns an empty snapshot
func New() *Snapshot {
	return &Snapshot{
		Version: Version,
		Roots:   make(map[string]value.RemoteValue),
		Objects: make(map[value.ObjectID][]value.PropertyDescriptor),
		Getters: make(map[value.ObjectID]GetterResult),
	}
}

// normalize fills the maps a decoder may leave nil and checks the version
func (s *Snapshot) normalize() error {
	if s.Version == 0 {
		s.Version = Version
	}
	if s.Version != Version {
		return fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	if s.Roots == nil {
		s.Roots = make(map[string]value.RemoteValue)
	}
	if s.Objects == nil {
		s.Objects = make(map[value.ObjectID][]value.PropertyDescriptor)
	}
	if s.Getters == nil {
		s.Getters = make(map[value.ObjectID]GetterResult)
	}
	return nil
}

// Stats summarizes the snapshot contents
func (s *Snapshot) Stats() map[string]interface{} {
	props := 0
	for _, p := range s.Objects {
		props += len(p)
	}
	return map[string]interface{}{
		"version":    s.Version,
		"roots":      len(s.Roots),
		"objects":    len(s.Objects),
		"properties": props,
		"getters":    len(s.Getters),
	}
}
