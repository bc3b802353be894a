package inspector

import (
	"sync"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// State is the expansion state of a node
type State int

const (
	StateCollapsed State = iota
	StateLoading
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCollapsed:
		return "collapsed"
	case StateLoading:
		return "loading"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Node is one visible entry of the inspector tree. Nodes are created lazily
// when their parent loads and are owned by the Tree that created them.
type Node struct {
	id          string
	key         value.Key
	descriptor  value.DescriptorKind
	getterRef   value.ObjectID
	entryKey    *Node
	bucket      *bucket.Range
	ellipsis    bool
	parentChain []value.ObjectID
	parent      *Node

	mu       sync.Mutex
	value    value.RemoteValue
	state    State
	children []*Node
	loadErr  *LoadError
	inflight *flight
	wantOpen bool
	detached bool
	// gen counts value replacements; a fetch started under an older
	// generation must not install its children
	gen uint64
}

// flight is a fetch shared by every caller expanding the same node
type flight struct {
	done     chan struct{}
	gen      uint64
	children []*Node
	err      error
}

// ID is unique within the process and addresses the node from the API
func (n *Node) ID() string { return n.id }

// Key is the property name or index under which the parent holds this node
func (n *Node) Key() value.Key { return n.key }

// DescriptorKind tells whether the node came from a data, getter or setter property
func (n *Node) DescriptorKind() value.DescriptorKind { return n.descriptor }

// EntryKey is the key node of a map entry, nil otherwise
func (n *Node) EntryKey() *Node { return n.entryKey }

// Parent returns nil for roots
func (n *Node) Parent() *Node { return n.parent }

// IsEllipsis reports whether the node stands in for a cyclic reference
func (n *Node) IsEllipsis() bool { return n.ellipsis }

// IsBucket reports whether the node is a synthetic index range
func (n *Node) IsBucket() bool { return n.bucket != nil }

// Bucket returns the index range of a bucket node
func (n *Node) Bucket() (bucket.Range, bool) {
	if n.bucket == nil {
		return bucket.Range{}, false
	}
	return *n.bucket, true
}

// ParentChain returns a copy of the ancestor identities from the root
func (n *Node) ParentChain() []value.ObjectID {
	out := make([]value.ObjectID, len(n.parentChain))
	copy(out, n.parentChain)
	return out
}

// Preview is the short label the UI shows next to the key
func (n *Node) Preview() string {
	if n.bucket != nil {
		return n.bucket.Label()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value.Summary()
}

func (n *Node) Value() value.RemoteValue {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Children returns the loaded children, or nil when nothing was loaded yet.
// The slice is shared and must not be modified.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children
}

// LoadError returns the last recorded failure, if any
func (n *Node) LoadError() *LoadError {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.loadErr == nil {
		return nil
	}
	e := *n.loadErr
	return &e
}

// Loaded reports whether children have been installed
func (n *Node) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children != nil
}

// Detached reports whether the node has been torn down
func (n *Node) Detached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detached
}

// Expandable reports whether Expand is a valid operation on the node
func (n *Node) Expandable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expandableLocked()
}

func (n *Node) expandableLocked() bool {
	if n.ellipsis {
		return false
	}
	return n.bucket != nil || n.value.Composite()
}
