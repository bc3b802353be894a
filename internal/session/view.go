package session

import (
	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// NodeView is the API representation of one node
type NodeView struct {
	ID         string               `json:"id"`
	ParentID   string               `json:"parentId,omitempty"`
	Key        string               `json:"key"`
	Descriptor string               `json:"descriptor"`
	Value      value.RemoteValue    `json:"value"`
	EntryKey   *value.RemoteValue   `json:"entryKey,omitempty"`
	Preview    string               `json:"preview,omitempty"`
	State      string               `json:"state"`
	Expandable bool                 `json:"expandable"`
	Ellipsis   bool                 `json:"ellipsis,omitempty"`
	Bucket     *bucket.Range        `json:"bucket,omitempty"`
	Error      *inspector.LoadError `json:"error,omitempty"`
	Children   []string             `json:"children,omitempty"`
}

// Describe builds the view of a node. Children are listed by ID only.
func Describe(n *inspector.Node) NodeView {
	v := NodeView{
		ID:         n.ID(),
		Key:        n.Key().String(),
		Descriptor: n.DescriptorKind().String(),
		Value:      n.Value(),
		Preview:    n.Preview(),
		State:      n.State().String(),
		Expandable: n.Expandable(),
		Ellipsis:   n.IsEllipsis(),
		Error:      n.LoadError(),
	}
	if p := n.Parent(); p != nil {
		v.ParentID = p.ID()
	}
	if ek := n.EntryKey(); ek != nil {
		k := ek.Value()
		v.EntryKey = &k
	}
	if rng, ok := n.Bucket(); ok {
		v.Bucket = &rng
	}
	for _, c := range n.Children() {
		v.Children = append(v.Children, c.ID())
	}
	return v
}

// DescribeAll maps Describe over nodes
func DescribeAll(nodes []*inspector.Node) []NodeView {
	out := make([]NodeView, len(nodes))
	for i, n := range nodes {
		out[i] = Describe(n)
	}
	return out
}
