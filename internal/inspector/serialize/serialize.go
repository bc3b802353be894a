// Package serialize renders an inspector node, and as much of its subtree as
// the depth bound allows, as one deterministic string for "copy" actions.
//
// The format resembles JSON but keeps JavaScript-specific values readable:
// NaN, Infinity and undefined are bare tokens, bigints keep their n suffix,
// regular expressions stay literals, maps become arrays of [key, value]
// pairs and elements become pseudo-markup.
package serialize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/cycle"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// DefaultMaxDepth is the deepest nesting level whose contents are fetched.
// Unloaded containers below it are truncated.
const DefaultMaxDepth = 5

const (
	// TruncatedToken replaces an unloaded container at the depth bound
	TruncatedToken = `"[[ Truncated ]]"`
	// EllipsisToken replaces a reference back to an ancestor
	EllipsisToken = `"…"`
	// GetterToken stands for a getter that has not been invoked
	GetterToken = `"(...)"`
)

// Serializer renders nodes of one tree
type Serializer struct {
	tree     *inspector.Tree
	maxDepth int
}

// New creates a serializer with the default depth bound
func New(tree *inspector.Tree) *Serializer {
	return &Serializer{tree: tree, maxDepth: DefaultMaxDepth}
}

// WithMaxDepth sets the depth bound; values below 1 keep the default
func (s *Serializer) WithMaxDepth(depth int) *Serializer {
	if depth > 0 {
		s.maxDepth = depth
	}
	return s
}

// Serialize renders node, which sits at depth 0. Containers up to the depth
// bound that are not loaded yet are expanded through the tree; deeper
// containers are only followed when already loaded. Loaded containers are
// read in place, so collapsed nodes stay collapsed. The result is
// all-or-nothing: any fetch failure yields an ErrRemoteFetchFailed error
// and no text.
func (s *Serializer) Serialize(ctx context.Context, node *inspector.Node) (string, error) {
	start := time.Now()
	out, err := s.serialize(ctx, node)
	s.tree.Metrics().ObserveSerialize(err, time.Since(start))
	return out, err
}

func (s *Serializer) serialize(ctx context.Context, node *inspector.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("%w: nil node", inspector.ErrInvalidOperation)
	}
	if node.Detached() {
		return "", inspector.ErrNodeDetached
	}

	var b strings.Builder
	if err := s.write(ctx, &b, node, 0); err != nil {
		if errors.Is(err, inspector.ErrRemoteFetchFailed) || errors.Is(err, inspector.ErrNodeDetached) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", inspector.ErrRemoteFetchFailed, err)
	}
	return b.String(), nil
}

func (s *Serializer) write(ctx context.Context, b *strings.Builder, n *inspector.Node, depth int) error {
	if n.IsEllipsis() {
		b.WriteString(EllipsisToken)
		return nil
	}

	v := n.Value()
	if !n.IsBucket() && !v.Kind.Container() {
		writeScalar(b, v)
		return nil
	}

	if !n.IsBucket() && cycle.IsCycle(v.ObjectID, n.ParentChain()) {
		b.WriteString(EllipsisToken)
		return nil
	}
	if depth > s.maxDepth && !n.Loaded() {
		b.WriteString(TruncatedToken)
		return nil
	}

	children, err := s.children(ctx, n)
	if err != nil {
		return err
	}
	if n.Detached() {
		return inspector.ErrNodeDetached
	}

	if n.IsBucket() {
		return s.writeArray(ctx, b, children, depth)
	}

	switch v.Kind {
	case value.KindArray:
		return s.writeArray(ctx, b, children, depth)
	case value.KindMap:
		return s.writeMap(ctx, b, children, depth)
	case value.KindSet:
		return s.writeSet(ctx, b, children, depth)
	case value.KindHTMLElement:
		return s.writeElement(ctx, b, v, children, depth)
	default:
		return s.writeObject(ctx, b, children, depth)
	}
}

// children returns what n has loaded, expanding it only when nothing is
// loaded yet. Loaded nodes keep the expansion state the user left them in.
func (s *Serializer) children(ctx context.Context, n *inspector.Node) ([]*inspector.Node, error) {
	if loaded := n.Children(); loaded != nil {
		return loaded, nil
	}
	return s.tree.Expand(ctx, n)
}

// elements flattens bucket nodes into the indexed children they cover.
// Buckets are transparent and do not count towards depth.
func (s *Serializer) elements(ctx context.Context, children []*inspector.Node) ([]*inspector.Node, error) {
	out := make([]*inspector.Node, 0, len(children))
	for _, child := range children {
		if child.IsBucket() {
			inner, err := s.children(ctx, child)
			if err != nil {
				return nil, err
			}
			flat, err := s.elements(ctx, inner)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
			continue
		}
		if child.Key().IsIndex {
			out = append(out, child)
		}
	}
	return out, nil
}

func (s *Serializer) writeArray(ctx context.Context, b *strings.Builder, children []*inspector.Node, depth int) error {
	items, err := s.elements(ctx, children)
	if err != nil {
		return err
	}

	b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := s.write(ctx, b, item, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func (s *Serializer) writeSet(ctx context.Context, b *strings.Builder, children []*inspector.Node, depth int) error {
	return s.writeArray(ctx, b, children, depth)
}

func (s *Serializer) writeMap(ctx context.Context, b *strings.Builder, children []*inspector.Node, depth int) error {
	b.WriteByte('[')
	first := true
	for _, child := range children {
		key := child.EntryKey()
		if key == nil {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false

		b.WriteByte('[')
		if err := s.write(ctx, b, key, depth+1); err != nil {
			return err
		}
		b.WriteString(", ")
		if err := s.write(ctx, b, child, depth+1); err != nil {
			return err
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return nil
}

func (s *Serializer) writeObject(ctx context.Context, b *strings.Builder, children []*inspector.Node, depth int) error {
	b.WriteByte('{')
	for i, child := range children {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(child.Key().String()))
		b.WriteString(": ")
		if err := s.write(ctx, b, child, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func (s *Serializer) writeElement(ctx context.Context, b *strings.Builder, v value.RemoteValue, children []*inspector.Node, depth int) error {
	b.WriteByte('<')
	b.WriteString(v.Name)
	for _, attr := range v.Attributes {
		b.WriteByte(' ')
		b.WriteString(attr.Name)
		b.WriteString(`="`)
		b.WriteString(attr.Value)
		b.WriteByte('"')
	}

	nodes := make([]*inspector.Node, 0, len(children))
	for _, child := range children {
		switch child.Value().Kind {
		case value.KindHTMLElement, value.KindHTMLText:
			nodes = append(nodes, child)
		}
	}
	if len(nodes) == 0 {
		b.WriteString(" />")
		return nil
	}

	b.WriteByte('>')
	for i, child := range nodes {
		if i > 0 {
			b.WriteByte(' ')
		}
		if err := s.write(ctx, b, child, depth+1); err != nil {
			return err
		}
	}
	b.WriteString("</")
	b.WriteString(v.Name)
	b.WriteByte('>')
	return nil
}

// Serialize renders node with a one-off serializer
func Serialize(ctx context.Context, tree *inspector.Tree, node *inspector.Node, maxDepth int) (string, error) {
	return New(tree).WithMaxDepth(maxDepth).Serialize(ctx, node)
}
