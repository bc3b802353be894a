package inspector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// InvokeGetter evaluates the accessor behind a getter node. This runs user
// code in the remote context, so it is never triggered by Expand or by
// serialization; only an explicit request reaches the resolver.
//
// On success the placeholder is replaced by the resolved value and the
// node can be expanded normally. On failure the node keeps its previous
// value, records a GetterEvaluationFailed load error and is not retried.
func (t *Tree) InvokeGetter(ctx context.Context, n *Node) (value.RemoteValue, error) {
	if n == nil {
		return value.RemoteValue{}, fmt.Errorf("%w: nil node", ErrInvalidOperation)
	}

	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		return value.RemoteValue{}, ErrNodeDetached
	}
	if n.descriptor != value.DescriptorGetter || n.getterRef == "" {
		n.mu.Unlock()
		return value.RemoteValue{}, fmt.Errorf("%w: property %q has no getter", ErrInvalidOperation, n.key.String())
	}
	if n.state == StateLoading {
		n.mu.Unlock()
		return value.RemoteValue{}, fmt.Errorf("%w: property %q is loading", ErrInvalidOperation, n.key.String())
	}
	ref := n.getterRef
	n.mu.Unlock()

	resolved, err := t.resolver.InvokeGetter(ctx, ref)
	t.metrics.ObserveGetter(err)

	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		t.logger.Debug("Discarding getter result for torn-down node", zap.String("node", n.id))
		return resolved, nil
	}

	from := n.state
	if err != nil {
		n.loadErr = &LoadError{Kind: ErrorGetterEvaluationFailed, Message: err.Error()}
		n.state = StateClosed
		n.mu.Unlock()

		t.logger.Info("Getter threw",
			zap.String("node", n.id),
			zap.String("property", n.key.String()),
			zap.Error(err),
		)
		t.notifyState(n, from, StateClosed)
		return value.RemoteValue{}, fmt.Errorf("%w: property %q: %w", ErrGetterEvaluationFailed, n.key.String(), err)
	}

	// Children of the previous value describe a different object
	stale := n.children
	n.value = resolved
	n.gen++
	n.children = nil
	n.inflight = nil
	n.loadErr = nil
	n.state = StateCollapsed
	n.mu.Unlock()

	for _, child := range stale {
		t.Teardown(child)
	}
	t.notifyState(n, from, StateCollapsed)
	return resolved, nil
}
