package inspector

import (
	"context"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// ReferenceResolver is the only dependency the inspector has on the remote
// execution context.
type ReferenceResolver interface {
	// FetchProperties returns the properties or entries of an object. A
	// non-nil rng restricts the result to indexed entries within the range.
	FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error)
	// InvokeGetter evaluates an accessor. It runs user code remotely and is
	// only called on explicit request.
	InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error)
}

// Evaluator produces root values from expressions in the remote context
type Evaluator interface {
	Evaluate(ctx context.Context, expression string) (value.RemoteValue, error)
}

// Backend is a remote context that can both create and resolve values
type Backend interface {
	ReferenceResolver
	Evaluator
}
