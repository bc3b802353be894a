/*
Package inspector progressively reveals values that live in a remote
execution context.

# Overview

A Tree owns Nodes wrapping RemoteValues. Nothing is loaded up front: a
node's properties are fetched through a ReferenceResolver the first time it
is expanded, and every later expansion reuses the loaded children.

	tree := inspector.NewTree(resolver).WithLogger(logger.Logger)
	root := tree.NewRoot(v)
	children, err := tree.Expand(ctx, root)

# Guarantees

  - Expansion is idempotent and de-duplicated: concurrent callers share one
    fetch, identical fetches from different nodes share one resolver call.
  - Large arrays are split into bucket nodes (package bucket), so no node
    has more than a bounded number of direct children.
  - A node whose object already appears on its own root path expands to a
    single ellipsis leaf (package cycle), so every path terminates.
  - Getters are only evaluated by InvokeGetter.
  - Torn-down nodes ignore late results.

# Errors

Misuse returns ErrInvalidOperation. Resolver failures return
ErrRemoteFetchFailed and leave the node closed but retryable. Getter
failures return ErrGetterEvaluationFailed. No retries happen here.
*/
package inspector
