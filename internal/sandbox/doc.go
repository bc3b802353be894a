/*
Package sandbox provides a JavaScript execution context that the inspector
can explore, built on the goja engine.

# Overview

A Runtime evaluates expressions and keeps the resulting objects inside the
VM. Callers only ever see RemoteValues: composite values are registered in
an object table and identified by a stable ObjectID, so the same JS object
always yields the same id. The runtime implements the inspector's resolver
and evaluator interfaces:

  - Evaluate runs an expression in the global scope
  - FetchProperties lists own properties, map and set entries, array
    indices (optionally one bucket range) or element child nodes
  - InvokeGetter runs one accessor with its owner as receiver

Property enumeration reads descriptors only. Accessors show up as getter
or setter descriptors and are never called while listing. Proxies are
detected from Go and expose [[Target]] and [[Handler]] without running
their traps.

# Security Model

Evaluated code cannot reach require, process or module. Timers never
fire. Every call runs under a timeout that interrupts the VM, and
cancelling the caller's context interrupts it too.

# DOM

When enabled, a document built from sanitized markup (bluemonday, then
goquery) is exposed as a read-only global. Elements are described as
htmlElement values with ordered attributes; their children are element
and text nodes.

# Usage Example

	rt, err := sandbox.New(sandbox.DefaultConfig())
	if err != nil {
		return err
	}
	tree := inspector.NewTree(rt)
	v, err := rt.Evaluate(ctx, "({a: 1, b: [1, 2]})")

# Pooling

A Pool keeps pre-built runtimes so that each inspection session gets an
isolated global scope. Released runtimes are reset before reuse.
*/
package sandbox
