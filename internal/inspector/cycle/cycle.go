// Package cycle detects genuine ancestor self-reference along a single
// root-to-node path. Shared substructure reached through independent paths
// is not a cycle.
package cycle

import "github.com/replayio/devtools-sub005/internal/inspector/value"

// IsCycle reports whether id already appears on the path described by chain.
// An empty id never cycles.
func IsCycle(id value.ObjectID, chain []value.ObjectID) bool {
	if id == "" {
		return false
	}
	for _, ancestor := range chain {
		if ancestor == id {
			return true
		}
	}
	return false
}

// Extend returns chain with id appended. The result never shares its
// backing array with chain, so sibling nodes cannot overwrite each other's
// paths.
func Extend(chain []value.ObjectID, id value.ObjectID) []value.ObjectID {
	out := make([]value.ObjectID, len(chain), len(chain)+1)
	copy(out, chain)
	if id == "" {
		return out
	}
	return append(out, id)
}
