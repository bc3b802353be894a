package testutil

import (
	"fmt"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// SelfCycle builds obj = {name: "a", self: obj}
func SelfCycle() (*Graph, value.RemoteValue) {
	g := NewGraph()
	root := value.Object("obj", "")
	g.Define("obj",
		value.Data(value.NameKey("name"), value.String("a")),
		value.Lazy(value.NameKey("self"), "obj"),
	)
	return g, root
}

// ArrayCycle builds arr = [1, arr]
func ArrayCycle() (*Graph, value.RemoteValue) {
	g := NewGraph()
	root := value.Array("arr", 2)
	g.Define("arr",
		value.Data(value.IndexKey(0), value.Number(1)),
		value.Data(value.IndexKey(1), root),
	)
	return g, root
}

// Chain builds {"level-1": {"level-2": ... {"level-n": {}}}}
func Chain(n int) (*Graph, value.RemoteValue) {
	g := NewGraph()
	root := value.Object("level-0", "")
	for i := 0; i < n; i++ {
		id := value.ObjectID(fmt.Sprintf("level-%d", i))
		next := value.Object(value.ObjectID(fmt.Sprintf("level-%d", i+1)), "")
		g.Define(id, value.Data(value.NameKey(string(next.ObjectID)), next))
	}
	g.Define(value.ObjectID(fmt.Sprintf("level-%d", n)))
	return g, root
}

// Numbers builds an array of n numbers equal to their index
func Numbers(id value.ObjectID, n int) (*Graph, value.RemoteValue) {
	g := NewGraph().DefineArray(id, n, func(i int) value.RemoteValue {
		return value.Number(float64(i))
	})
	return g, value.Array(id, n)
}
