package snapshot

import (
	"time"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// sample covers every descriptor shape and most value kinds
func sample() *Snapshot {
	snap := New()
	snap.Roots["data"] = value.Object("obj-1", "")
	snap.Roots["({a: 1})"] = value.Object("obj-2", "")
	snap.Roots["answer"] = value.Number(42)

	snap.Objects["obj-1"] = []value.PropertyDescriptor{
		value.Data(value.NameKey("foo"), value.Number(123)),
		value.Data(value.NameKey("bar"), value.String("abc")),
		value.Data(value.NameKey("baz"), value.Bool(true)),
		value.Data(value.NameKey("when"), value.Date("date-1", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))),
		value.Data(value.NameKey("list"), value.Array("arr-1", 2)),
		value.Data(value.NameKey("lookup"), value.Map("map-1", 1)),
		value.Lazy(value.NameKey("self"), "obj-1"),
		value.Accessor(value.NameKey("computed"), "getter-1"),
		value.Accessor(value.NameKey("broken"), "getter-2"),
		value.SetterOnly(value.NameKey("sink")),
	}
	snap.Objects["obj-2"] = []value.PropertyDescriptor{
		value.Data(value.NameKey("a"), value.Number(1)),
	}
	snap.Objects["arr-1"] = []value.PropertyDescriptor{
		value.Data(value.IndexKey(0), value.Null()),
		value.Data(value.IndexKey(1), value.Function("fn-1", "add", "a", "b")),
	}
	snap.Objects["map-1"] = []value.PropertyDescriptor{
		value.Entry(0, value.String("one"), value.Number(1)),
	}
	snap.Objects["fn-1"] = []value.PropertyDescriptor{}
	snap.Objects["date-1"] = []value.PropertyDescriptor{}

	computed := value.String("computed!")
	snap.Getters["getter-1"] = GetterResult{Value: &computed}
	snap.Getters["getter-2"] = GetterResult{Error: "TypeError: nope"}
	return snap
}
