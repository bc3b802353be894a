package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// objectTable gives VM objects stable ObjectIDs. The same JS object always
// maps to the same id, which is what cycle detection relies on.
type objectTable struct {
	ids      map[*goja.Object]value.ObjectID
	objects  map[value.ObjectID]*goja.Object
	elements map[*goja.Object]*html.Node
	wrappers map[*html.Node]*goja.Object
	getters  map[value.ObjectID]getterRef
	refs     map[getterRef]value.ObjectID
	next     int
}

// getterRef names an accessor by owner and property key
type getterRef struct {
	owner value.ObjectID
	key   string
}

func newObjectTable() *objectTable {
	return &objectTable{
		ids:      make(map[*goja.Object]value.ObjectID),
		objects:  make(map[value.ObjectID]*goja.Object),
		elements: make(map[*goja.Object]*html.Node),
		wrappers: make(map[*html.Node]*goja.Object),
		getters:  make(map[value.ObjectID]getterRef),
		refs:     make(map[getterRef]value.ObjectID),
	}
}

func (t *objectTable) register(obj *goja.Object) value.ObjectID {
	if id, ok := t.ids[obj]; ok {
		return id
	}
	t.next++
	id := value.ObjectID(fmt.Sprintf("obj-%d", t.next))
	t.ids[obj] = id
	t.objects[id] = obj
	return id
}

func (t *objectTable) getter(owner value.ObjectID, key string) value.ObjectID {
	ref := getterRef{owner: owner, key: key}
	if id, ok := t.refs[ref]; ok {
		return id
	}
	t.next++
	id := value.ObjectID(fmt.Sprintf("getter-%d", t.next))
	t.refs[ref] = id
	t.getters[id] = ref
	return id
}
