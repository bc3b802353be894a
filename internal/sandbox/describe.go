package sandbox

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

var (
	proxyType   = reflect.TypeOf(goja.Proxy{})
	promiseType = reflect.TypeOf((*goja.Promise)(nil))
)

// asProxy detects proxies from the Go side; any JS-level check would run
// the proxy's traps
func asProxy(obj *goja.Object) (goja.Proxy, bool) {
	if obj.ExportType() != proxyType {
		return goja.Proxy{}, false
	}
	p, ok := obj.Export().(goja.Proxy)
	return p, ok
}

// isProxyValue and classOf back the introspection helpers. Both read the
// VM's internal slots, so neither can be redirected by a script.
func isProxyValue(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	_, proxy := asProxy(obj)
	return proxy
}

func classOf(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ""
	}
	if obj.ExportType() == promiseType {
		return "Promise"
	}
	return obj.ClassName()
}

// functionParams reads the parameter list from a function's source text
func functionParams(src string) []string {
	open := strings.IndexByte(src, '(')
	if open < 0 {
		return nil
	}
	end := strings.IndexByte(src[open+1:], ')')
	if end < 0 {
		return nil
	}
	var params []string
	for _, p := range strings.Split(src[open+1:open+1+end], ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return params
}

// describe turns a VM value into a RemoteValue, registering objects
func (r *Runtime) describe(v goja.Value) (value.RemoteValue, error) {
	if v == nil {
		return value.Undefined(), nil
	}

	obj, isObject := v.(*goja.Object)
	if isObject {
		if node, ok := r.table.elements[obj]; ok {
			return r.describeNode(node), nil
		}
		if _, ok := asProxy(obj); ok {
			return value.Proxy(r.table.register(obj)), nil
		}
	}

	res, err := r.helpers.describe(goja.Undefined(), v)
	if err != nil {
		return value.RemoteValue{}, scriptError(err)
	}
	d := res.ToObject(r.vm)
	kind := d.Get("kind").String()

	switch kind {
	case "undefined":
		return value.Undefined(), nil
	case "null":
		return value.Null(), nil
	case "string":
		return value.String(d.Get("str").String()), nil
	case "number":
		return value.Number(d.Get("num").ToFloat()), nil
	case "nan":
		return value.Number(math.NaN()), nil
	case "infinity":
		return value.Number(math.Inf(1)), nil
	case "-infinity":
		return value.Number(math.Inf(-1)), nil
	case "boolean":
		return value.Bool(d.Get("bool").ToBoolean()), nil
	case "bigint":
		return value.BigInt(d.Get("str").String()), nil
	case "symbol":
		return value.Symbol(d.Get("str").String()), nil
	}

	if !isObject {
		return value.Undefined(), nil
	}
	id := r.table.register(obj)
	length := func() int { return int(d.Get("length").ToInteger()) }

	switch kind {
	case "array":
		return value.Array(id, length()), nil
	case "typedarray":
		return value.TypedArray(id, d.Get("className").String(), length()), nil
	case "map":
		return value.Map(id, length()), nil
	case "set":
		return value.Set(id, length()), nil
	case "function":
		return value.Function(id, d.Get("name").String(), functionParams(d.Get("source").String())...), nil
	case "error":
		return value.Error(id, d.Get("name").String(), d.Get("message").String()), nil
	case "date":
		return value.Date(id, time.UnixMilli(d.Get("time").ToInteger())), nil
	case "regexp":
		return value.RegExp(id, d.Get("source").String(), d.Get("flags").String()), nil
	case "promise":
		return value.Promise(id), nil
	default:
		return value.Object(id, d.Get("className").String()), nil
	}
}

// kindName selects the enumeration strategy of the properties helper
func kindName(v value.RemoteValue) string {
	switch v.Kind {
	case value.KindArray:
		return "array"
	case value.KindMap:
		return "map"
	case value.KindSet:
		return "set"
	default:
		return "object"
	}
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v)
}

// convertProperties reads the descriptor list built by the helper
func (r *Runtime) convertProperties(owner value.ObjectID, res goja.Value) ([]value.PropertyDescriptor, error) {
	arr := res.ToObject(r.vm)
	n := int(arr.Get("length").ToInteger())
	props := make([]value.PropertyDescriptor, 0, n)

	for i := 0; i < n; i++ {
		e := arr.Get(strconv.Itoa(i)).ToObject(r.vm)

		var key value.Key
		if idx := e.Get("index"); present(idx) {
			key = value.IndexKey(int(idx.ToInteger()))
		} else {
			key = value.NameKey(e.Get("key").String())
		}

		switch e.Get("kind").String() {
		case "getter":
			props = append(props, value.Accessor(key, r.table.getter(owner, key.String())))
		case "setter":
			props = append(props, value.SetterOnly(key))
		default:
			v, err := r.describe(e.Get("value"))
			if err != nil {
				return nil, err
			}
			if ek := e.Get("entryKey"); ek != nil {
				k, err := r.describe(ek)
				if err != nil {
					return nil, err
				}
				props = append(props, value.Entry(key.Index, k, v))
				continue
			}
			props = append(props, value.Data(key, v))
		}
	}
	return props, nil
}

// proxyInternals exposes target and handler without touching the traps
func (r *Runtime) proxyInternals(p goja.Proxy) ([]value.PropertyDescriptor, error) {
	target, err := r.describe(objectValue(p.Target()))
	if err != nil {
		return nil, err
	}
	handler, err := r.describe(objectValue(p.Handler()))
	if err != nil {
		return nil, err
	}
	return []value.PropertyDescriptor{
		value.Data(value.NameKey("[[Target]]"), target),
		value.Data(value.NameKey("[[Handler]]"), handler),
	}, nil
}

// objectValue keeps a nil object from becoming a non-nil goja.Value
func objectValue(o *goja.Object) goja.Value {
	if o == nil {
		return goja.Null()
	}
	return o
}

func (r *Runtime) describeNode(n *html.Node) value.RemoteValue {
	if n.Type == html.TextNode {
		return value.Text(strings.TrimSpace(n.Data))
	}
	id := r.table.register(r.wrap(n))
	return value.Element(id, n.Data, len(ChildNodes(n)), Attributes(n)...)
}

func (r *Runtime) elementChildren(n *html.Node) []value.PropertyDescriptor {
	children := ChildNodes(n)
	props := make([]value.PropertyDescriptor, len(children))
	for i, c := range children {
		props[i] = value.Data(value.IndexKey(i), r.describeNode(c))
	}
	return props
}
