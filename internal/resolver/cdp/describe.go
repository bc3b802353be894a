package cdp

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// Page-side helpers. Each runs with the inspected object as this.
const (
	readPropertyFn = `function (key) { return this[key]; }`

	mapEntriesFn = `function () {
		const out = [];
		for (const [k, v] of Map.prototype.entries.call(this)) out.push(k, v);
		return out;
	}`

	setValuesFn = `function () { return Array.from(Set.prototype.values.call(this)); }`

	sliceFn = `function (start, end) { return Array.prototype.slice.call(this, start, end + 1); }`

	childNodesFn = `function () {
		return Array.from(this.childNodes).filter(n =>
			n.nodeType === 1 || (n.nodeType === 3 && n.textContent.trim() !== ""));
	}`

	nodeInfoFn = `function () {
		if (this.nodeType === 3) return {text: this.textContent.trim()};
		const attrs = Array.from(this.attributes || [], a => [a.name, a.value]);
		const children = Array.from(this.childNodes).filter(n =>
			n.nodeType === 1 || (n.nodeType === 3 && n.textContent.trim() !== "")).length;
		return {tag: this.localName, attrs, children};
	}`

	timeFn = `function () { return Date.prototype.getTime.call(this); }`
)

var (
	lengthPattern   = regexp.MustCompile(`\((\d+)\)$`)
	functionPattern = regexp.MustCompile(`^(?:async\s+)?function\*?\s*([\w$]*)\s*\(([^)]*)\)`)
	arrowPattern    = regexp.MustCompile(`^(?:async\s+)?\(?([^()=]*?)\)?\s*=>`)
	methodPattern   = regexp.MustCompile(`^(?:async\s+)?\*?\s*([\w$]+)\s*\(([^)]*)\)`)
)

// describe turns a CDP remote object into a RemoteValue and remembers the
// kind of every composite
func (r *Resolver) describe(ctx context.Context, obj *proto.RuntimeRemoteObject) (value.RemoteValue, error) {
	if obj == nil {
		return value.Undefined(), nil
	}
	if v, ok := describePrimitive(obj); ok {
		return v, nil
	}

	v, err := r.describeObject(ctx, obj)
	if err != nil {
		return value.RemoteValue{}, err
	}
	if v.Composite() {
		r.mu.Lock()
		r.kinds[v.ObjectID] = v.Kind
		r.mu.Unlock()
	}
	return v, nil
}

// describePrimitive handles every value that needs no round trip
func describePrimitive(obj *proto.RuntimeRemoteObject) (value.RemoteValue, bool) {
	switch obj.Type {
	case proto.RuntimeRemoteObjectTypeUndefined:
		return value.Undefined(), true
	case proto.RuntimeRemoteObjectTypeString:
		return value.String(obj.Value.Str()), true
	case proto.RuntimeRemoteObjectTypeBoolean:
		return value.Bool(obj.Value.Bool()), true
	case proto.RuntimeRemoteObjectTypeSymbol:
		return value.Symbol(obj.Description), true
	case proto.RuntimeRemoteObjectTypeBigint:
		return value.BigInt(strings.TrimSuffix(string(obj.UnserializableValue), "n")), true
	case proto.RuntimeRemoteObjectTypeNumber:
		switch string(obj.UnserializableValue) {
		case "NaN":
			return value.Number(math.NaN()), true
		case "Infinity":
			return value.Number(math.Inf(1)), true
		case "-Infinity":
			return value.Number(math.Inf(-1)), true
		case "-0":
			return value.Number(0), true
		}
		return value.Number(obj.Value.Num()), true
	}
	if obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return value.Null(), true
	}
	return value.RemoteValue{}, false
}

func (r *Resolver) describeObject(ctx context.Context, obj *proto.RuntimeRemoteObject) (value.RemoteValue, error) {
	id := value.ObjectID(obj.ObjectID)

	if obj.Type == proto.RuntimeRemoteObjectTypeFunction {
		name, params := parseFunction(obj.Description)
		return value.Function(id, name, params...), nil
	}

	switch obj.Subtype {
	case proto.RuntimeRemoteObjectSubtypeArray:
		return value.Array(id, parseLength(obj.Description)), nil
	case proto.RuntimeRemoteObjectSubtypeTypedarray:
		return value.TypedArray(id, obj.ClassName, parseLength(obj.Description)), nil
	case proto.RuntimeRemoteObjectSubtypeMap:
		return value.Map(id, parseLength(obj.Description)), nil
	case proto.RuntimeRemoteObjectSubtypeSet:
		return value.Set(id, parseLength(obj.Description)), nil
	case proto.RuntimeRemoteObjectSubtypeRegexp:
		source, flags := parseRegExp(obj.Description)
		return value.RegExp(id, source, flags), nil
	case proto.RuntimeRemoteObjectSubtypeError:
		name, message := parseError(obj.ClassName, obj.Description)
		return value.Error(id, name, message), nil
	case proto.RuntimeRemoteObjectSubtypePromise:
		return value.Promise(id), nil
	case proto.RuntimeRemoteObjectSubtypeProxy:
		return value.Proxy(id), nil
	case proto.RuntimeRemoteObjectSubtypeDate:
		res, err := r.callByValue(ctx, obj.ObjectID, timeFn)
		if err != nil {
			return value.RemoteValue{}, err
		}
		return value.Date(id, time.UnixMilli(int64(res.Num()))), nil
	case proto.RuntimeRemoteObjectSubtypeNode:
		return r.describeNode(ctx, obj)
	}
	return value.Object(id, obj.ClassName), nil
}

func (r *Resolver) describeNode(ctx context.Context, obj *proto.RuntimeRemoteObject) (value.RemoteValue, error) {
	info, err := r.callByValue(ctx, obj.ObjectID, nodeInfoFn)
	if err != nil {
		return value.RemoteValue{}, err
	}
	if text, ok := info.Gets("text"); ok {
		return value.Text(text.Str()), nil
	}

	var attrs []value.Attribute
	for _, pair := range info.Get("attrs").Arr() {
		items := pair.Arr()
		if len(items) == 2 {
			attrs = append(attrs, value.Attribute{Name: items[0].Str(), Value: items[1].Str()})
		}
	}
	return value.Element(value.ObjectID(obj.ObjectID), info.Get("tag").Str(), info.Get("children").Int(), attrs...), nil
}

// callByValue runs fn on an object and returns its JSON result
func (r *Resolver) callByValue(ctx context.Context, oid proto.RuntimeRemoteObjectID, fn string) (gson.JSON, error) {
	res, err := proto.RuntimeCallFunctionOn{
		FunctionDeclaration: fn,
		ObjectID:            oid,
		ReturnByValue:       true,
	}.Call(r.page.Context(ctx))
	if err != nil {
		return gson.JSON{}, err
	}
	if res.ExceptionDetails != nil {
		return gson.JSON{}, thrown(res.ExceptionDetails)
	}
	return res.Result.Value, nil
}

// callForArray runs fn and lists the indexed elements of the array it
// returns
func (r *Resolver) callForArray(ctx context.Context, oid proto.RuntimeRemoteObjectID, fn string, args ...interface{}) ([]*proto.RuntimeRemoteObject, error) {
	callArgs := make([]*proto.RuntimeCallArgument, len(args))
	for i, a := range args {
		callArgs[i] = &proto.RuntimeCallArgument{Value: gson.New(a)}
	}

	res, err := proto.RuntimeCallFunctionOn{
		FunctionDeclaration: fn,
		ObjectID:            oid,
		Arguments:           callArgs,
		ObjectGroup:         objectGroup,
	}.Call(r.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, thrown(res.ExceptionDetails)
	}

	props, err := proto.RuntimeGetProperties{ObjectID: res.Result.ObjectID, OwnProperties: true}.Call(r.page.Context(ctx))
	if err != nil {
		return nil, err
	}

	items := make([]*proto.RuntimeRemoteObject, parseLength(res.Result.Description))
	for _, p := range props.Result {
		i, err := strconv.Atoi(p.Name)
		if err != nil || i < 0 || i >= len(items) {
			continue
		}
		items[i] = p.Value
	}
	return items, nil
}

// entries lists map entries (pairs) or set members and child nodes
func (r *Resolver) entries(ctx context.Context, oid proto.RuntimeRemoteObjectID, fn string, pairs bool) ([]value.PropertyDescriptor, error) {
	items, err := r.callForArray(ctx, oid, fn)
	if err != nil {
		return nil, err
	}

	if !pairs {
		props := make([]value.PropertyDescriptor, 0, len(items))
		for i, item := range items {
			v, err := r.describe(ctx, item)
			if err != nil {
				return nil, err
			}
			props = append(props, value.Data(value.IndexKey(i), v))
		}
		return props, nil
	}

	props := make([]value.PropertyDescriptor, 0, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		k, err := r.describe(ctx, items[i])
		if err != nil {
			return nil, err
		}
		v, err := r.describe(ctx, items[i+1])
		if err != nil {
			return nil, err
		}
		props = append(props, value.Entry(i/2, k, v))
	}
	return props, nil
}

// slice fetches one bucket of a large array
func (r *Resolver) slice(ctx context.Context, oid proto.RuntimeRemoteObjectID, rng bucket.Range) ([]value.PropertyDescriptor, error) {
	items, err := r.callForArray(ctx, oid, sliceFn, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}

	props := make([]value.PropertyDescriptor, 0, len(items))
	for i, item := range items {
		v, err := r.describe(ctx, item)
		if err != nil {
			return nil, err
		}
		props = append(props, value.Data(value.IndexKey(rng.Start+i), v))
	}
	return props, nil
}

func parseLength(description string) int {
	m := lengthPattern.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// parseFunction reads the name and parameter list from a function's source
// text as CDP describes it
func parseFunction(description string) (string, []string) {
	src := strings.TrimSpace(description)
	if strings.HasPrefix(src, "class ") {
		fields := strings.Fields(strings.TrimPrefix(src, "class "))
		if len(fields) > 0 && fields[0] != "{" && fields[0] != "extends" {
			return fields[0], nil
		}
		return "", nil
	}

	if m := functionPattern.FindStringSubmatch(src); m != nil {
		return m[1], splitParams(m[2])
	}
	if m := arrowPattern.FindStringSubmatch(src); m != nil {
		return "", splitParams(m[1])
	}
	if m := methodPattern.FindStringSubmatch(src); m != nil {
		return m[1], splitParams(m[2])
	}
	return "", nil
}

func splitParams(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseRegExp splits "/ab+c/gi" into source and flags
func parseRegExp(description string) (string, string) {
	last := strings.LastIndex(description, "/")
	if !strings.HasPrefix(description, "/") || last <= 0 {
		return description, ""
	}
	return description[1:last], description[last+1:]
}

// parseError takes the first line of an error's stack, "Name: message"
func parseError(className, description string) (string, string) {
	line := firstLine(description)
	if name, msg, ok := strings.Cut(line, ": "); ok && !strings.ContainsAny(name, " \t") {
		return name, msg
	}
	if line == className {
		return className, ""
	}
	return className, line
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
