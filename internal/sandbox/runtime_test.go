package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/serialize"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

func newRuntime(t *testing.T, config Config) *Runtime {
	t.Helper()
	rt, err := New(config)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func propsByKey(props []value.PropertyDescriptor) map[string]value.PropertyDescriptor {
	out := make(map[string]value.PropertyDescriptor, len(props))
	for _, p := range props {
		out[p.Key.String()] = p
	}
	return out
}

func TestEvaluateDescribesValues(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())

	tests := []struct {
		name   string
		script string
		kind   value.Kind
		check  func(t *testing.T, v value.RemoteValue)
	}{
		{"number", "6 * 7", value.KindPrimitive, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, value.PrimitiveNumber, v.Primitive)
			assert.Equal(t, 42.0, v.Num)
		}},
		{"string", "'hello'.toUpperCase()", value.KindPrimitive, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "HELLO", v.Str)
		}},
		{"nan", "0 / 0", value.KindPrimitive, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, value.PrimitiveNaN, v.Primitive)
		}},
		{"undefined", "undefined", value.KindPrimitive, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, value.PrimitiveUndefined, v.Primitive)
		}},
		{"null", "null", value.KindPrimitive, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, value.PrimitiveNull, v.Primitive)
		}},
		{"bigint", "12345678901234567890n", value.KindBigInt, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "12345678901234567890", v.Str)
		}},
		{"symbol", "Symbol('tag')", value.KindSymbol, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "Symbol(tag)", v.Str)
		}},
		{"array", "[1, 2, 3]", value.KindArray, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, 3, v.Length)
			assert.Equal(t, "Array(3)", v.Preview)
		}},
		{"typed array", "new Uint8Array(16)", value.KindArray, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "Uint8Array", v.ClassName)
			assert.Equal(t, 16, v.Length)
		}},
		{"map", "new Map([[1, 2]])", value.KindMap, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "Map(1)", v.Preview)
		}},
		{"function", "(function add(a, b) { return a + b })", value.KindFunction, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "add", v.Name)
			assert.Equal(t, []string{"a", "b"}, v.Params)
		}},
		{"error", "new TypeError('bad')", value.KindError, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "TypeError", v.Name)
			assert.Equal(t, "bad", v.Message)
		}},
		{"date", "new Date(Date.UTC(2024, 0, 2))", value.KindDate, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "2024-01-02T00:00:00.000Z", value.FormatISO(v.Time))
		}},
		{"regexp", "/a+b/gi", value.KindRegExp, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "a+b", v.Source)
			assert.Equal(t, "gi", v.Flags)
		}},
		{"class instance", "class Point {}; new Point()", value.KindObject, func(t *testing.T, v value.RemoteValue) {
			assert.Equal(t, "Point", v.ClassName)
		}},
		{"promise", "Promise.resolve(1)", value.KindPromise, nil},
		{"proxy", "new Proxy({}, {})", value.KindProxy, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := rt.Evaluate(context.Background(), tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind)
			if tt.check != nil {
				tt.check(t, v)
			}
		})
	}
}

func TestObjectIdentityIsStable(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()

	v, err := rt.Evaluate(ctx, "var o = {name: 'a'}; o.self = o; o")
	require.NoError(t, err)

	props, err := rt.FetchProperties(ctx, v.ObjectID, nil)
	require.NoError(t, err)
	self := propsByKey(props)["self"]
	require.NotNil(t, self.Value)
	assert.Equal(t, v.ObjectID, self.Value.ObjectID)

	again, err := rt.Evaluate(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, v.ObjectID, again.ObjectID)
}

func TestGettersRunOnlyWhenInvoked(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()

	v, err := rt.Evaluate(ctx, `
		var calls = 0;
		var g = {
			get x() { calls++; return {deep: true}; },
			get broken() { throw new Error("boom"); },
			set onlySet(v) {},
		};
		g
	`)
	require.NoError(t, err)

	props, err := rt.FetchProperties(ctx, v.ObjectID, nil)
	require.NoError(t, err)
	byKey := propsByKey(props)
	assert.Equal(t, value.DescriptorGetter, byKey["x"].Kind)
	assert.Equal(t, value.DescriptorGetter, byKey["broken"].Kind)
	assert.Equal(t, value.DescriptorSetter, byKey["onlySet"].Kind)

	calls, err := rt.Evaluate(ctx, "calls")
	require.NoError(t, err)
	assert.Equal(t, 0.0, calls.Num)

	got, err := rt.InvokeGetter(ctx, byKey["x"].Value.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, value.KindObject, got.Kind)

	calls, err = rt.Evaluate(ctx, "calls")
	require.NoError(t, err)
	assert.Equal(t, 1.0, calls.Num)

	_, err = rt.InvokeGetter(ctx, byKey["broken"].Value.ObjectID)
	assert.ErrorIs(t, err, ErrScriptFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestCollectionsAndRanges(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()

	m, err := rt.Evaluate(ctx, "var k = {id: 1}; new Map([['one', 1], [k, 'obj']])")
	require.NoError(t, err)
	props, err := rt.FetchProperties(ctx, m.ObjectID, nil)
	require.NoError(t, err)
	require.Len(t, props, 2)
	require.NotNil(t, props[0].EntryKey)
	assert.Equal(t, "one", props[0].EntryKey.Str)
	assert.Equal(t, value.KindObject, props[1].EntryKey.Kind)

	s, err := rt.Evaluate(ctx, "new Set(['a', 'b'])")
	require.NoError(t, err)
	props, err = rt.FetchProperties(ctx, s.ObjectID, nil)
	require.NoError(t, err)
	assert.Len(t, props, 2)
	assert.True(t, props[1].Key.IsIndex)

	arr, err := rt.Evaluate(ctx, "Array.from({length: 250}, (_, i) => i)")
	require.NoError(t, err)
	props, err = rt.FetchProperties(ctx, arr.ObjectID, &bucket.Range{Start: 200, End: 249})
	require.NoError(t, err)
	require.Len(t, props, 50)
	assert.Equal(t, 200, props[0].Key.Index)
	assert.Equal(t, 249.0, props[49].Value.Num)
}

func TestProxyTrapsAreNotRun(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()

	v, err := rt.Evaluate(ctx, `new Proxy({a: 1}, {
		get() { throw new Error("trap"); },
		ownKeys() { throw new Error("trap"); },
		getOwnPropertyDescriptor() { throw new Error("trap"); },
	})`)
	require.NoError(t, err)
	require.Equal(t, value.KindProxy, v.Kind)

	props, err := rt.FetchProperties(ctx, v.ObjectID, nil)
	require.NoError(t, err)
	byKey := propsByKey(props)
	assert.Equal(t, value.KindObject, byKey["[[Target]]"].Value.Kind)
	assert.Equal(t, value.KindObject, byKey["[[Handler]]"].Value.Kind)
}

func TestPatchedBuiltinsDoNotRunDuringInspection(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()

	v, err := rt.Evaluate(ctx, `
		var touched = 0;
		var data = {
			m: new Map([["k", {a: 1}]]),
			s: new Set([1, 2]),
			arr: [1, 2],
			re: /x/gi,
			d: new Date(0),
			err: new RangeError("e"),
			p: Promise.resolve(1),
			fn: function f(a, b) {},
			obj: {a: 1, get g() { touched++; return 1; }},
		};
		function bump() { touched++; }
		var mapIterator = Object.getPrototypeOf(new Map().entries());
		mapIterator.next = function () { touched++; return {done: true}; };
		Map.prototype.entries = function () { touched++; return [][Symbol.iterator](); };
		Map.prototype.forEach = bump;
		Set.prototype.values = function () { touched++; return [][Symbol.iterator](); };
		Array.prototype.push = bump;
		Array.from = function () { touched++; return []; };
		Array.isArray = function () { touched++; return false; };
		Function.prototype.call = bump;
		Function.prototype.toString = function () { touched++; return ""; };
		Date.prototype.getTime = function () { touched++; return 1; };
		Object.defineProperty(RegExp.prototype, "flags", {get: function () { touched++; return ""; }});
		Object.defineProperty(Map.prototype, "size", {get: function () { touched++; return 0; }});
		Object.getOwnPropertyDescriptor = function () { touched++; };
		Object.getOwnPropertyNames = function () { touched++; return []; };
		Object.getPrototypeOf = function () { touched++; return null; };
		Map = Set = Date = RegExp = Error = Promise = bump;
		Object.defineProperty(Object.prototype, "index", {set: bump, get: bump});
		Object.defineProperty(Object.prototype, "length", {set: bump, get: bump});
		Object.defineProperty(Object.prototype, "kind", {set: bump, get: bump});
		Object.defineProperty(Object.prototype, "get", {get: bump});
		Object.defineProperty(Object.prototype, "value", {get: bump});
		touched = 0;
		data
	`)
	require.NoError(t, err)

	props, err := rt.FetchProperties(ctx, v.ObjectID, nil)
	require.NoError(t, err)
	byKey := propsByKey(props)

	assert.Equal(t, value.KindMap, byKey["m"].Value.Kind)
	assert.Equal(t, "Map(1)", byKey["m"].Value.Preview)
	assert.Equal(t, value.KindSet, byKey["s"].Value.Kind)
	assert.Equal(t, value.KindArray, byKey["arr"].Value.Kind)
	assert.Equal(t, 2, byKey["arr"].Value.Length)
	assert.Equal(t, "gi", byKey["re"].Value.Flags)
	assert.Equal(t, "1970-01-01T00:00:00.000Z", value.FormatISO(byKey["d"].Value.Time))
	assert.Equal(t, value.KindError, byKey["err"].Value.Kind)
	assert.Equal(t, "RangeError", byKey["err"].Value.Name)
	assert.Equal(t, value.KindPromise, byKey["p"].Value.Kind)
	assert.Equal(t, []string{"a", "b"}, byKey["fn"].Value.Params)
	assert.Equal(t, value.KindObject, byKey["obj"].Value.Kind)

	entries, err := rt.FetchProperties(ctx, byKey["m"].Value.ObjectID, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k", entries[0].EntryKey.Str)

	members, err := rt.FetchProperties(ctx, byKey["s"].Value.ObjectID, nil)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	elems, err := rt.FetchProperties(ctx, byKey["arr"].Value.ObjectID, nil)
	require.NoError(t, err)
	assert.Len(t, elems, 2)

	fields, err := rt.FetchProperties(ctx, byKey["obj"].Value.ObjectID, nil)
	require.NoError(t, err)
	assert.Equal(t, value.DescriptorGetter, propsByKey(fields)["g"].Kind)

	touched, err := rt.Evaluate(ctx, "touched")
	require.NoError(t, err)
	assert.Equal(t, 0.0, touched.Num)
}

func TestUnknownObject(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	_, err := rt.FetchProperties(context.Background(), "obj-999", nil)
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestRuntimeSecurity(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())

	dangerousScripts := []struct {
		name   string
		script string
	}{
		{"require blocked", "require('fs')"},
		{"process blocked", "process.exit(1)"},
		{"module blocked", "module.exports = {}"},
	}

	for _, tt := range dangerousScripts {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.Evaluate(context.Background(), tt.script)
			if err == nil {
				t.Errorf("Dangerous script executed successfully: %s", tt.script)
			}
		})
	}
}

func TestRuntimeTimeout(t *testing.T) {
	config := DefaultConfig()
	config.Timeout = 100 * time.Millisecond
	rt := newRuntime(t, config)

	_, err := rt.Evaluate(context.Background(), `
		let i = 0;
		while(true) {
			i++;
		}
	`)
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	assert.ErrorIs(t, err, ErrScriptFailed)

	// The interrupt must not leak into the next call
	v, err := rt.Evaluate(context.Background(), "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Num)
}

func TestRuntimeConsoleCapture(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())

	_, err := rt.Evaluate(context.Background(), `
		console.log('info message');
		console.warn('warning message');
		console.error('error message');
		'done'
	`)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	entries := rt.Console()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 console entries, got %d", len(entries))
	}

	levels := []string{"log", "warn", "error"}
	for i, entry := range entries {
		if entry.Level != levels[i] {
			t.Errorf("Console entry %d: expected level %s, got %s", i, levels[i], entry.Level)
		}
	}
}

func TestDOMElements(t *testing.T) {
	config := DefaultConfig()
	config.DOMHTML = `<div id="app" class="box"><span>hi</span> tail<script>alert(1)</script></div>`
	rt := newRuntime(t, config)
	ctx := context.Background()

	v, err := rt.Evaluate(ctx, "document.getElementById('app')")
	require.NoError(t, err)
	require.Equal(t, value.KindHTMLElement, v.Kind)
	assert.Equal(t, "div", v.Name)
	assert.Equal(t, []value.Attribute{{Name: "id", Value: "app"}, {Name: "class", Value: "box"}}, v.Attributes)

	children, err := rt.FetchProperties(ctx, v.ObjectID, nil)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "span", children[0].Value.Name)
	assert.Equal(t, value.KindHTMLText, children[1].Value.Kind)
	assert.Equal(t, "tail", children[1].Value.Str)

	same, err := rt.Evaluate(ctx, "document.querySelector('.box')")
	require.NoError(t, err)
	assert.Equal(t, v.ObjectID, same.ObjectID)

	count, err := rt.Evaluate(ctx, "document.querySelectorAll('script').length")
	require.NoError(t, err)
	assert.Equal(t, 0.0, count.Num)

	_, err = rt.Evaluate(ctx, "document.querySelector('[[[')")
	assert.ErrorIs(t, err, ErrScriptFailed)

	tree := inspector.NewTree(rt)
	out, err := serialize.New(tree).Serialize(ctx, tree.NewRoot(v))
	require.NoError(t, err)
	assert.Equal(t, `<div id="app" class="box"><span>hi</span> tail</div>`, out)
}

func TestInspectorOverRuntime(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	ctx := context.Background()
	tree := inspector.NewTree(rt)

	simple, err := rt.Evaluate(ctx, "({foo: 123, bar: 'abc', baz: true})")
	require.NoError(t, err)
	out, err := serialize.New(tree).Serialize(ctx, tree.NewRoot(simple))
	require.NoError(t, err)
	assert.Equal(t, `{"foo": 123, "bar": "abc", "baz": true}`, out)

	cyclic, err := rt.Evaluate(ctx, "var c = {name: 'a'}; c.self = c; c")
	require.NoError(t, err)
	out, err = serialize.New(tree).Serialize(ctx, tree.NewRoot(cyclic))
	require.NoError(t, err)
	assert.Equal(t, `{"name": "a", "self": "…"}`, out)

	m, err := rt.Evaluate(ctx, `new Map([["one", 1], ["two", "blah"], ["three", true], ["four", []]])`)
	require.NoError(t, err)
	out, err = serialize.New(tree).Serialize(ctx, tree.NewRoot(m))
	require.NoError(t, err)
	assert.Equal(t, `[["one", 1], ["two", "blah"], ["three", true], ["four", []]]`, out)
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2, nil)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	rt, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire runtime: %v", err)
	}

	if _, err := rt.Evaluate(ctx, "var leaked = 1"); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	assert.Equal(t, 1, pool.Stats()["in_use"])

	if err := pool.Release(rt); err != nil {
		t.Errorf("Failed to release runtime: %v", err)
	}

	// Released runtimes come back with fresh globals
	for i := 0; i < 2; i++ {
		rt, err := pool.Acquire(ctx)
		require.NoError(t, err)
		v, err := rt.Evaluate(ctx, "typeof leaked")
		require.NoError(t, err)
		assert.Equal(t, "undefined", v.Str)
		defer pool.Release(rt)
	}
}
