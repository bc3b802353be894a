package sandbox

import "github.com/dop251/goja"

// introspection is evaluated once per VM, before any user script, and called
// with the Go-side isProxy and classOf checks. The object it returns is held
// on the Go side only; evaluated scripts cannot reach it.
//
// Every builtin it relies on is captured when it is first evaluated and is
// invoked through the captured Reflect.apply, so scripts that later replace
// globals or patch prototypes cannot run code during passive inspection.
// Records and lists are null-prototype objects, so writing them never reaches
// a setter on Object.prototype. Collections are walked with their forEach
// rather than the iterator protocol. Only getter reads accessor properties,
// which it exists to do.
var introspection = goja.MustCompile("introspection.js", `(function (isProxy, classOf) {
	var apply = Reflect.apply;
	var create = Object.create;
	var gOPD = Object.getOwnPropertyDescriptor;
	var gOPN = Object.getOwnPropertyNames;
	var getProto = Object.getPrototypeOf;
	var hasOwn = Object.prototype.hasOwnProperty;
	var isArray = Array.isArray;
	var isView = ArrayBuffer.isView;
	var toStr = String;
	var fnToString = Function.prototype.toString;
	var mapSize = gOPD(Map.prototype, "size").get;
	var setSize = gOPD(Set.prototype, "size").get;
	var mapForEach = Map.prototype.forEach;
	var setForEach = Set.prototype.forEach;
	var dateGetTime = Date.prototype.getTime;
	var viewByteLength = gOPD(DataView.prototype, "byteLength").get;
	var typedLength = gOPD(getProto(Uint8Array.prototype), "length").get;
	var regexpSource = gOPD(RegExp.prototype, "source").get;

	var flagGetters = [];
	var flagNames = [["hasIndices", "d"], ["global", "g"], ["ignoreCase", "i"], ["multiline", "m"],
		["dotAll", "s"], ["unicode", "u"], ["unicodeSets", "v"], ["sticky", "y"]];
	for (var f = 0; f < flagNames.length; f++) {
		var fd = gOPD(RegExp.prototype, flagNames[f][0]);
		if (fd && fd.get) flagGetters[flagGetters.length] = [fd.get, flagNames[f][1]];
	}

	function record() {
		return create(null);
	}

	function list() {
		var l = create(null);
		l.length = 0;
		return l;
	}

	function append(l, v) {
		l[l.length] = v;
		l.length = l.length + 1;
	}

	function field(desc, name) {
		return apply(hasOwn, desc, [name]) ? desc[name] : undefined;
	}

	function brand(fn, v) {
		try {
			apply(fn, v, []);
			return true;
		} catch (e) {
			return false;
		}
	}

	function kindOf(v) {
		if (v === undefined) return "undefined";
		if (v === null) return "null";
		var t = typeof v;
		if (t === "string" || t === "boolean" || t === "bigint" || t === "symbol" || t === "function") return t;
		if (t === "number") {
			if (v !== v) return "nan";
			if (v === Infinity) return "infinity";
			if (v === -Infinity) return "-infinity";
			return "number";
		}
		if (isArray(v)) return "array";
		if (isView(v) && !brand(viewByteLength, v)) return "typedarray";
		if (brand(mapSize, v)) return "map";
		if (brand(setSize, v)) return "set";
		if (brand(dateGetTime, v)) return "date";
		var cls = classOf(v);
		if (cls === "Error") return "error";
		if (cls === "Promise") return "promise";
		if (cls === "RegExp") return "regexp";
		return "object";
	}

	function className(v) {
		var proto = getProto(v);
		if (proto === null || isProxy(proto)) return "Object";
		var ctor = gOPD(proto, "constructor");
		if (!ctor) return "Object";
		var fn = field(ctor, "value");
		if (typeof fn !== "function" || isProxy(fn)) return "Object";
		var name = dataOf(fn, "name");
		return typeof name === "string" && name ? name : "Object";
	}

	function dataOf(v, key) {
		for (var o = v; o !== null; o = getProto(o)) {
			if (isProxy(o)) return undefined;
			var desc = gOPD(o, key);
			if (desc) return field(desc, "value");
		}
		return undefined;
	}

	function text(v) {
		return typeof v === "string" ? v : "";
	}

	function flagsOf(v) {
		var flags = "";
		for (var i = 0; i < flagGetters.length; i++) {
			if (apply(flagGetters[i][0], v, [])) flags = flags + flagGetters[i][1];
		}
		return flags;
	}

	function describe(v) {
		var d = record();
		d.kind = kindOf(v);
		switch (d.kind) {
		case "string": d.str = v; break;
		case "number": d.num = v; break;
		case "boolean": d.bool = v; break;
		case "bigint":
		case "symbol": d.str = toStr(v); break;
		case "array": d.length = v.length; break;
		case "typedarray": d.length = apply(typedLength, v, []); d.className = className(v); break;
		case "map": d.length = apply(mapSize, v, []); break;
		case "set": d.length = apply(setSize, v, []); break;
		case "function": d.name = text(dataOf(v, "name")); d.source = apply(fnToString, v, []); break;
		case "error": d.name = text(dataOf(v, "name")) || "Error"; d.message = text(dataOf(v, "message")); break;
		case "date": d.time = apply(dateGetTime, v, []); break;
		case "regexp": d.source = apply(regexpSource, v, []); d.flags = flagsOf(v); break;
		case "object": d.className = className(v); break;
		}
		return d;
	}

	function own(obj, key) {
		var desc = gOPD(obj, key);
		if (!desc) return null;
		var p = record();
		p.key = key;
		if (field(desc, "get")) {
			p.kind = "getter";
		} else if (field(desc, "set")) {
			p.kind = "setter";
		} else {
			p.kind = "data";
			p.value = field(desc, "value");
		}
		return p;
	}

	function entry(index, v) {
		var p = record();
		p.index = index;
		p.kind = "data";
		p.value = v;
		return p;
	}

	function properties(obj, kind, start, end) {
		var out = list();
		var i;
		switch (kind) {
		case "map":
			apply(mapForEach, obj, [function (v, k) {
				var p = entry(out.length, v);
				p.entryKey = k;
				append(out, p);
			}]);
			return out;
		case "set":
			apply(setForEach, obj, [function (v) {
				append(out, entry(out.length, v));
			}]);
			return out;
		case "array":
			var length = isArray(obj) ? obj.length : apply(typedLength, obj, []);
			if (start < 0) { start = 0; end = length - 1; }
			for (i = start; i <= end && i < length; i++) {
				var p = own(obj, "" + i);
				if (p) { p.index = i; append(out, p); }
			}
			return out;
		}
		var names = gOPN(obj);
		for (i = 0; i < names.length; i++) {
			append(out, own(obj, names[i]));
		}
		return out;
	}

	function getter(obj, key) {
		for (var o = obj; o !== null; o = getProto(o)) {
			var desc = gOPD(o, key);
			if (desc) {
				var get = field(desc, "get");
				if (!get) return undefined;
				return apply(get, obj, []);
			}
		}
		return undefined;
	}

	var helpers = record();
	helpers.describe = describe;
	helpers.properties = properties;
	helpers.getter = getter;
	return helpers;
})`, true)
