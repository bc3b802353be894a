// Package value defines the RemoteValue model: an immutable description of
// a value living in a remote execution context.
//
// Scalars are fully described. Composite values carry an ObjectID, which is
// the only handle the inspector has on their contents; properties and
// entries are fetched later through a resolver.
package value

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ObjectID is the opaque, stable identity of a remote object. Two values
// with the same ObjectID denote the same remote object.
type ObjectID string

// Attribute is one HTML attribute, kept in document order
type Attribute struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Value string `json:"value" yaml:"value" toml:"value"`
}

// RemoteValue describes a value without necessarily holding its contents
type RemoteValue struct {
	Kind Kind `json:"kind" yaml:"kind" toml:"kind"`

	// Scalars
	Primitive Primitive `json:"primitive,omitempty" yaml:"primitive,omitempty" toml:"primitive,omitempty"`
	Str       string    `json:"str,omitempty" yaml:"str,omitempty" toml:"str,omitempty"`
	Num       float64   `json:"num,omitempty" yaml:"num,omitempty" toml:"num,omitempty"`
	Bool      bool      `json:"bool,omitempty" yaml:"bool,omitempty" toml:"bool,omitempty"`

	// Composites
	ObjectID  ObjectID `json:"objectId,omitempty" yaml:"objectId,omitempty" toml:"objectId,omitempty"`
	Length    int      `json:"length,omitempty" yaml:"length,omitempty" toml:"length,omitempty"`
	HasLength bool     `json:"hasLength,omitempty" yaml:"hasLength,omitempty" toml:"hasLength,omitempty"`
	Preview   string   `json:"preview,omitempty" yaml:"preview,omitempty" toml:"preview,omitempty"`
	ClassName string   `json:"className,omitempty" yaml:"className,omitempty" toml:"className,omitempty"`

	// Kind-specific payload
	Name       string      `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Params     []string    `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Message    string      `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
	Time       time.Time   `json:"time,omitempty" yaml:"time,omitempty" toml:"time"`
	Source     string      `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
	Flags      string      `json:"flags,omitempty" yaml:"flags,omitempty" toml:"flags,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty" toml:"attributes,omitempty"`
}

// Composite reports whether the value can be expanded
func (v RemoteValue) Composite() bool {
	return v.Kind.Composite()
}

// Summary is the text shown next to a key. Scalars carry no Preview and are
// rendered from their payload.
func (v RemoteValue) Summary() string {
	switch v.Kind {
	case KindPrimitive:
		switch v.Primitive {
		case PrimitiveString:
			return strconv.Quote(v.Str)
		case PrimitiveNumber:
			return FormatNumber(v.Num)
		case PrimitiveBoolean:
			return strconv.FormatBool(v.Bool)
		default:
			return v.Primitive.String()
		}
	case KindBigInt:
		return v.Str + "n"
	case KindSymbol, KindHTMLText:
		return v.Str
	}
	return v.Preview
}

// ============================================================================
// Scalar constructors
// ============================================================================

func Undefined() RemoteValue { return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveUndefined} }
func Null() RemoteValue      { return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveNull} }

func String(s string) RemoteValue {
	return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveString, Str: s}
}

func Bool(b bool) RemoteValue {
	return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveBoolean, Bool: b}
}

// Number maps NaN and the infinities onto their dedicated primitives
func Number(f float64) RemoteValue {
	switch {
	case math.IsNaN(f):
		return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveNaN}
	case math.IsInf(f, 1):
		return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveInfinity}
	case math.IsInf(f, -1):
		return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveNegInfinity}
	}
	return RemoteValue{Kind: KindPrimitive, Primitive: PrimitiveNumber, Num: f}
}

// BigInt takes the decimal digits, optionally signed, without the n suffix
func BigInt(digits string) RemoteValue {
	return RemoteValue{Kind: KindBigInt, Str: digits}
}

// Symbol takes the full description, e.g. "Symbol(example)"
func Symbol(description string) RemoteValue {
	return RemoteValue{Kind: KindSymbol, Str: description}
}

func Text(content string) RemoteValue {
	return RemoteValue{Kind: KindHTMLText, Str: content}
}

// Getter is the placeholder for an accessor that has not been invoked.
// The ObjectID is whatever reference the resolver needs to invoke it.
func Getter(ref ObjectID) RemoteValue {
	return RemoteValue{Kind: KindGetter, ObjectID: ref, Preview: "(...)"}
}

// ============================================================================
// Composite constructors
// ============================================================================

func Object(id ObjectID, className string) RemoteValue {
	if className == "" {
		className = "Object"
	}
	return RemoteValue{Kind: KindObject, ObjectID: id, ClassName: className, Preview: className}
}

func Array(id ObjectID, length int) RemoteValue {
	return TypedArray(id, "Array", length)
}

// TypedArray describes array-like containers such as Uint8Array
func TypedArray(id ObjectID, className string, length int) RemoteValue {
	return RemoteValue{
		Kind:      KindArray,
		ObjectID:  id,
		ClassName: className,
		Length:    length,
		HasLength: true,
		Preview:   fmt.Sprintf("%s(%d)", className, length),
	}
}

func Map(id ObjectID, size int) RemoteValue {
	return RemoteValue{Kind: KindMap, ObjectID: id, ClassName: "Map", Length: size, HasLength: true, Preview: fmt.Sprintf("Map(%d)", size)}
}

func Set(id ObjectID, size int) RemoteValue {
	return RemoteValue{Kind: KindSet, ObjectID: id, ClassName: "Set", Length: size, HasLength: true, Preview: fmt.Sprintf("Set(%d)", size)}
}

func Function(id ObjectID, name string, params ...string) RemoteValue {
	return RemoteValue{
		Kind:      KindFunction,
		ObjectID:  id,
		ClassName: "Function",
		Name:      name,
		Params:    params,
		Preview:   fmt.Sprintf("ƒ %s()", name),
	}
}

func Error(id ObjectID, name, message string) RemoteValue {
	return RemoteValue{Kind: KindError, ObjectID: id, ClassName: name, Name: name, Message: message, Preview: name + ": " + message}
}

func Date(id ObjectID, t time.Time) RemoteValue {
	return RemoteValue{Kind: KindDate, ObjectID: id, ClassName: "Date", Time: t.UTC(), Preview: FormatISO(t)}
}

func RegExp(id ObjectID, source, flags string) RemoteValue {
	return RemoteValue{Kind: KindRegExp, ObjectID: id, ClassName: "RegExp", Source: source, Flags: flags, Preview: "/" + source + "/" + flags}
}

// Element describes an HTML element; childCount is its number of child nodes
func Element(id ObjectID, tag string, childCount int, attrs ...Attribute) RemoteValue {
	return RemoteValue{
		Kind:       KindHTMLElement,
		ObjectID:   id,
		Name:       tag,
		Attributes: attrs,
		Length:     childCount,
		HasLength:  true,
		Preview:    "<" + tag + ">",
	}
}

func Promise(id ObjectID) RemoteValue {
	return RemoteValue{Kind: KindPromise, ObjectID: id, ClassName: "Promise", Preview: "Promise"}
}

func Proxy(id ObjectID) RemoteValue {
	return RemoteValue{Kind: KindProxy, ObjectID: id, ClassName: "Proxy", Preview: "Proxy"}
}

// FormatISO renders an instant the way Date.prototype.toISOString does
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatNumber renders a finite number the way JavaScript prints it
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
