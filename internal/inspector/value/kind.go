package value

import "fmt"

// Kind discriminates the RemoteValue union
type Kind int

const (
	KindPrimitive Kind = iota
	KindBigInt
	KindSymbol
	KindArray
	KindObject
	KindMap
	KindSet
	KindFunction
	KindError
	KindDate
	KindRegExp
	KindHTMLElement
	KindHTMLText
	KindPromise
	KindProxy
	KindGetter
)

var kindNames = map[Kind]string{
	KindPrimitive:   "primitive",
	KindBigInt:      "bigint",
	KindSymbol:      "symbol",
	KindArray:       "array",
	KindObject:      "object",
	KindMap:         "map",
	KindSet:         "set",
	KindFunction:    "function",
	KindError:       "error",
	KindDate:        "date",
	KindRegExp:      "regexp",
	KindHTMLElement: "htmlElement",
	KindHTMLText:    "htmlText",
	KindPromise:     "promise",
	KindProxy:       "proxy",
	KindGetter:      "getter",
}

// String returns the wire name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind converts a wire name back to a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown value kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Composite reports whether values of this kind carry an ObjectID and can
// be expanded into properties or entries.
func (k Kind) Composite() bool {
	switch k {
	case KindArray, KindObject, KindMap, KindSet, KindFunction, KindError,
		KindDate, KindRegExp, KindHTMLElement, KindPromise, KindProxy:
		return true
	default:
		return false
	}
}

// Container reports whether the kind nests other values for depth
// accounting during serialization.
func (k Kind) Container() bool {
	switch k {
	case KindArray, KindObject, KindMap, KindSet, KindHTMLElement, KindPromise, KindProxy:
		return true
	default:
		return false
	}
}

// Primitive distinguishes the scalar shapes of KindPrimitive
type Primitive int

const (
	PrimitiveUndefined Primitive = iota
	PrimitiveNull
	PrimitiveString
	PrimitiveNumber
	PrimitiveBoolean
	PrimitiveNaN
	PrimitiveInfinity
	PrimitiveNegInfinity
)

var primitiveNames = map[Primitive]string{
	PrimitiveUndefined:   "undefined",
	PrimitiveNull:        "null",
	PrimitiveString:      "string",
	PrimitiveNumber:      "number",
	PrimitiveBoolean:     "boolean",
	PrimitiveNaN:         "NaN",
	PrimitiveInfinity:    "Infinity",
	PrimitiveNegInfinity: "-Infinity",
}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (p Primitive) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Primitive) UnmarshalText(text []byte) error {
	for prim, name := range primitiveNames {
		if name == string(text) {
			*p = prim
			return nil
		}
	}
	return fmt.Errorf("unknown primitive %q", text)
}
