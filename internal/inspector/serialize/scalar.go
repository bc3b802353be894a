package serialize

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// writeScalar renders values that never need a fetch
func writeScalar(b *strings.Builder, v value.RemoteValue) {
	switch v.Kind {
	case value.KindPrimitive:
		b.WriteString(primitive(v))
	case value.KindBigInt:
		b.WriteString(v.Str)
		b.WriteByte('n')
	case value.KindSymbol:
		b.WriteString(quote(v.Str))
	case value.KindDate:
		b.WriteString(quote(value.FormatISO(v.Time)))
	case value.KindError:
		text := v.Name
		if v.Message != "" {
			text += ": " + v.Message
		}
		b.WriteString(quote(text))
	case value.KindRegExp:
		b.WriteByte('/')
		b.WriteString(v.Source)
		b.WriteByte('/')
		b.WriteString(v.Flags)
	case value.KindFunction:
		b.WriteString(quote(v.Name + "(" + strings.Join(v.Params, ", ") + ") {}"))
	case value.KindHTMLText:
		b.WriteString(v.Str)
	case value.KindGetter:
		b.WriteString(GetterToken)
	default:
		b.WriteString(quote(v.Preview))
	}
}

func primitive(v value.RemoteValue) string {
	switch v.Primitive {
	case value.PrimitiveString:
		return quote(v.Str)
	case value.PrimitiveNumber:
		return value.FormatNumber(v.Num)
	case value.PrimitiveBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case value.PrimitiveNull:
		return "null"
	case value.PrimitiveNaN:
		return "NaN"
	case value.PrimitiveInfinity:
		return "Infinity"
	case value.PrimitiveNegInfinity:
		return "-Infinity"
	default:
		return "undefined"
	}
}

// quote produces a JSON string literal
func quote(s string) string {
	out, err := sonic.MarshalString(s)
	if err != nil {
		return `"` + s + `"`
	}
	return out
}
