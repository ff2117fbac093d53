package otlpdecode

import (
	"encoding/hex"
	"strconv"
	"strings"

	otlpCommon "go.opentelemetry.io/proto/otlp/common/v1"
)

// stringifyValue recursively renders an OTLP AnyValue the way the wire
// attribute list expects: strings verbatim, bools as "true"/"false",
// numbers as decimal, bytes as lowercase hex, arrays as "[v1, v2, ...]",
// kvlists as "{k=v, ...}", and a missing value as "".
func stringifyValue(v *otlpCommon.AnyValue) string {
	if v == nil {
		return ""
	}

	switch val := v.GetValue().(type) {
	case *otlpCommon.AnyValue_StringValue:
		return val.StringValue
	case *otlpCommon.AnyValue_BoolValue:
		if val.BoolValue {
			return "true"
		}
		return "false"
	case *otlpCommon.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *otlpCommon.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'f', -1, 64)
	case *otlpCommon.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *otlpCommon.AnyValue_ArrayValue:
		parts := make([]string, 0, len(val.ArrayValue.GetValues()))
		for _, e := range val.ArrayValue.GetValues() {
			parts = append(parts, stringifyValue(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *otlpCommon.AnyValue_KvlistValue:
		parts := make([]string, 0, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			parts = append(parts, kv.GetKey()+"="+stringifyValue(kv.GetValue()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}
