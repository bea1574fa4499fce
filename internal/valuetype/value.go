// Package valuetype implements the tagged-union value type that replaces
// untyped "any" payloads in capability parameters, capability results, and
// request content (spec section 9, "Dynamic any payloads").
package valuetype

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Kind tags which alternative a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindBytes // opaque binary payload, e.g. multimodal content
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Value is a JSON-scalar-plus-bytes tagged union. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	Kind    Kind
	boolV   bool
	numV    float64
	strV    string
	arrV    []Value
	objV    map[string]Value
	bytesV  []byte
}

func Null() Value              { return Value{Kind: KindNull} }
func Bool(b bool) Value        { return Value{Kind: KindBool, boolV: b} }
func Number(n float64) Value   { return Value{Kind: KindNumber, numV: n} }
func String(s string) Value    { return Value{Kind: KindString, strV: s} }
func Bytes(b []byte) Value     { return Value{Kind: KindBytes, bytesV: append([]byte(nil), b...)} }
func Array(vs []Value) Value   { return Value{Kind: KindArray, arrV: vs} }
func Object(m map[string]Value) Value {
	return Value{Kind: KindObject, objV: m}
}

func (v Value) AsBool() (bool, bool)          { return v.boolV, v.Kind == KindBool }
func (v Value) AsNumber() (float64, bool)     { return v.numV, v.Kind == KindNumber }
func (v Value) AsString() (string, bool)      { return v.strV, v.Kind == KindString }
func (v Value) AsBytes() ([]byte, bool)       { return v.bytesV, v.Kind == KindBytes }
func (v Value) AsArray() ([]Value, bool)      { return v.arrV, v.Kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.objV, v.Kind == KindObject }

// Get looks up a key when the Value is an object; ok is false otherwise or
// when the key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	val, ok := v.objV[key]
	return val, ok
}

// Merge returns a new object Value with other's keys overlaid on v's keys
// (used by pipeline composition: next = {...prev, ...result}). Both sides
// must be objects; if either is not, the other is returned unchanged.
func Merge(base, overlay Value) Value {
	if base.Kind != KindObject {
		return overlay
	}
	if overlay.Kind != KindObject {
		return base
	}
	merged := make(map[string]Value, len(base.objV)+len(overlay.objV))
	for k, v := range base.objV {
		merged[k] = v
	}
	for k, v := range overlay.objV {
		merged[k] = v
	}
	return Object(merged)
}

// FromJSON decodes arbitrary JSON bytes into a Value tree. Binary payloads
// never arrive this way; use Bytes directly for those.
func FromJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("valuetype: decode json: %w", err)
	}
	return fromAny(raw), nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = fromAny(e)
		}
		return Array(vs)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = fromAny(e)
		}
		return Object(m)
	default:
		return Null()
	}
}

// ToJSON encodes a Value tree back to JSON. KindBytes is base64-encoded by
// the standard json package since it renders as a []byte field.
func (v Value) ToJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

func (v Value) toAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolV
	case KindNumber:
		return v.numV
	case KindString:
		return v.strV
	case KindBytes:
		return v.bytesV
	case KindArray:
		out := make([]any, len(v.arrV))
		for i, e := range v.arrV {
			out[i] = e.toAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.objV))
		for k, e := range v.objV {
			out[k] = e.toAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON satisfies json.Marshaler so Value embeds cleanly into Message
// params/result fields.
func (v Value) MarshalJSON() ([]byte, error) { return v.ToJSON() }

// UnmarshalJSON satisfies json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	val, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// ToMap returns the object form as a plain map[string]any, suitable as
// input to mapstructure.Decode for invokers that declare a typed Go
// parameter struct.
func (v Value) ToMap() (map[string]any, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	out, _ := v.toAny().(map[string]any)
	return out, true
}

// Decode populates target, a pointer to a typed Go struct, from v's object
// fields. Invokers that would rather declare a parameter struct than walk
// Value.Get calls use this instead of hand-rolled field-by-field decoding.
func (v Value) Decode(target any) error {
	m, ok := v.ToMap()
	if !ok {
		return fmt.Errorf("valuetype: Decode requires an object value, got %s", v.Kind)
	}
	return mapstructure.Decode(m, target)
}
