package bytecode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindBoolean
	KindFunction
	KindList
	KindObject
)

// String returns the lowercase kind name used in type errors and JSON.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindFunction:
		return "function"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

func kindFromName(name string) (ValueKind, bool) {
	for k := KindNull; k <= KindObject; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Value is a Pumpkin runtime value. The zero Value is null.
//
// Lists, objects and functions are reference types: copying a Value copies
// the handle, so every holder observes mutations made through any other.
type Value struct {
	kind ValueKind
	num  float64
	str  string
	ref  interface{} // *Function, *List or *Object
}

// Function is a compiled function. Its Chunk is never modified after
// compilation finishes.
type Function struct {
	Name  string
	Arity int
	Chunk *Chunk
}

// List is a shared, mutable sequence.
type List struct {
	Items []Value
}

// Object is a shared, mutable string-keyed map that remembers insertion order.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Set stores v under key, appending key to the order if it is new.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, exists := o.fields[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Constructors

var (
	Null  = Value{kind: KindNull}
	True  = Value{kind: KindBoolean, num: 1}
	False = Value{kind: KindBoolean}
)

// NumberValue wraps a float64.
func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// StringValue wraps a string.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// BoolValue wraps a bool.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// FunctionValue wraps a compiled function.
func FunctionValue(fn *Function) Value {
	return Value{kind: KindFunction, ref: fn}
}

// ListValue wraps a list handle.
func ListValue(l *List) Value {
	return Value{kind: KindList, ref: l}
}

// NewListValue creates a list holding items.
func NewListValue(items ...Value) Value {
	return ListValue(&List{Items: items})
}

// ObjectValue wraps an object handle.
func ObjectValue(o *Object) Value {
	return Value{kind: KindObject, ref: o}
}

// Accessors

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) IsString() bool  { return v.kind == KindString }

// Number returns the numeric payload; zero for non-numbers.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}

// Str returns the string payload; empty for non-strings.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Bool returns the boolean payload; false for non-booleans.
func (v Value) Bool() bool {
	return v.kind == KindBoolean && v.num != 0
}

// Function returns the function handle, or nil.
func (v Value) Function() *Function {
	fn, _ := v.ref.(*Function)
	return fn
}

// List returns the list handle, or nil.
func (v Value) List() *List {
	l, _ := v.ref.(*List)
	return l
}

// Object returns the object handle, or nil.
func (v Value) Object() *Object {
	o, _ := v.ref.(*Object)
	return o
}

// Truthy reports whether v counts as true in a condition.
// Only false and null are falsey.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBoolean:
		return v.num != 0
	default:
		return true
	}
}

// Equal compares two values. Primitives compare by content, lists, objects
// and functions by handle identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindNumber, KindBoolean:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	default:
		return a.ref == b.ref
	}
}

// String returns the display form used by show. Strings print raw at the
// top level and quoted inside lists and objects.
func (v Value) String() string {
	if v.kind == KindString {
		return v.str
	}
	var sb strings.Builder
	writeDisplay(&sb, v, nil)
	return sb.String()
}

// Inspect is like String but quotes strings at every level.
func (v Value) Inspect() string {
	var sb strings.Builder
	writeDisplay(&sb, v, nil)
	return sb.String()
}

// FormatNumber renders n in shortest round-trip form without an exponent.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func writeDisplay(sb *strings.Builder, v Value, seen map[interface{}]bool) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindNumber:
		sb.WriteString(FormatNumber(v.num))
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindBoolean:
		sb.WriteString(strconv.FormatBool(v.num != 0))
	case KindFunction:
		sb.WriteString("<function ")
		if fn := v.Function(); fn != nil {
			sb.WriteString(fn.Name)
		}
		sb.WriteString(">")
	case KindList:
		l := v.List()
		if seen[l] {
			sb.WriteString("[...]")
			return
		}
		seen = markSeen(seen, l)
		sb.WriteString("[")
		for i, item := range l.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeDisplay(sb, item, seen)
		}
		sb.WriteString("]")
		delete(seen, l)
	case KindObject:
		o := v.Object()
		if seen[o] {
			sb.WriteString("{...}")
			return
		}
		seen = markSeen(seen, o)
		sb.WriteString("{")
		for i, k := range o.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			writeDisplay(sb, o.fields[k], seen)
		}
		sb.WriteString("}")
		delete(seen, o)
	}
}

func markSeen(seen map[interface{}]bool, handle interface{}) map[interface{}]bool {
	if seen == nil {
		seen = make(map[interface{}]bool)
	}
	seen[handle] = true
	return seen
}

// ---------------------------------------------------------------------------
// JSON
// ---------------------------------------------------------------------------

// Values serialize as {"type": "<kind>", "value": <payload>}; null omits the payload.

type valueJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type functionJSON struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.marshalJSON(nil)
}

func (v Value) marshalJSON(seen map[interface{}]bool) ([]byte, error) {
	var payload []byte
	var err error
	switch v.kind {
	case KindNull:
		return []byte(`{"type":"null"}`), nil
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			// JSON has no NaN or infinities; carry the display form instead.
			payload, err = json.Marshal(FormatNumber(v.num))
		} else {
			payload, err = json.Marshal(v.num)
		}
	case KindString:
		payload, err = json.Marshal(v.str)
	case KindBoolean:
		payload, err = json.Marshal(v.num != 0)
	case KindFunction:
		fn := v.Function()
		fj := functionJSON{}
		if fn != nil {
			fj.Name, fj.Arity = fn.Name, fn.Arity
		}
		payload, err = json.Marshal(fj)
	case KindList:
		l := v.List()
		if seen[l] {
			return nil, fmt.Errorf("cannot serialize cyclic list")
		}
		seen = markSeen(seen, l)
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range l.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.marshalJSON(seen)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		delete(seen, l)
		payload = buf.Bytes()
	case KindObject:
		o := v.Object()
		if seen[o] {
			return nil, fmt.Errorf("cannot serialize cyclic object")
		}
		seen = markSeen(seen, o)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range o.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			b, err := o.fields[k].marshalJSON(seen)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
		delete(seen, o)
		payload = buf.Bytes()
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.kind.String(), Value: payload})
}

// UnmarshalJSON implements json.Unmarshaler. Functions decode to a handle
// carrying only name and arity.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, ok := kindFromName(w.Type)
	if !ok {
		return fmt.Errorf("unknown value type %q", w.Type)
	}
	switch kind {
	case KindNull:
		*v = Null
	case KindNumber:
		var s string
		if err := json.Unmarshal(w.Value, &s); err == nil {
			switch s {
			case "NaN":
				*v = NumberValue(math.NaN())
			case "inf":
				*v = NumberValue(math.Inf(1))
			case "-inf":
				*v = NumberValue(math.Inf(-1))
			default:
				return fmt.Errorf("invalid number %q", s)
			}
			return nil
		}
		var n float64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	case KindString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case KindFunction:
		var fj functionJSON
		if err := json.Unmarshal(w.Value, &fj); err != nil {
			return err
		}
		*v = FunctionValue(&Function{Name: fj.Name, Arity: fj.Arity})
	case KindList:
		var items []Value
		if err := json.Unmarshal(w.Value, &items); err != nil {
			return err
		}
		*v = ListValue(&List{Items: items})
	case KindObject:
		obj, err := decodeOrderedObject(w.Value)
		if err != nil {
			return err
		}
		*v = ObjectValue(obj)
	}
	return nil
}

// decodeOrderedObject reads a JSON object keeping its key order.
func decodeOrderedObject(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("object value must be a JSON object")
	}
	obj := NewObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string")
		}
		var field Value
		if err := dec.Decode(&field); err != nil {
			return nil, err
		}
		obj.Set(key, field)
	}
	return obj, nil
}
