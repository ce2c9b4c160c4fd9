package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current program image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic identifies a program image: "PKBC" (Pumpkin ByteCode).
const ImageMagic = "PKBC"

// maxImageDepth bounds nesting of functions and aggregates in an image.
const maxImageDepth = 128

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	// Each level of value nesting costs at most two CBOR levels (the value
	// map and its item array), so anything the encoder accepts fits.
	dm, err := cbor.DecOptions{MaxNestedLevels: 2*maxImageDepth + 16}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type wireImage struct {
	Magic   string        `cbor:"1,keyasint"`
	Version uint16        `cbor:"2,keyasint"`
	Script  *wireFunction `cbor:"3,keyasint"`
}

type wireFunction struct {
	Name      string      `cbor:"1,keyasint"`
	Arity     int         `cbor:"2,keyasint"`
	Code      []byte      `cbor:"3,keyasint"`
	Lines     []int       `cbor:"4,keyasint"`
	Constants []wireValue `cbor:"5,keyasint,omitempty"`
}

type wireValue struct {
	Kind  ValueKind     `cbor:"1,keyasint"`
	Num   float64       `cbor:"2,keyasint,omitempty"`
	Str   string        `cbor:"3,keyasint,omitempty"`
	Bool  bool          `cbor:"4,keyasint,omitempty"`
	Fn    *wireFunction `cbor:"5,keyasint,omitempty"`
	Items []wireValue   `cbor:"6,keyasint,omitempty"`
	Keys  []string      `cbor:"7,keyasint,omitempty"`
}

// MarshalImage serializes a compiled script function to CBOR bytes.
func MarshalImage(fn *Function) ([]byte, error) {
	if fn == nil || fn.Chunk == nil {
		return nil, fmt.Errorf("bytecode: cannot write image of empty function")
	}
	if err := fn.Chunk.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: invalid chunk: %w", err)
	}
	wf, err := encodeFunction(fn, 0)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wireImage{Magic: ImageMagic, Version: ImageVersion, Script: wf})
}

// UnmarshalImage deserializes and validates a program image.
func UnmarshalImage(data []byte) (*Function, error) {
	var img wireImage
	if err := cborDecMode.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("bytecode: not a program image (magic %q)", img.Magic)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("bytecode: unsupported image version %d (want %d)", img.Version, ImageVersion)
	}
	if img.Script == nil {
		return nil, fmt.Errorf("bytecode: image has no script")
	}
	fn, err := decodeFunction(img.Script, 0)
	if err != nil {
		return nil, err
	}
	if err := fn.Chunk.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: invalid image: %w", err)
	}
	return fn, nil
}

// MarshalValue serializes any non-cyclic value, including lists, objects and
// functions with their code.
func MarshalValue(v Value) ([]byte, error) {
	wv, err := encodeValue(v, 0)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(wv)
}

// UnmarshalValue deserializes a value written by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var wv wireValue
	if err := cborDecMode.Unmarshal(data, &wv); err != nil {
		return Null, fmt.Errorf("bytecode: unmarshal value: %w", err)
	}
	return decodeValue(&wv, 0)
}

func encodeFunction(fn *Function, depth int) (*wireFunction, error) {
	if depth > maxImageDepth {
		return nil, fmt.Errorf("bytecode: functions nested too deeply")
	}
	if fn.Chunk == nil {
		return nil, fmt.Errorf("bytecode: function %s has no code", fn.Name)
	}
	wf := &wireFunction{
		Name:  fn.Name,
		Arity: fn.Arity,
		Code:  fn.Chunk.Code,
		Lines: fn.Chunk.Lines,
	}
	for _, k := range fn.Chunk.Constants {
		wk, err := encodeValue(k, depth+1)
		if err != nil {
			return nil, err
		}
		wf.Constants = append(wf.Constants, *wk)
	}
	return wf, nil
}

func decodeFunction(wf *wireFunction, depth int) (*Function, error) {
	if depth > maxImageDepth {
		return nil, fmt.Errorf("bytecode: functions nested too deeply")
	}
	chunk := &Chunk{
		Code:      wf.Code,
		Lines:     wf.Lines,
		Constants: make([]Value, 0, len(wf.Constants)),
	}
	for i := range wf.Constants {
		k, err := decodeValue(&wf.Constants[i], depth+1)
		if err != nil {
			return nil, err
		}
		chunk.Constants = append(chunk.Constants, k)
	}
	if len(chunk.Lines) != len(chunk.Code) {
		return nil, fmt.Errorf("bytecode: function %s: line table has %d entries for %d code bytes",
			wf.Name, len(chunk.Lines), len(chunk.Code))
	}
	return &Function{Name: wf.Name, Arity: wf.Arity, Chunk: chunk}, nil
}

func encodeValue(v Value, depth int) (*wireValue, error) {
	if depth > maxImageDepth {
		return nil, fmt.Errorf("bytecode: value nested too deeply (cyclic?)")
	}
	wv := &wireValue{Kind: v.Kind()}
	switch v.Kind() {
	case KindNull:
	case KindNumber:
		wv.Num = v.Number()
	case KindString:
		wv.Str = v.Str()
	case KindBoolean:
		wv.Bool = v.Bool()
	case KindFunction:
		wf, err := encodeFunction(v.Function(), depth+1)
		if err != nil {
			return nil, err
		}
		wv.Fn = wf
	case KindList:
		for _, item := range v.List().Items {
			wi, err := encodeValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			wv.Items = append(wv.Items, *wi)
		}
	case KindObject:
		obj := v.Object()
		for _, key := range obj.Keys() {
			field, _ := obj.Get(key)
			wi, err := encodeValue(field, depth+1)
			if err != nil {
				return nil, err
			}
			wv.Keys = append(wv.Keys, key)
			wv.Items = append(wv.Items, *wi)
		}
	default:
		return nil, fmt.Errorf("bytecode: cannot encode %s value", v.Kind())
	}
	return wv, nil
}

func decodeValue(wv *wireValue, depth int) (Value, error) {
	if depth > maxImageDepth {
		return Null, fmt.Errorf("bytecode: value nested too deeply")
	}
	switch wv.Kind {
	case KindNull:
		return Null, nil
	case KindNumber:
		return NumberValue(wv.Num), nil
	case KindString:
		return StringValue(wv.Str), nil
	case KindBoolean:
		return BoolValue(wv.Bool), nil
	case KindFunction:
		if wv.Fn == nil {
			return Null, fmt.Errorf("bytecode: function value without body")
		}
		fn, err := decodeFunction(wv.Fn, depth+1)
		if err != nil {
			return Null, err
		}
		return FunctionValue(fn), nil
	case KindList:
		items := make([]Value, 0, len(wv.Items))
		for i := range wv.Items {
			item, err := decodeValue(&wv.Items[i], depth+1)
			if err != nil {
				return Null, err
			}
			items = append(items, item)
		}
		return NewListValue(items...), nil
	case KindObject:
		if len(wv.Keys) != len(wv.Items) {
			return Null, fmt.Errorf("bytecode: object has %d keys for %d values", len(wv.Keys), len(wv.Items))
		}
		obj := NewObject()
		for i, key := range wv.Keys {
			field, err := decodeValue(&wv.Items[i], depth+1)
			if err != nil {
				return Null, err
			}
			obj.Set(key, field)
		}
		return ObjectValue(obj), nil
	default:
		return Null, fmt.Errorf("bytecode: unknown value kind %d", wv.Kind)
	}
}
