// Package gguf reads GGUF headers and metadata without touching tensor data.
// The runner uses it to validate a model file before handing the path to the
// inference backend and to surface architecture details in diagnostics.
package gguf

import (
	"fmt"
	"os"
)

const magicGGUF = "GGUF"

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

// Info holds the parsed header and metadata table of a GGUF file. Tensor
// descriptors and payloads are not read; the backend owns those.
type Info struct {
	Path        string
	Version     uint32
	TensorCount uint64
	KV          map[string]Value
}

// Inspect opens path, validates the GGUF magic and parses the metadata
// key/value table. It reads only the file prefix.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := newReader(f, st.Size())

	magic, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != magicGGUF {
		return nil, fmt.Errorf("not a GGUF file (magic %q)", string(magic))
	}

	version, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	kvCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read kv count: %w", err)
	}

	kv := make(map[string]Value, kvCount)
	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vtypeU32, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		vtype := ValueType(vtypeU32)
		val, err := readValue(r, vtype)
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: vtype, Value: val}
	}

	return &Info{
		Path:        path,
		Version:     version,
		TensorCount: tensorCount,
		KV:          kv,
	}, nil
}

// Arch returns the general.architecture metadata value, if present.
func (i *Info) Arch() string {
	s, _ := GetString(i.KV, "general.architecture")
	return s
}

// ContextLength returns the model's declared context length, or 0.
func (i *Info) ContextLength() int {
	arch := i.Arch()
	if arch == "" {
		return 0
	}
	v, ok := GetUint64(i.KV, arch+".context_length")
	if !ok {
		return 0
	}
	return int(v)
}

func readValue(r *reader, vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		return r.readI8()
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		return r.readI16()
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		return r.readI32()
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		return r.readI64()
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		if err != nil {
			return false, err
		}
		return v != 0, nil
	case TypeString:
		return r.readString()
	case TypeArray:
		elemTypeU32, err := r.readU32()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(elemTypeU32)
		count, err := r.readU64()
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, count)
		for range count {
			v, err := readValue(r, elemType)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vtype))
	}
}
