package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs
const (
	TypeNoData   uint8 = 0x00
	TypeBool     uint8 = 0x10
	TypeBitmap8  uint8 = 0x18
	TypeBitmap16 uint8 = 0x19
	TypeBitmap32 uint8 = 0x1B
	TypeUint8    uint8 = 0x20
	TypeUint16   uint8 = 0x21
	TypeUint32   uint8 = 0x23
	TypeInt8     uint8 = 0x28
	TypeInt16    uint8 = 0x29
	TypeInt32    uint8 = 0x2B
	TypeEnum8    uint8 = 0x30
	TypeEnum16   uint8 = 0x31
	TypeFloat32  uint8 = 0x39
	TypeCharStr  uint8 = 0x42
	TypeEUI64    uint8 = 0xF0
)

type scalar struct {
	name   string
	size   int
	signed bool
}

var scalars = map[uint8]scalar{
	TypeNoData:   {"nodata", 0, false},
	TypeBool:     {"bool", 1, false},
	TypeBitmap8:  {"map8", 1, false},
	TypeBitmap16: {"map16", 2, false},
	TypeBitmap32: {"map32", 4, false},
	TypeUint8:    {"uint8", 1, false},
	TypeUint16:   {"uint16", 2, false},
	TypeUint32:   {"uint32", 4, false},
	TypeInt8:     {"int8", 1, true},
	TypeInt16:    {"int16", 2, true},
	TypeInt32:    {"int32", 4, true},
	TypeEnum8:    {"enum8", 1, false},
	TypeEnum16:   {"enum16", 2, false},
	TypeFloat32:  {"float32", 4, false},
	TypeEUI64:    {"EUI64", 8, false},
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for
// variable-length and unknown types.
func TypeSize(typeID uint8) int {
	if s, ok := scalars[typeID]; ok {
		return s.size
	}
	return -1
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if s, ok := scalars[typeID]; ok {
		return s.name
	}
	if typeID == TypeCharStr {
		return "string"
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// DecodeValue decodes a little-endian ZCL value, returning the Go value and
// the number of bytes consumed. Integers decode to uint64 or int64, bitmaps
// and enums to uint64, EUI64 to its "0x%016x" string form.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	if typeID == TypeCharStr {
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("zcl: no length byte for string type")
		}
		n := int(data[0])
		if n == 0xFF {
			return "", 1, nil
		}
		if len(data) < 1+n {
			return nil, 0, fmt.Errorf("zcl: string truncated: need %d, have %d", n, len(data)-1)
		}
		return string(data[1 : 1+n]), 1 + n, nil
	}

	s, ok := scalars[typeID]
	if !ok {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if len(data) < s.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, s.size, len(data))
	}

	switch typeID {
	case TypeNoData:
		return nil, 0, nil
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil
	case TypeEUI64:
		return fmt.Sprintf("0x%016x", binary.LittleEndian.Uint64(data)), 8, nil
	}

	var u uint64
	for i := s.size - 1; i >= 0; i-- {
		u = u<<8 | uint64(data[i])
	}
	if s.signed {
		shift := uint(64 - 8*s.size)
		return int64(u<<shift) >> shift, s.size, nil
	}
	return u, s.size, nil
}

// EncodeValue encodes a Go value into ZCL wire format.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	switch typeID {
	case TypeBool:
		b, ok := val.(bool)
		if !ok {
			f, isNum := toFloat64(val)
			if !isNum {
				return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
			}
			b = f != 0
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeCharStr:
		str, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to string", val)
		}
		if len(str) > 254 {
			return nil, fmt.Errorf("zcl: string too long for CharStr: %d (max 254)", len(str))
		}
		return append([]byte{byte(len(str))}, str...), nil

	case TypeFloat32:
		f, ok := toFloat64(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to float32", val)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	}

	s, ok := scalars[typeID]
	if !ok || s.size == 0 || typeID == TypeEUI64 {
		return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
	}
	f, ok := toFloat64(val)
	if !ok || f != math.Trunc(f) {
		return nil, fmt.Errorf("zcl: cannot convert %v (%T) to %s", val, val, s.name)
	}

	bits := uint(8 * s.size)
	if s.signed {
		lo, hi := -math.Ldexp(1, int(bits-1)), math.Ldexp(1, int(bits-1))-1
		if f < lo || f > hi {
			return nil, fmt.Errorf("zcl: value %v overflows %s", val, s.name)
		}
	} else if f < 0 || f > math.Ldexp(1, int(bits))-1 {
		return nil, fmt.Errorf("zcl: value %v overflows %s", val, s.name)
	}

	u := uint64(int64(f))
	buf := make([]byte, s.size)
	for i := range buf {
		buf[i] = byte(u >> (8 * uint(i)))
	}
	return buf, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
