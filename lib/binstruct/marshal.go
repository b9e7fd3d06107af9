// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package binstruct

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Marshal returns the little-endian encoding of obj.
func Marshal(obj any) ([]byte, error) {
	return marshal(reflect.ValueOf(obj))
}

func marshal(val reflect.Value) ([]byte, error) {
	if marshaler, ok := val.Interface().(Marshaler); ok {
		return marshaler.MarshalBinary()
	}
	typ := val.Type()
	switch typ.Kind() {
	case reflect.Uint8:
		return []byte{byte(val.Uint())}, nil
	case reflect.Int8:
		return []byte{byte(val.Int())}, nil
	case reflect.Uint16:
		return binary.LittleEndian.AppendUint16(nil, uint16(val.Uint())), nil
	case reflect.Int16:
		return binary.LittleEndian.AppendUint16(nil, uint16(val.Int())), nil
	case reflect.Uint32:
		return binary.LittleEndian.AppendUint32(nil, uint32(val.Uint())), nil
	case reflect.Int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(val.Int())), nil
	case reflect.Uint64:
		return binary.LittleEndian.AppendUint64(nil, val.Uint()), nil
	case reflect.Int64:
		return binary.LittleEndian.AppendUint64(nil, uint64(val.Int())), nil
	case reflect.Array:
		var ret []byte
		for i := 0; i < val.Len(); i++ {
			part, err := marshal(val.Index(i))
			if err != nil {
				return ret, err
			}
			ret = append(ret, part...)
		}
		return ret, nil
	case reflect.Struct:
		handler := getStructHandler(typ)
		ret := make([]byte, 0, handler.Size)
		for _, field := range handler.fields {
			part, err := marshal(val.Field(field.idx))
			if err != nil {
				return ret, fmt.Errorf("field %v: %w", typ.Field(field.idx).Name, err)
			}
			ret = append(ret, part...)
		}
		return ret, nil
	default:
		return nil, &InvalidTypeError{
			Type: typ,
			Err:  fmt.Errorf("does not implement binstruct.Marshaler and kind=%v is not a supported kind", typ.Kind()),
		}
	}
}
