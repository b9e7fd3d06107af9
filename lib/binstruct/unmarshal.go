// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package binstruct

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Unmarshal decodes the little-endian encoding in dat into the value
// pointed at by dstPtr, returning how many bytes were consumed.
func Unmarshal(dat []byte, dstPtr any) (int, error) {
	_dstPtr := reflect.ValueOf(dstPtr)
	if _dstPtr.Kind() != reflect.Ptr {
		return 0, &UnmarshalError{
			Type: _dstPtr.Type(),
			Err:  fmt.Errorf("not a pointer"),
		}
	}
	return unmarshal(dat, _dstPtr.Elem())
}

func unmarshal(dat []byte, dst reflect.Value) (int, error) {
	if unmarshaler, ok := dst.Addr().Interface().(Unmarshaler); ok {
		return unmarshaler.UnmarshalBinary(dat)
	}
	typ := dst.Type()
	size, err := staticSize(typ)
	if err != nil {
		return 0, err
	}
	if len(dat) < size {
		return 0, &UnmarshalError{
			Type: typ,
			Err:  fmt.Errorf("need %v bytes but only have %v", size, len(dat)),
		}
	}
	switch typ.Kind() {
	case reflect.Uint8:
		dst.SetUint(uint64(dat[0]))
	case reflect.Int8:
		dst.SetInt(int64(int8(dat[0])))
	case reflect.Uint16:
		dst.SetUint(uint64(binary.LittleEndian.Uint16(dat)))
	case reflect.Int16:
		dst.SetInt(int64(int16(binary.LittleEndian.Uint16(dat))))
	case reflect.Uint32:
		dst.SetUint(uint64(binary.LittleEndian.Uint32(dat)))
	case reflect.Int32:
		dst.SetInt(int64(int32(binary.LittleEndian.Uint32(dat))))
	case reflect.Uint64:
		dst.SetUint(binary.LittleEndian.Uint64(dat))
	case reflect.Int64:
		dst.SetInt(int64(binary.LittleEndian.Uint64(dat)))
	case reflect.Array:
		pos := 0
		for i := 0; i < dst.Len(); i++ {
			n, err := unmarshal(dat[pos:], dst.Index(i))
			if err != nil {
				return pos, err
			}
			pos += n
		}
	case reflect.Struct:
		handler := getStructHandler(typ)
		for _, field := range handler.fields {
			if _, err := unmarshal(dat[field.off:field.off+field.siz], dst.Field(field.idx)); err != nil {
				return field.off, fmt.Errorf("field %v: %w", typ.Field(field.idx).Name, err)
			}
		}
	default:
		return 0, &UnmarshalError{
			Type: typ,
			Err:  fmt.Errorf("does not implement binstruct.Unmarshaler and kind=%v is not a supported kind", typ.Kind()),
		}
	}
	return size, nil
}
