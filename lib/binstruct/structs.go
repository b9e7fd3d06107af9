// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

package binstruct

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

type structField struct {
	idx int
	off int
	siz int
}

type structHandler struct {
	Size   int
	fields []structField
}

var (
	handlerMu    sync.Mutex
	handlerCache = make(map[reflect.Type]structHandler)
)

func getStructHandler(typ reflect.Type) structHandler {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	if h, ok := handlerCache[typ]; ok {
		return h
	}
	h, err := genStructHandler(typ)
	if err != nil {
		panic(&InvalidTypeError{Type: typ, Err: err})
	}
	handlerCache[typ] = h
	return h
}

var endType = reflect.TypeOf(End{})

func genStructHandler(typ reflect.Type) (structHandler, error) {
	var ret structHandler
	var curOffset int
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, err := parseFieldTag(field.Tag.Get("bin"))
		if err != nil {
			return ret, fmt.Errorf("field %q: %w", field.Name, err)
		}
		if tag.skip {
			continue
		}
		if tag.off != curOffset {
			return ret, fmt.Errorf("field %q: tag says off=%#x but layout puts it at off=%#x",
				field.Name, tag.off, curOffset)
		}
		if field.Type == endType {
			ret.Size = curOffset
			return ret, nil
		}
		elemSize, err := staticSize(field.Type)
		if err != nil {
			return ret, fmt.Errorf("field %q: %w", field.Name, err)
		}
		if tag.siz != elemSize {
			return ret, fmt.Errorf("field %q: tag says siz=%#x but type takes %#x bytes",
				field.Name, tag.siz, elemSize)
		}
		ret.fields = append(ret.fields, structField{idx: i, off: tag.off, siz: tag.siz})
		curOffset += tag.siz
	}
	return ret, errors.New("missing binstruct.End terminator field")
}

type fieldTag struct {
	skip bool
	off  int
	siz  int
}

func parseFieldTag(str string) (fieldTag, error) {
	var ret fieldTag
	if str == "-" {
		ret.skip = true
		return ret, nil
	}
	ret.siz = -1
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return ret, fmt.Errorf("invalid tag part %q", part)
		}
		num, err := strconv.ParseInt(val, 16, 0)
		if err != nil {
			return ret, fmt.Errorf("invalid tag part %q: %w", part, err)
		}
		switch key {
		case "off":
			ret.off = int(num)
		case "siz":
			ret.siz = int(num)
		default:
			return ret, fmt.Errorf("unknown tag key %q", key)
		}
	}
	return ret, nil
}
