// Copyright (C) 2020-2023  Google LLC
//
// SPDX-License-Identifier: Apache-2.0

// Package textui is the terminal-facing side of the tools: a dlog
// backend with compact human-oriented formatting, and locale-aware
// printing.
package textui

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Fprintf is like fmt.Fprintf, but with locale-aware number
// formatting.
func Fprintf(w io.Writer, key string, a ...any) (int, error) {
	return printer.Fprintf(w, key, a...)
}

// Sprintf is like fmt.Sprintf, but with locale-aware number
// formatting.
func Sprintf(key string, a ...any) string {
	return printer.Sprintf(key, a...)
}
