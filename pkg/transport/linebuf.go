// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "bytes"

// maxLineLength bounds a line that never sees its terminator
const maxLineLength = 4096

// lineBuffer accumulates received bytes and splits them into lines
type lineBuffer struct {
	pending []byte
}

// append adds received bytes. A runaway line with no terminator is dropped
// once it exceeds maxLineLength.
func (b *lineBuffer) append(p []byte) {
	b.pending = append(b.pending, p...)
	if len(b.pending) > maxLineLength && bytes.IndexByte(b.pending, '\n') < 0 {
		b.pending = b.pending[:0]
	}
}

// next pops one complete line, stripping "\n" and a trailing "\r"
func (b *lineBuffer) next() (string, bool) {
	i := bytes.IndexByte(b.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := b.pending[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	s := string(line)

	n := copy(b.pending, b.pending[i+1:])
	b.pending = b.pending[:n]
	return s, true
}

func (b *lineBuffer) len() int {
	return len(b.pending)
}

func (b *lineBuffer) reset() {
	b.pending = b.pending[:0]
}
