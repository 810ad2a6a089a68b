// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "time"

// Sample is one accepted position with its arrival time
type Sample struct {
	Position int64
	Time     time.Time
}

// history is a fixed-capacity ring of samples that drops the oldest entry
// when full. Not safe for concurrent use; the owning link's lock guards it.
type history struct {
	items    []Sample
	capacity int
	head     int // next write position
	size     int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1
	}
	return &history{
		items:    make([]Sample, capacity),
		capacity: capacity,
	}
}

func (h *history) append(s Sample) {
	h.items[h.head] = s
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// snapshot copies samples oldest first
func (h *history) snapshot() []Sample {
	out := make([]Sample, h.size)
	start := (h.head - h.size + h.capacity) % h.capacity
	for i := 0; i < h.size; i++ {
		out[i] = h.items[(start+i)%h.capacity]
	}
	return out
}

func (h *history) len() int {
	return h.size
}

func (h *history) reset() {
	h.head = 0
	h.size = 0
}
