// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsMostRecent(t *testing.T) {
	h := newHistory(DefaultHistoryCapacity)
	base := time.Unix(0, 0)
	for i := 0; i < 150; i++ {
		h.append(Sample{Position: int64(i), Time: base.Add(time.Duration(i) * time.Millisecond)})
	}

	samples := h.snapshot()
	require.Len(t, samples, DefaultHistoryCapacity)
	for i, s := range samples {
		assert.Equal(t, int64(50+i), s.Position)
		assert.Equal(t, base.Add(time.Duration(50+i)*time.Millisecond), s.Time)
	}
}

func TestHistoryPartial(t *testing.T) {
	h := newHistory(4)
	h.append(Sample{Position: 1})
	h.append(Sample{Position: 2})

	samples := h.snapshot()
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1), samples[0].Position)
	assert.Equal(t, int64(2), samples[1].Position)
	assert.Equal(t, 2, h.len())
}

func TestHistoryReset(t *testing.T) {
	h := newHistory(3)
	for i := 0; i < 5; i++ {
		h.append(Sample{Position: int64(i)})
	}
	h.reset()
	assert.Empty(t, h.snapshot())

	h.append(Sample{Position: 9})
	assert.Equal(t, []Sample{{Position: 9}}, h.snapshot())
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := newHistory(2)
	h.append(Sample{Position: 1})
	samples := h.snapshot()
	samples[0].Position = 42
	assert.Equal(t, int64(1), h.snapshot()[0].Position)
}

func TestHistoryZeroCapacity(t *testing.T) {
	h := newHistory(0)
	h.append(Sample{Position: 1})
	h.append(Sample{Position: 2})
	assert.Equal(t, []Sample{{Position: 2}}, h.snapshot())
}
