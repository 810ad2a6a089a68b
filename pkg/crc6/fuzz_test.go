// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crc6

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestFuzzVerify_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		position := rng.Uint32()
		width := MinWidth + rng.Intn(MaxWidth)
		errBit, warnBit := rng.Intn(2) == 1, rng.Intn(2) == 1

		r := Encode(position, width, errBit, warnBit)
		if r > 0x3F {
			t.Fatalf("Round %d: remainder out of range: 0x%02X", i, r)
		}
		if !Verify(position, width, errBit, warnBit, Transmitted(r)) {
			t.Errorf("Round %d: round trip failed for 0x%08X/%d", i, position, width)
		}
	}
}

func TestFuzzEncode_SingleBitErrors(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		width := MinWidth + rng.Intn(MaxWidth)
		position := rng.Uint32() & uint32((uint64(1)<<width)-1)
		errBit, warnBit := rng.Intn(2) == 1, rng.Intn(2) == 1
		want := Encode(position, width, errBit, warnBit)

		// every single-bit error in the position field must be detected
		flipped := position ^ (1 << rng.Intn(width))
		if Encode(flipped, width, errBit, warnBit) == want {
			t.Errorf("Round %d: bit flip 0x%08X -> 0x%08X undetected at width %d", i, position, flipped, width)
		}

		// and so must a corrupted CRC
		received := Transmitted(want) ^ (1 << rng.Intn(6))
		if Verify(position, width, errBit, warnBit, received) {
			t.Errorf("Round %d: corrupted CRC 0x%02X accepted", i, received)
		}
	}
}
