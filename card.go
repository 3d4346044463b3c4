package main

import (
	"math/bits"
	"unicode/utf16"
)

// Card derivation must agree bit-for-bit with the browser client, which
// runs the same hash/PRNG/shuffle on its side to paint cards without a
// round trip. All arithmetic is 32-bit with two's-complement wraparound
// (Math.imul semantics) and the hash consumes UTF-16 code units, matching
// JS String.charCodeAt. Do not "fix" any of this.

const freeCell = "FREE"

// hashSeed is the xor/rotate string hash seeding the shuffle PRNG.
func hashSeed(s string) uint32 {
	units := utf16.Encode([]rune(s))
	h := uint32(1779033703) ^ uint32(len(units))
	for _, c := range units {
		h = (h ^ uint32(c)) * 3432918353
		h = bits.RotateLeft32(h, 13)
	}
	return h
}

// mulberry32 returns a draw function yielding floats in [0,1).
func mulberry32(seed uint32) func() float64 {
	s := seed
	return func() float64 {
		s += 0x6D2B79F5
		t := s
		t = (t ^ t>>15) * (t | 1)
		t ^= t + (t^t>>7)*(t|61)
		return float64(t^t>>14) / 4294967296
	}
}

// shuffleDeterministic returns a seeded Fisher-Yates permutation of items,
// leaving the input untouched.
func shuffleDeterministic(items []string, seed string) []string {
	rnd := mulberry32(hashSeed(seed))
	out := make([]string, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := int(rnd() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// makeCard derives the 25-cell card for a (name, round) pair from the
// current catalog. The center cell is always the free space. Catalogs
// with fewer than 25 phrases yield no card.
func makeCard(phrases []string, name string, roundKey string) []string {
	if len(phrases) < 25 {
		return nil
	}
	if name == "" {
		name = "guest"
	}
	card := shuffleDeterministic(phrases, name+"|"+roundKey)[:25]
	card[12] = freeCell
	return card
}
