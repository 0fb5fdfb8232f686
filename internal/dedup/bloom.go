package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// BloomFilter is a probabilistic pre-filter placed in front of ledger
// lookups during discovery. Contains may return false positives, never
// false negatives, so a positive answer is always verified against the
// ledger. Constructed once per run; there is no shared global instance.
type BloomFilter struct {
	bits      []uint64
	size      uint64
	hashCount int
	items     int
}

// NewBloomFilter sizes the bit array; hashCount hash functions are
// derived from a single SHA-256 per item.
func NewBloomFilter(size int, hashCount int) *BloomFilter {
	if size < 64 {
		size = 64
	}
	if hashCount < 1 {
		hashCount = 3
	}
	return &BloomFilter{
		bits:      make([]uint64, (size+63)/64),
		size:      uint64(size),
		hashCount: hashCount,
	}
}

// Add marks an item as seen.
func (b *BloomFilter) Add(item string) {
	for _, idx := range b.indexes(item) {
		b.bits[idx/64] |= 1 << (idx % 64)
	}
	b.items++
}

// Contains reports whether the item might have been added.
func (b *BloomFilter) Contains(item string) bool {
	for _, idx := range b.indexes(item) {
		if b.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Len returns the number of items added.
func (b *BloomFilter) Len() int {
	return b.items
}

// FalsePositiveRate estimates the current false positive probability
// from the standard (1 - e^(-kn/m))^k approximation.
func (b *BloomFilter) FalsePositiveRate() float64 {
	if b.items == 0 {
		return 0
	}
	exponent := -float64(b.hashCount*b.items) / float64(b.size)
	return math.Pow(1-math.Exp(exponent), float64(b.hashCount))
}

func (b *BloomFilter) indexes(item string) []uint64 {
	sum := sha256.Sum256([]byte(item))
	indexes := make([]uint64, b.hashCount)
	for i := 0; i < b.hashCount; i++ {
		// Each hash function reads a different 8-byte window of the digest.
		offset := (i * 8) % (len(sum) - 8)
		v := binary.BigEndian.Uint64(sum[offset:]) + uint64(i)*0x9e3779b97f4a7c15
		indexes[i] = v % b.size
	}
	return indexes
}
