package classfile

import "math/bits"

// bitSet is a compact set of non-negative ints, used for bytecode offsets
// and block indices.
type bitSet struct {
	words []uint64
}

func newBitSet(maxVal int) *bitSet {
	return &bitSet{words: make([]uint64, (maxVal+64)/64)}
}

func (b *bitSet) set(v int) {
	w := v / 64
	if w >= len(b.words) {
		b.grow(w + 1)
	}
	b.words[w] |= 1 << (uint(v) % 64)
}

func (b *bitSet) clear(v int) {
	w := v / 64
	if w < len(b.words) {
		b.words[w] &^= 1 << (uint(v) % 64)
	}
}

func (b *bitSet) has(v int) bool {
	w := v / 64
	if v < 0 || w >= len(b.words) {
		return false
	}
	return b.words[w]&(1<<(uint(v)%64)) != 0
}

// next returns the smallest member >= v, or -1.
func (b *bitSet) next(v int) int {
	if v < 0 {
		v = 0
	}
	w := v / 64
	if w >= len(b.words) {
		return -1
	}
	word := b.words[w] >> (uint(v) % 64)
	if word != 0 {
		return v + bits.TrailingZeros64(word)
	}
	for w++; w < len(b.words); w++ {
		if b.words[w] != 0 {
			return w*64 + bits.TrailingZeros64(b.words[w])
		}
	}
	return -1
}

// toSlice returns the members in increasing order.
func (b *bitSet) toSlice() []int {
	out := make([]int, 0, b.count())
	for v := b.next(0); v >= 0; v = b.next(v + 1) {
		out = append(out, v)
	}
	return out
}

func (b *bitSet) count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b *bitSet) grow(n int) {
	words := make([]uint64, n)
	copy(words, b.words)
	b.words = words
}
