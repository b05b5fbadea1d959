package vm

import (
	"fmt"
	"sync"
)

// Range is a half-open interval [Start, End) of heap addresses.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d, %d)", r.Start, r.End) }

// Heap is the program memory shared by every compiled program of an
// environment: an append-only instruction store plus a constant pool.
// Finalized programs are never modified.
type Heap struct {
	mu     sync.RWMutex
	code   []Instruction
	consts []any
}

func NewHeap() *Heap {
	return &Heap{}
}

// Append stores code at the end of the heap and returns its address range.
// Code that refers to its own addresses must go through Commit instead.
func (h *Heap) Append(code []Instruction) Range {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := len(h.code)
	h.code = append(h.code, code...)
	return Range{Start: start, End: len(h.code)}
}

// Commit appends code produced by fix, which receives the start address the
// code will occupy. It is the atomic form of Len followed by Append.
func (h *Heap) Commit(fix func(start int) []Instruction) Range {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := len(h.code)
	h.code = append(h.code, fix(start)...)
	return Range{Start: start, End: len(h.code)}
}

func (h *Heap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.code)
}

// At returns the instruction at addr.
func (h *Heap) At(addr int) (Instruction, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if addr < 0 || addr >= len(h.code) {
		return Instruction{}, false
	}
	return h.code[addr], true
}

// Slice returns a copy of the instructions in r.
func (h *Heap) Slice(r Range) []Instruction {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r.Start < 0 || r.End > len(h.code) || r.Start > r.End {
		return nil
	}
	out := make([]Instruction, r.Len())
	copy(out, h.code[r.Start:r.End])
	return out
}

// Constant interns v in the constant pool and returns its index.
// Values are not deduplicated: functions and definitions are not comparable.
func (h *Heap) Constant(v any) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consts = append(h.consts, v)
	return int32(len(h.consts) - 1)
}

func (h *Heap) ConstantAt(i int32) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || int(i) >= len(h.consts) {
		return nil, false
	}
	return h.consts[i], true
}
