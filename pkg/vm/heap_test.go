package vm

import (
	"sync"
	"testing"
)

func TestHeapCommit(t *testing.T) {
	h := NewHeap()
	h.Append([]Instruction{{Op: OpNop}, {Op: OpNop}})

	var gotStart int
	r := h.Commit(func(start int) []Instruction {
		gotStart = start
		return []Instruction{{Op: OpJump, A: int32(start)}}
	})

	if gotStart != 2 {
		t.Errorf("Commit start = %d, want 2", gotStart)
	}
	if r != (Range{Start: 2, End: 3}) {
		t.Errorf("Commit range = %s, want [2, 3)", r)
	}
	if instr, ok := h.At(2); !ok || instr.A != 2 {
		t.Errorf("At(2) = %v, %v; want JUMP 2", instr, ok)
	}
}

func TestHeapSliceIsACopy(t *testing.T) {
	h := NewHeap()
	r := h.Append([]Instruction{{Op: OpDup}})
	s := h.Slice(r)
	s[0].Op = OpPop
	if instr, _ := h.At(0); instr.Op != OpDup {
		t.Errorf("modifying a slice changed the heap")
	}
}

func TestHeapBounds(t *testing.T) {
	h := NewHeap()
	h.Append([]Instruction{{Op: OpDup}})

	if _, ok := h.At(-1); ok {
		t.Error("At(-1) should fail")
	}
	if _, ok := h.At(1); ok {
		t.Error("At(1) should fail")
	}
	if s := h.Slice(Range{Start: 0, End: 2}); s != nil {
		t.Errorf("Slice past the end = %v, want nil", s)
	}
	if _, ok := h.ConstantAt(0); ok {
		t.Error("ConstantAt(0) on an empty pool should fail")
	}
}

func TestHeapConstants(t *testing.T) {
	h := NewHeap()
	a := h.Constant("div")
	b := h.Constant("div")
	if a == b {
		t.Errorf("constants are not deduplicated, got the same index %d twice", a)
	}
	if v, ok := h.ConstantAt(b); !ok || v != "div" {
		t.Errorf("ConstantAt(%d) = %v, %v", b, v, ok)
	}
}

func TestHeapConcurrentCommit(t *testing.T) {
	h := NewHeap()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Commit(func(start int) []Instruction {
				return []Instruction{{Op: OpJump, A: int32(start)}, {Op: OpNop}}
			})
		}()
	}
	wg.Wait()

	if h.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", h.Len())
	}
	for addr := 0; addr < h.Len(); addr += 2 {
		instr, _ := h.At(addr)
		if instr.Op != OpJump || int(instr.A) != addr {
			t.Errorf("At(%d) = %v, want a self jump", addr, instr)
		}
	}
}
