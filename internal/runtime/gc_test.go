package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoots lets GC tests control exactly what's reachable without
// spinning up a compiler or VM.
type fakeRoots struct {
	objs []Obj
}

func (f *fakeRoots) MarkRoots(h *Heap) {
	for _, o := range f.objs {
		h.MarkObject(o)
	}
}

func TestCollectGarbageFreesUnreachableStrings(t *testing.T) {
	h := NewHeap()
	roots := &fakeRoots{}
	h.SetRoots(roots)

	kept := h.InternString("kept")
	roots.objs = []Obj{kept}

	_ = h.InternString("discarded")

	h.CollectGarbage()

	// The survivor is still reachable by interning the same content again:
	// FindString would return it if it were still linked.
	assert.Same(t, kept, h.strings.FindString("kept", fnv1a("kept")))
	assert.Nil(t, h.strings.FindString("discarded", fnv1a("discarded")))
}

func TestCollectGarbageKeepsClosureGraphAlive(t *testing.T) {
	h := NewHeap()
	roots := &fakeRoots{}
	h.SetRoots(roots)

	fn := h.NewFunction(h.InternString("f"))
	name := h.InternString("captured-string")
	fn.Chunk.AddConstant(FromObj(name))
	closure := h.NewClosure(fn)

	roots.objs = []Obj{closure}
	h.CollectGarbage()

	require.NotNil(t, closure.Function)
	assert.Same(t, fn, closure.Function)
	assert.Same(t, name, closure.Function.Chunk.Constants[0].AsObj())
}

func TestCollectGarbageKeepsNextGCAtOrAboveFloor(t *testing.T) {
	h := NewHeap()
	h.SetRoots(&fakeRoots{})
	before := h.nextGC
	h.InternString("x")
	h.CollectGarbage()
	assert.GreaterOrEqual(t, h.nextGC, int64(initialNextGC))
	_ = before
}

func TestCollectGarbageHonorsConfiguredGrowFactor(t *testing.T) {
	h := NewHeap()
	h.SetRoots(&fakeRoots{})
	h.HeapGrowFactor = 4.0
	h.bytesAllocated = initialNextGC * 2
	h.CollectGarbage()
	assert.Equal(t, int64(float64(h.bytesAllocated)*4.0), h.nextGC)
}

func TestStressGCCollectsOnEveryAllocation(t *testing.T) {
	h := NewHeap()
	h.StressGC = true
	roots := &fakeRoots{}
	h.SetRoots(roots)

	s := h.InternString("alive")
	roots.objs = []Obj{s}

	for i := 0; i < 50; i++ {
		h.InternString("throwaway")
	}

	assert.Same(t, s, h.strings.FindString("alive", fnv1a("alive")))
}
