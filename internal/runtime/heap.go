package runtime

import (
	"fmt"
	"io"
)

const fnvOffsetBasis uint32 = 2166136261
const fnvPrime uint32 = 16777619

// fnv1a is the cached 32-bit FNV-1a hash used for strings.
func fnv1a(data string) uint32 {
	hash := fnvOffsetBasis
	for i := 0; i < len(data); i++ {
		hash ^= uint32(data[i])
		hash *= fnvPrime
	}
	return hash
}

// RootProvider supplies the GC roots; the Heap marks none of its own (the
// intern table is weak, and globals belong to the VM): the VM during
// execution, the Compiler while compiling. A single
// interface covers both the VM's live state and the compiler's in-flight
// function chain as roots; since compile and execute are sequential
// phases sharing one Heap, the active RootProvider is swapped between
// them rather than threaded through a process-scoped global.
type RootProvider interface {
	MarkRoots(h *Heap)
}

// Heap owns every live object, the string intern pool, and the GC
// bookkeeping that triggers collection during allocation. Exactly one Heap
// exists per running program: compiler and VM share it so that string
// constants created at compile time intern against the same pool as
// strings created at run time.
type Heap struct {
	objects Obj // head of the intrusive object list
	strings *Table

	bytesAllocated int64
	nextGC         int64
	grayStack      []Obj

	roots RootProvider

	StressGC       bool
	LogGC          bool
	LogWriter      io.Writer
	HeapGrowFactor float64
}

const (
	initialNextGC         = 1 << 20 // 1 MiB, matches clox's default heuristic
	defaultHeapGrowFactor = 2.0
)

func NewHeap() *Heap {
	return &Heap{
		strings:        NewTable(),
		nextGC:         initialNextGC,
		HeapGrowFactor: defaultHeapGrowFactor,
	}
}

// SetRoots swaps the active GC root provider. Call with the Compiler while
// compiling and with the VM while running.
func (h *Heap) SetRoots(p RootProvider) { h.roots = p }

func (h *Heap) link(o Obj) {
	o.header().next = h.objects
	h.objects = o
}

// maybeCollect runs a collection if the heap has grown past nextGC (or
// unconditionally when StressGC is set, to flush out missed roots during
// development/testing). Every constructor below calls this BEFORE
// building its new object, never after: the freshly built object isn't
// reachable from any root until its constructor returns it, so collecting
// after linking it in (but before the caller can root it) would sweep it
// away on the spot — fatal under StressGC, where every single allocation
// would trigger exactly that collection.
func (h *Heap) maybeCollect() {
	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.CollectGarbage()
	}
}

// trackAllocation records size bytes of new allocation. Called only after
// the new object is fully built and linked; it never itself triggers a
// collection (see maybeCollect).
func (h *Heap) trackAllocation(size int64) {
	h.bytesAllocated += size
}

// Rough per-object sizes for GC-pressure accounting; exactness doesn't
// matter; only the direction (more data -> collect sooner) does.
const (
	sizeString  = 32
	sizeFunction = 64
	sizeClosure  = 40
	sizeUpvalue  = 24
	sizeNative   = 24
	sizeList     = 24
	sizeMap      = 24
)

// InternString returns the canonical StringObj for chars, allocating a new
// one only if no equal-content string is already interned. This is both
// `copyString` and `takeString` from the original design: Go strings are
// immutable value types, so there's no separate "already own these bytes"
// fast path to model.
func (h *Heap) InternString(chars string) *StringObj {
	hash := fnv1a(chars)
	if existing := h.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	h.maybeCollect()
	s := &StringObj{Chars: chars, Hash: hash}
	h.link(s)
	h.trackAllocation(sizeString + int64(len(chars)))
	h.strings.Set(FromObj(s), Bool(true))
	return s
}

func (h *Heap) NewFunction(name *StringObj) *FunctionObj {
	h.maybeCollect()
	f := &FunctionObj{Name: name, Chunk: NewChunk()}
	h.link(f)
	h.trackAllocation(sizeFunction)
	return f
}

func (h *Heap) NewClosure(fn *FunctionObj) *ClosureObj {
	h.maybeCollect()
	c := &ClosureObj{Function: fn, Upvalues: make([]*UpvalueObj, fn.UpvalueCount)}
	h.link(c)
	h.trackAllocation(sizeClosure)
	return c
}

func (h *Heap) NewUpvalue(slot *Value) *UpvalueObj {
	h.maybeCollect()
	u := &UpvalueObj{Location: slot}
	h.link(u)
	h.trackAllocation(sizeUpvalue)
	return u
}

func (h *Heap) NewNative(name string, fn NativeFn) *NativeObj {
	h.maybeCollect()
	n := &NativeObj{Name: name, Fn: fn}
	h.link(n)
	h.trackAllocation(sizeNative)
	return n
}

func (h *Heap) NewList(items []Value) *ListObj {
	h.maybeCollect()
	l := &ListObj{Items: items}
	h.link(l)
	h.trackAllocation(sizeList + int64(len(items))*8)
	return l
}

func (h *Heap) NewMap() *MapObj {
	h.maybeCollect()
	m := &MapObj{Table: NewTable()}
	h.link(m)
	h.trackAllocation(sizeMap)
	return m
}

func (h *Heap) logf(format string, args ...interface{}) {
	if !h.LogGC {
		return
	}
	w := h.LogWriter
	if w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}
