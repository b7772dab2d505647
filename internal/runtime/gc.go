package runtime

import "github.com/dustin/go-humanize"

// CollectGarbage runs one precise mark-and-sweep cycle: mark roots, drain
// the gray worklist (tricolor marking), reconcile the weak string intern
// table, then sweep unreached objects off the object list. There is no
// generational or incremental scheme here — every cycle walks the whole
// graph.
func (h *Heap) CollectGarbage() {
	before := h.bytesAllocated

	h.markRoots()
	h.traceReferences()
	h.strings.RemoveWhite()
	h.sweep()

	growFactor := h.HeapGrowFactor
	if growFactor <= 0 {
		growFactor = defaultHeapGrowFactor
	}
	h.nextGC = int64(float64(h.bytesAllocated) * growFactor)
	if h.nextGC < initialNextGC {
		h.nextGC = initialNextGC
	}

	if h.LogGC {
		h.logf("gc: collected %s (from %s to %s), next at %s\n",
			humanize.Bytes(uint64(before-h.bytesAllocated)),
			humanize.Bytes(uint64(before)),
			humanize.Bytes(uint64(h.bytesAllocated)),
			humanize.Bytes(uint64(h.nextGC)))
	}
}

func (h *Heap) markRoots() {
	// The intern table's own keys are deliberately NOT marked here: that
	// is exactly what makes interning weak. A string survives
	// collection only if something else roots it.
	if h.roots != nil {
		h.roots.MarkRoots(h)
	}
}

// MarkValue marks v if it references a heap object, pushing newly grayed
// objects onto the gray worklist.
func (h *Heap) MarkValue(v Value) {
	if v.IsObj() {
		h.MarkObject(v.obj)
	}
}

// MarkObject sets o's mark bit and pushes it onto the gray stack, unless
// it is nil or already marked.
func (h *Heap) MarkObject(o Obj) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.grayStack = append(h.grayStack, o)
}

func (h *Heap) traceReferences() {
	for len(h.grayStack) > 0 {
		o := h.grayStack[len(h.grayStack)-1]
		h.grayStack = h.grayStack[:len(h.grayStack)-1]
		h.blacken(o)
	}
}

// blacken marks every object o directly references, by kind.
func (h *Heap) blacken(o Obj) {
	switch v := o.(type) {
	case *StringObj, *NativeObj:
		// no children
	case *FunctionObj:
		if v.Name != nil {
			h.MarkObject(v.Name)
		}
		if v.Chunk != nil {
			for _, c := range v.Chunk.Constants {
				h.MarkValue(c)
			}
		}
	case *ClosureObj:
		h.MarkObject(v.Function)
		for _, up := range v.Upvalues {
			h.MarkObject(up)
		}
	case *UpvalueObj:
		h.MarkValue(v.Closed)
		if v.Location != nil && v.Location != &v.Closed {
			h.MarkValue(*v.Location)
		}
	case *ListObj:
		for _, item := range v.Items {
			h.MarkValue(item)
		}
	case *MapObj:
		v.Table.Each(func(k, val Value) {
			h.MarkValue(k)
			h.MarkValue(val)
		})
	}
}

// sweep walks the object list, freeing every object whose mark bit was not
// set this cycle and clearing the mark bit on survivors.
func (h *Heap) sweep() {
	var prev Obj
	obj := h.objects
	for obj != nil {
		hdr := obj.header()
		if hdr.marked {
			hdr.marked = false
			prev = obj
			obj = hdr.next
			continue
		}
		unreached := obj
		obj = hdr.next
		if prev != nil {
			prev.header().next = obj
		} else {
			h.objects = obj
		}
		h.free(unreached)
	}
}

func (h *Heap) free(o Obj) {
	switch v := o.(type) {
	case *StringObj:
		h.bytesAllocated -= sizeString + int64(len(v.Chars))
	case *FunctionObj:
		h.bytesAllocated -= sizeFunction
	case *ClosureObj:
		h.bytesAllocated -= sizeClosure
	case *UpvalueObj:
		h.bytesAllocated -= sizeUpvalue
	case *NativeObj:
		h.bytesAllocated -= sizeNative
	case *ListObj:
		h.bytesAllocated -= sizeList + int64(len(v.Items))*8
	case *MapObj:
		h.bytesAllocated -= sizeMap
	}
}
