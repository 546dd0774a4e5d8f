package trace

// Heap collects the compound values reachable from one snapshot. Objects are
// de-duplicated by identity: interning the same identity twice yields the same
// reference, so aliasing and cycles are preserved.
//
// Heap is not safe for concurrent use. Each snapshot builds its own.
type Heap struct {
	objects map[int]HeapObject
	ids     map[any]int
	next    int
}

// NewHeap creates an empty heap. Ids start at 1.
func NewHeap() *Heap {
	return &Heap{
		objects: make(map[int]HeapObject),
		ids:     make(map[any]int),
		next:    1,
	}
}

// Intern returns a reference to the object identified by identity. The first
// time an identity is seen its id is reserved and fill is called to build the
// object; recursive calls to Intern from inside fill with the same identity
// return the reserved id, which terminates cycles.
//
// identity must be comparable (a pointer or an address works).
func (h *Heap) Intern(identity any, typ string, fill func() HeapObject) Value {
	if id, ok := h.ids[identity]; ok {
		return Reference(id)
	}
	id := h.next
	h.next++
	h.ids[identity] = id
	h.objects[id] = HeapObject{Type: typ, Items: []Value{}}

	obj := fill()
	obj.Type = typ
	if obj.Items == nil && obj.Fields == nil {
		obj.Items = []Value{}
	}
	h.objects[id] = obj
	return Reference(id)
}

// Len returns the number of objects in the heap.
func (h *Heap) Len() int { return len(h.objects) }

// Objects returns the heap contents keyed by id.
func (h *Heap) Objects() map[int]HeapObject {
	return h.objects
}
