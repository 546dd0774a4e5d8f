// Package trace defines the execution trace schema shared by every step driver.
//
// A trace is an ordered list of snapshots, one per recorded step, optionally
// followed by terminal pseudo-events (program output, then a failure). Both
// the interpreted and the compiled drivers produce the same schema:
//
//	[
//	  {"line_number": 3, "stack": [{"func_name": "<main>", "lineno": 3, "locals": {...}}], "heap": {...}},
//	  ...
//	  {"event": "output", "data": "hello\n"},
//	  {"event": "error", "line_number": 7, "error_type": "RuntimeError", "error_message": "..."}
//	]
//
// # Values and the heap
//
// A local variable is either a primitive, rendered as text, or a reference
// into the snapshot's heap. Compound values are stored once per snapshot and
// de-duplicated by identity:
//
//	heap := trace.NewHeap()
//	ref := heap.Intern(tbl, "list", func() trace.HeapObject {
//	    return trace.Sequence(items...)
//	})
//
// Heap ids are scoped to a single snapshot. Two snapshots may reuse an id for
// unrelated objects, and every snapshot carries its full heap.
//
// # Assembler
//
// The Assembler owns the trace of one request. Drivers append snapshots as
// they step, report output and at most one failure, and call Finish to obtain
// the immutable Trace.
package trace
