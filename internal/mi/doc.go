// Package mi decodes the GDB/MI machine interface text protocol.
//
// Every line gdb writes in MI mode is one record. A record starts with an
// optional numeric token followed by a marker character that selects its kind:
//
//	^done,value="1"                        result record
//	*stopped,reason="end-stepping-range"   exec-async record
//	+download,{...}                        status-async record
//	=thread-group-added,id="i1"            notify-async record
//	~"Breakpoint 1, main () at a.cpp:3\n"  console stream
//	@"inferior text"                       target stream
//	&"warning: ..."                        log stream
//	(gdb)                                  prompt, ends a burst
//
// Lines that carry no marker are output of the program being debugged and are
// classified as KindTarget.
//
// Result and async records carry a class followed by a comma separated list of
// results (name=value). A value is a c-string, a tuple {...} of results, or a
// list [...] of values or of results. Nesting is arbitrary:
//
//	rec := mi.Parse(`*stopped,reason="end-stepping-range",frame={func="main",line="4"}`)
//	rec.Results.Get("frame").Get("line").Int() // 4
//
// Parsing is lenient: malformed input yields a record holding every result
// decoded before the error, with Err set. Lookups of absent fields return the
// zero Value, whose accessors return zero values, so callers can walk paths
// without checking each step.
package mi
