// Package luatrace records the execution of Lua programs.
//
// gopher-lua has no per-line hook, so the program is instrumented before it
// runs: the chunk is parsed, a probe call is inserted in front of every
// statement, and the result is compiled and executed in a fresh sandboxed
// state. Each probe call takes one snapshot of the live user frames:
//
//	local xs = {3, 1, 2}      __traceview_step(1) local xs = {3, 1, 2}
//	table.sort(xs)       =>   __traceview_step(2) table.sort(xs)
//	print(xs[1])              __traceview_step(3) print(xs[1])
//
// Loop bodies always start with a probe, so even an empty loop is observed
// once per iteration and the step budget can stop it.
//
// # Usage
//
//	tracer := luatrace.New(
//	    luatrace.WithMaxSteps(500),
//	    luatrace.WithWatchdog(governor.NewWatchdog(5*time.Second, 0)),
//	)
//	t := tracer.Trace(ctx, source)
//
// Trace never returns an error. Syntax errors, runtime errors and timeouts are
// reported as the trace's final event.
package luatrace
