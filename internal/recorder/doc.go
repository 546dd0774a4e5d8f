// Package recorder is the single entry point for tracing a program.
//
// A Recorder is built once from the configuration and then serves any number
// of requests, concurrently if needed. Each request is routed to the driver
// for its language:
//
//	            ┌─────────────────────────────┐
//	 "lua" ───▶ │ luatrace: instrumented VM   │ ──┐
//	            └─────────────────────────────┘   │
//	                                              ├──▶ trace.Trace
//	            ┌─────────────────────────────┐   │
//	 "cpp" ───▶ │ gdb: compile + MI stepping  │ ──┘
//	            └─────────────────────────────┘
//
// Drivers never return errors; failures end the trace as events. The
// recorder adds one more guarantee on top: a driver panic is turned into a
// ResourceError event instead of reaching the caller.
//
// # Basic Usage
//
//	rec := recorder.New(cfg, recorder.WithLogger(log))
//	defer rec.Shutdown()
//
//	t, err := rec.Trace(ctx, recorder.LangLua, source)
package recorder
