// Package governor bounds the cost of a single trace request.
//
// Three independent guards are provided:
//
//   - Budget caps the number of snapshots a request may record. Running out
//     is not an error; the trace simply stops growing.
//   - Artifacts remembers the temporary files a request created and removes
//     them on every exit path, retrying transient failures.
//   - Watchdog derives the request deadline and, when it passes, stops the
//     external debugger so a blocked read returns.
package governor
