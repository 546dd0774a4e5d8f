// Package gdb records the execution of C++ programs by driving gdb through
// its machine interface (MI).
//
// A trace request goes through four stages:
//
//	compile    g++ -g -O0 traceview_<uuid>.cpp -o traceview_<uuid>
//	launch     gdb --interpreter=mi2 -q -nx --args traceview_<uuid>
//	handshake  -gdb-set confirm off, -break-insert main, -exec-run
//	step loop  *stopped -> -stack-list-variables -> snapshot -> -exec-next
//
// The exchange with gdb is half-duplex: every command's reply is read up to
// the "(gdb)" prompt before the next command is sent. Reads block, so the
// request deadline is enforced from outside: when it passes, the debugger is
// stopped (SIGTERM, then SIGKILL after the grace period) and its pipes are
// closed, which fails the pending read.
//
// The debugger process, the source file and the binary are removed on every
// exit path.
package gdb
