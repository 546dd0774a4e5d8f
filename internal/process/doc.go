// Package process tracks the debugger processes spawned by trace requests.
//
// Every compiled-language trace runs one gdb child. The Supervisor starts it
// with piped standard streams, remembers it until it exits, and lets the CLI
// stop every live debugger when it receives SIGINT or SIGTERM:
//
//	sup := process.NewSupervisor(process.WithLogger(log))
//	defer sup.Shutdown(2 * time.Second)
//
//	proc, err := sup.Start("gdb", exec.Command("gdb", "--interpreter=mi2"))
//	if err != nil {
//	    return err
//	}
//	defer proc.Stop(2 * time.Second)
//
// Stop and Shutdown are graceful: SIGTERM first, SIGKILL once the grace period
// runs out.
//
// Both Supervisor and Process are safe for concurrent use.
package process
