// Package target defines how taskscope talks to a halted processor.
//
// Target is the debugger-facing contract: breakpoints, watchpoints, memory
// and register reads, resume and finish, and the stream of halt events.
// The gdb package implements it over a GDB/MI session; Image implements
// just the Memory half over a RAM dump so that structures can be walked
// offline, and targettest provides a scripted fake for tests.
//
// Reader layers typed field access on top of any Memory. Every failure to
// read comes back as a *ReadError. Callers never substitute a value for
// memory they could not read.
package target
