// Package logging provides structured logging for taskscope.
//
// It wraps a process-wide zap logger. Logging is silent by default so that
// the observation lines printed by the CLI are the only output; set
// TASKSCOPE_LOG_LEVEL to one of debug, info, warn or error to see what the
// tool is doing underneath.
//
// # Structured Logging
//
//	logging.Info("Breakpoint inserted",
//	    zap.String("location", "pendsv_handler"),
//	    zap.Int("handle", 1),
//	)
//
// # Domain Helpers
//
//	logging.LogHalt("breakpoint-hit", 1, 0x08000410, "pendsv_handler")
//	logging.LogMemoryRead(0x20000100, buf)
//
// Log output goes to stderr so it never interleaves with observations
// written to stdout.
package logging
