// Package daemon runs the task scheduler daemon: a Unix socket server whose
// connections are driven by a single reactor goroutine, the request
// dispatcher, and the PID file bookkeeping used by the CLI.
package daemon
