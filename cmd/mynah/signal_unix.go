//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals shut the bot down cleanly. SIGTERM is what supervisors
// (systemd, docker) send; an admin /restart exits through its own path and
// relies on the supervisor's restart policy instead.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
