//go:build windows

package main

import (
	"os"
)

// terminationSignals shut the bot down cleanly. Windows only delivers
// os.Interrupt (Ctrl+C).
var terminationSignals = []os.Signal{os.Interrupt}
