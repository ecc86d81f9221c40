//go:build !windows

package session

import "syscall"

// probeSignal is signal 0: it checks that the child is still alive without
// delivering anything to it.
var probeSignal = syscall.Signal(0)
