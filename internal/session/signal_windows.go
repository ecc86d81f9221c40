//go:build windows

package session

import "os"

// Windows has no signal-0 liveness probe; os.Kill makes the probe in
// terminateProcess skip straight to the hard kill, which is the only
// termination Windows supports for console children anyway.
var probeSignal = os.Kill
