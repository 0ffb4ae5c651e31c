//go:build windows

package shutdown

import "os"

var stopSignals = []os.Signal{os.Interrupt}
