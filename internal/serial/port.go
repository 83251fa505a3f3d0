// Package serial provides the byte-stream transport to the LoRa radio: a
// minimal serial port abstraction, a line-oriented wrapper over it, and test
// doubles so the rest of the stack can run without real hardware.
package serial

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
