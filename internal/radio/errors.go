package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportClosed reports a hard I/O failure on the serial stream.
	// The radio is unusable once this surfaces; there is no retry.
	ErrTransportClosed = errors.New("radio transport closed")

	// ErrProtocolMismatch reports a response line that was not the expected
	// success token, outside the tolerated hardware quirks.
	ErrProtocolMismatch = errors.New("unexpected radio response")

	// ErrBadParameter reports a configuration command the radio rejected
	// during initialization.
	ErrBadParameter = errors.New("radio rejected configuration command")
)

// assertResponse checks a response line against the success token.
func assertResponse(resp string) error {
	if resp != tokenOK {
		return fmt.Errorf("%w: got %q, expected %q", ErrProtocolMismatch, resp, tokenOK)
	}
	return nil
}
