package radio

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	cmdReceiveStart = "radio rx 0"
	cmdReceiveStop  = "radio rxstop"
	cmdTransmit     = "radio tx "
	// deliberately not a valid command: the response shakes loose any stale
	// state left over from a previous session
	cmdProbe = "INVALIDCOMMAND"

	tokenOK           = "ok"
	tokenRadioErr     = "radio_err"
	tokenInvalidParam = "invalid_param"
	// inbound packet notification; the firmware pads a second space, so the
	// hex body begins after a TrimSpace
	prefixPacket = "radio_rx "

	// activity indicator pins on the LoStik: red while transmitting, blue
	// while listening
	pinTransmit = "GPIO10"
	pinReceive  = "GPIO11"
)

// DefaultInitCommands is the built-in configuration sequence used when no
// init file is supplied.
func DefaultInitCommands() []string {
	return []string{
		"sys get ver",
		"mac reset",
		"mac pause",
		"radio get mod",
		"radio get freq",
		"radio get pwr",
		"radio get sf",
		"radio get bw",
		"radio get cr",
		"radio get wdt",
		"radio set pwr 22",
		"radio set sf sf12",
		"radio set bw 125",
		"radio set cr 4/5",
		"radio set wdt 60000",
	}
}

// readLine blocks until the reader task publishes the next serial line.
func (l *Link) readLine() (string, error) {
	line, ok := <-l.lines.out
	if !ok {
		return "", ErrTransportClosed
	}
	return line, nil
}

// Init applies the radio configuration. It first writes the invalid probe
// command, waits for the hardware to settle, and discards whatever arrives in
// that window, then sends each configuration line and reads exactly one
// response per line. Any response other than the bad-parameter token is
// accepted; the radio's replies vary by command and are not otherwise parsed.
func (l *Link) Init(commands []string) error {
	if err := l.tr.WriteLine(cmdProbe); err != nil {
		return err
	}
	time.Sleep(l.settle)

drain:
	for {
		select {
		case _, ok := <-l.lines.out:
			if !ok {
				return ErrTransportClosed
			}
		default:
			break drain
		}
	}

	if len(commands) == 0 {
		commands = DefaultInitCommands()
	}

	l.log.Debug().Msg("configuring radio")
	for _, cmd := range commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if err := l.tr.WriteLine(cmd); err != nil {
			return err
		}
		resp, err := l.readLine()
		if err != nil {
			return err
		}
		if resp == tokenInvalidParam {
			return fmt.Errorf("%w: %q", ErrBadParameter, cmd)
		}
	}

	l.log.Info().Int("commands", len(commands)).Msg("radio initialized")
	return nil
}

// rxStart arms the receiver.
func (l *Link) rxStart() error {
	if err := l.tr.WriteLine(cmdReceiveStart); err != nil {
		return err
	}

	resp, err := l.readLine()
	if err != nil {
		return err
	}
	// quirk: sometimes a stray radio_err precedes the real acknowledgement
	if resp == tokenRadioErr {
		resp, err = l.readLine()
		if err != nil {
			return err
		}
	}
	if err := assertResponse(resp); err != nil {
		return err
	}

	return l.setIndicator(pinReceive, true)
}

// rxStop disarms the receiver so the radio can transmit.
func (l *Link) rxStop() error {
	if err := l.tr.WriteLine(cmdReceiveStop); err != nil {
		return err
	}

	resp, err := l.readLine()
	if err != nil {
		return err
	}
	if strings.HasPrefix(resp, prefixPacket) {
		// quirk: a packet arrived in the instant before the mode switch.
		// Deliver it, then consume the actual stop acknowledgement.
		if derr := l.deliverPacket(resp); derr != nil {
			l.log.Warn().Err(derr).Msg("dropping racing packet")
		}
		if _, err := l.readLine(); err != nil {
			return err
		}
	}
	// the acknowledgement content varies (ok, sometimes radio_err); only its
	// absence is a failure, and that already surfaced above

	return l.setIndicator(pinReceive, false)
}

// transmit sends one frame. Only the arbitration loop may call this; a
// concurrent caller would collide with the half-duplex mode switching.
func (l *Link) transmit(data []byte) error {
	if err := l.setIndicator(pinTransmit, true); err != nil {
		return err
	}

	if err := l.tr.WriteLine(cmdTransmit + hex.EncodeToString(data)); err != nil {
		return err
	}

	resp, err := l.readLine()
	if err != nil {
		return err
	}
	if resp == tokenRadioErr {
		resp, err = l.readLine()
		if err != nil {
			return err
		}
	}
	if err := assertResponse(resp); err != nil {
		return err
	}

	// the hardware's post-transmit acknowledgement, normally radio_tx_ok;
	// content not validated
	if _, err := l.readLine(); err != nil {
		return err
	}

	l.log.Debug().Int("bytes", len(data)).Msg("transmitted frame")
	return l.setIndicator(pinTransmit, false)
}

// setIndicator toggles an activity LED. The GPIO write is itself a
// command/response round-trip and must complete before the caller proceeds.
func (l *Link) setIndicator(pin string, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	if err := l.tr.WriteLine("sys set pindig " + pin + " " + value); err != nil {
		return err
	}
	_, err := l.readLine()
	return err
}

// onLine handles a line polled while receiving: packet notifications are
// decoded and delivered; a lingering radio_err is harmless; anything else is
// consumed unchecked.
func (l *Link) onLine(line string) error {
	if strings.HasPrefix(line, prefixPacket) {
		return l.deliverPacket(line)
	}
	if line != tokenRadioErr {
		l.log.Debug().Str("line", line).Msg("unexpected serial line")
	}
	return nil
}

// deliverPacket decodes a packet notification's hex body and publishes the
// raw frame bytes to the inbound queue.
func (l *Link) deliverPacket(line string) error {
	body := strings.TrimSpace(line[len(prefixPacket):])
	data, err := hex.DecodeString(body)
	if err != nil {
		return fmt.Errorf("bad hex in packet notification: %w", err)
	}
	l.log.Debug().Int("bytes", len(data)).Msg("received frame")
	l.rxq.in <- data
	return nil
}
