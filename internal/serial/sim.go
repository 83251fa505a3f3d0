package serial

import (
	"encoding/hex"
	"os"
	"strings"
	"sync"
)

// SimPort emulates an RN2903-family LoStik behind the SerialPorter interface.
// It speaks just enough of the line protocol for the link layer to initialize,
// arm the receiver, and transmit: commands are acknowledged the way the real
// hardware acknowledges them, and InjectFrame plays the part of a packet
// arriving over the air. Used by the daemon's dev mode and by tests.
type SimPort struct {
	mu       sync.Mutex
	partial  []byte
	pending  []byte
	dataCh   chan []byte
	closed   chan struct{}
	rxOn     bool
	commands []string
	sent     [][]byte
}

// NewSimPort returns a simulated LoStik.
func NewSimPort() *SimPort {
	return &SimPort{
		dataCh: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (s *SimPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	select {
	case data := <-s.dataCh:
		n := copy(p, data)
		if n < len(data) {
			s.mu.Lock()
			s.pending = append(s.pending, data[n:]...)
			s.mu.Unlock()
		}
		return n, nil
	case <-s.closed:
		return 0, os.ErrClosed
	}
}

func (s *SimPort) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, os.ErrClosed
	default:
	}

	s.mu.Lock()
	s.partial = append(s.partial, p...)
	var lines []string
	for {
		idx := strings.IndexByte(string(s.partial), '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(s.partial[:idx]), "\r")
		s.partial = s.partial[idx+1:]
		lines = append(lines, line)
	}
	s.mu.Unlock()

	for _, line := range lines {
		s.handle(line)
	}
	return len(p), nil
}

func (s *SimPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// InjectFrame delivers an over-the-air packet to the simulated radio. It is
// only reported when the receiver is armed, matching the hardware: a packet
// notification ends the current receive window.
func (s *SimPort) InjectFrame(data []byte) bool {
	s.mu.Lock()
	if !s.rxOn {
		s.mu.Unlock()
		return false
	}
	s.rxOn = false
	s.mu.Unlock()

	// The hardware pads the notification with a second space before the hex
	// body.
	s.respond("radio_rx  " + hex.EncodeToString(data))
	return true
}

// Commands returns every command line the port has consumed, in order.
func (s *SimPort) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Transmitted returns the decoded payload of every radio tx command.
func (s *SimPort) Transmitted() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *SimPort) respond(lines ...string) {
	for _, line := range lines {
		select {
		case s.dataCh <- []byte(line + "\r\n"):
		case <-s.closed:
			return
		}
	}
}

func (s *SimPort) handle(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()

	switch {
	case line == "radio rx 0":
		s.mu.Lock()
		s.rxOn = true
		s.mu.Unlock()
		s.respond("ok")
	case line == "radio rxstop":
		s.mu.Lock()
		s.rxOn = false
		s.mu.Unlock()
		s.respond("ok")
	case strings.HasPrefix(line, "radio tx "):
		body := strings.TrimPrefix(line, "radio tx ")
		data, err := hex.DecodeString(strings.TrimSpace(body))
		if err != nil {
			s.respond("invalid_param")
			return
		}
		s.mu.Lock()
		s.rxOn = false
		s.sent = append(s.sent, data)
		s.mu.Unlock()
		s.respond("ok", "radio_tx_ok")
	case line == "sys get ver":
		s.respond("RN2903 1.0.5 Nov 06 2018 10:45:27")
	case line == "mac reset":
		s.respond("ok")
	case line == "mac pause":
		// the real firmware answers with the maximum pause duration
		s.respond("4294967245")
	case strings.HasPrefix(line, "sys set pindig "):
		s.respond("ok")
	case strings.HasPrefix(line, "radio set "):
		s.respond("ok")
	case strings.HasPrefix(line, "radio get "):
		s.respond(s.getValue(strings.TrimPrefix(line, "radio get ")))
	default:
		s.respond("invalid_param")
	}
}

func (s *SimPort) getValue(param string) string {
	switch strings.TrimSpace(param) {
	case "mod":
		return "lora"
	case "freq":
		return "923300000"
	case "pwr":
		return "2"
	case "sf":
		return "sf12"
	case "bw":
		return "125"
	case "cr":
		return "4/5"
	case "wdt":
		return "15000"
	default:
		return "invalid_param"
	}
}
