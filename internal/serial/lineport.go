package serial

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// LinePort wraps a serial port with the line-oriented command protocol the
// radio speaks: CRLF-terminated ASCII lines in both directions.
type LinePort struct {
	port    SerialPorter
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// NewLinePort wraps the given port.
func NewLinePort(port SerialPorter) *LinePort {
	return &LinePort{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// WriteLine writes a single command line, appending the CRLF terminator the
// radio requires.
func (p *LinePort) WriteLine(line string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	out := line + "\r\n"
	n, err := p.port.Write([]byte(out))
	if err != nil {
		return err
	}
	if n != len(out) {
		return ErrWriteFailed
	}
	return nil
}

// ReadLine blocks until a full line arrives and returns it with the
// terminator stripped. An end-of-stream with no pending data is a transient
// condition, reported as ok=false with a nil error; callers are expected to
// retry. Any other read failure is a hard transport error.
func (p *LinePort) ReadLine() (line string, ok bool, err error) {
	data, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			line = strings.TrimRight(data, "\r\n")
			if line == "" {
				return "", false, nil
			}
			// A line arrived without its terminator; hand it over rather
			// than dropping bytes already read off the wire.
			return line, true, nil
		}
		return "", false, err
	}
	return strings.TrimRight(data, "\r\n"), true, nil
}

// Close closes the underlying port.
func (p *LinePort) Close() error {
	return p.port.Close()
}
