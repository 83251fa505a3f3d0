package radio

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a scripted stand-in for the serial line port. The handler
// maps each written command line to the response lines the radio would emit.
type fakeTransport struct {
	mu      sync.Mutex
	writes  []string
	lines   chan string
	closed  chan struct{}
	handler func(line string) []string
}

func newFakeTransport(handler func(line string) []string) *fakeTransport {
	return &fakeTransport{
		lines:   make(chan string, 64),
		closed:  make(chan struct{}),
		handler: handler,
	}
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	f.writes = append(f.writes, line)
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		for _, resp := range handler(line) {
			f.lines <- resp
		}
	}
	return nil
}

func (f *fakeTransport) ReadLine() (string, bool, error) {
	select {
	case line := <-f.lines:
		return line, true, nil
	case <-f.closed:
		return "", false, errors.New("port closed")
	}
}

func (f *fakeTransport) Close() {
	close(f.closed)
}

func (f *fakeTransport) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

// okResponder acknowledges every command the way a healthy radio does.
func okResponder(line string) []string {
	switch {
	case line == cmdProbe:
		return []string{tokenInvalidParam}
	case strings.HasPrefix(line, cmdTransmit):
		return []string{tokenOK, "radio_tx_ok"}
	default:
		return []string{tokenOK}
	}
}

func newTestLink(t *testing.T, tr Transport) *Link {
	t.Helper()
	l := New(tr, NewTxLimiter(time.Second, 3), zerolog.Nop())
	l.settle = 20 * time.Millisecond
	return l
}

func TestRxStart(t *testing.T) {
	tr := newFakeTransport(okResponder)
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.rxStart())
	assert.Equal(t, []string{"radio rx 0", "sys set pindig GPIO11 1"}, tr.Writes())
}

func TestRxStart_SkipsHarmlessError(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if line == cmdReceiveStart {
			return []string{tokenRadioErr, tokenOK}
		}
		return []string{tokenOK}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	assert.NoError(t, l.rxStart())
}

func TestRxStart_ProtocolMismatch(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		return []string{"busy"}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	err := l.rxStart()
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestRxStop(t *testing.T) {
	tr := newFakeTransport(okResponder)
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.rxStop())
	assert.Equal(t, []string{"radio rxstop", "sys set pindig GPIO11 0"}, tr.Writes())
}

func TestRxStop_PacketRace(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if line == cmdReceiveStop {
			// a packet landed right before the mode switch
			return []string{"radio_rx  00010203", tokenOK}
		}
		return []string{tokenOK}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.rxStop())

	select {
	case pkt := <-l.Packets():
		assert.Equal(t, []byte{0, 1, 2, 3}, pkt)
	case <-time.After(time.Second):
		t.Fatal("racing packet was not delivered")
	}
}

func TestTransmit(t *testing.T) {
	tr := newFakeTransport(okResponder)
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.transmit([]byte{0x0A, 0x0B}))
	assert.Equal(t, []string{
		"sys set pindig GPIO10 1",
		"radio tx 0a0b",
		"sys set pindig GPIO10 0",
	}, tr.Writes())
}

func TestTransmit_SkipsHarmlessError(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if strings.HasPrefix(line, cmdTransmit) {
			return []string{tokenRadioErr, tokenOK, "radio_tx_ok"}
		}
		return []string{tokenOK}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	assert.NoError(t, l.transmit([]byte{0xFF}))
}

func TestTransmit_ProtocolMismatch(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if strings.HasPrefix(line, cmdTransmit) {
			return []string{"busy"}
		}
		return []string{tokenOK}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	err := l.transmit([]byte{0xFF})
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestInit_DefaultCommands(t *testing.T) {
	tr := newFakeTransport(okResponder)
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.Init(nil))

	writes := tr.Writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, cmdProbe, writes[0])
	assert.Equal(t, append([]string{cmdProbe}, DefaultInitCommands()...), writes)
}

func TestInit_DrainsStaleLines(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if line == cmdProbe {
			// stale chatter from a previous session
			return []string{tokenInvalidParam, "RN2903 1.0.5", tokenRadioErr}
		}
		return []string{tokenOK}
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.Init([]string{"radio set sf sf12"}))
}

func TestInit_BadParameter(t *testing.T) {
	tr := newFakeTransport(func(line string) []string {
		if line == "radio set bw 500" {
			return []string{tokenInvalidParam}
		}
		return okResponder(line)
	})
	defer tr.Close()
	l := newTestLink(t, tr)

	err := l.Init([]string{"radio set sf sf12", "radio set bw 500"})
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestInit_SkipsBlankLines(t *testing.T) {
	tr := newFakeTransport(okResponder)
	defer tr.Close()
	l := newTestLink(t, tr)

	require.NoError(t, l.Init([]string{"", "  ", "radio set sf sf12"}))

	writes := tr.Writes()
	assert.Equal(t, []string{cmdProbe, "radio set sf sf12"}, writes)
}

func TestReadLine_TransportClosed(t *testing.T) {
	tr := newFakeTransport(nil)
	l := newTestLink(t, tr)

	tr.Close()

	_, err := l.readLine()
	assert.ErrorIs(t, err, ErrTransportClosed)
}
