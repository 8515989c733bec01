package serialport

import (
	"fmt"
	"io"
	"log"
	"sync"

	"go.bug.st/serial"
)

// maxBuffered bounds the receive buffer. A GPS at 9600 baud fills it in ~4s,
// far longer than any controller goes without draining.
const maxBuffered = 4096

// RealPort reads a serial device on a background goroutine into a buffer
// that the owning controller drains without blocking.
type RealPort struct {
	device string

	mu       sync.Mutex
	buf      []byte
	overflow bool
	readErr  error

	rc   io.ReadCloser
	done chan struct{}
}

// NewRealPort creates a port for the given device path. The device is not
// opened until Begin.
func NewRealPort(device string) *RealPort {
	return &RealPort{device: device}
}

// Begin opens the device at baud and starts the reader.
func (p *RealPort) Begin(baud int) error {
	if err := p.Close(); err != nil {
		log.Printf("serial %s: close before reopen: %v", p.device, err)
	}
	port, err := serial.Open(p.device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", p.device, err)
	}
	p.attach(port)
	return nil
}

// attach starts pumping rc into the buffer.
func (p *RealPort) attach(rc io.ReadCloser) {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.readErr = nil
	p.overflow = false
	p.mu.Unlock()

	p.rc = rc
	p.done = make(chan struct{})
	go p.pump(rc, p.done)
}

func (p *RealPort) pump(r io.Reader, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, 256)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			p.push(chunk[:n])
		}
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *RealPort) push(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, b...)
	if extra := len(p.buf) - maxBuffered; extra > 0 {
		if !p.overflow {
			log.Printf("serial %s: buffer full (%d bytes), dropping oldest", p.device, maxBuffered)
			p.overflow = true
		}
		p.buf = append(p.buf[:0], p.buf[extra:]...)
	}
}

// Available returns the number of buffered bytes.
func (p *RealPort) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// ReadByte consumes one buffered byte.
func (p *RealPort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 {
		return 0, ErrNoData
	}
	b := p.buf[0]
	p.buf = p.buf[1:]
	if len(p.buf) == 0 {
		p.overflow = false
	}
	return b, nil
}

// Err returns the error that stopped the reader, if any.
func (p *RealPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}

// Close closes the device and waits for the reader to exit.
func (p *RealPort) Close() error {
	if p.rc == nil {
		return nil
	}
	err := p.rc.Close()
	<-p.done
	p.rc = nil
	return err
}
