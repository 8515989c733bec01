// Package serialport provides a non-blocking serial byte channel.
// Controllers poll Available and consume bytes with ReadByte; nothing here
// ever waits for input on the caller's goroutine.
package serialport

import "errors"

// ErrNoData is returned by ReadByte when no byte is buffered.
var ErrNoData = errors.New("serialport: no data available")

// Port is a serial byte channel owned by exactly one controller.
type Port interface {
	// Begin opens (or reopens) the channel at the given baud rate.
	Begin(baud int) error

	// Available returns the number of bytes that can be read without blocking.
	Available() int

	// ReadByte consumes one buffered byte, or returns ErrNoData.
	ReadByte() (byte, error)

	// Err returns the error that stopped the receiver, or nil while it runs.
	// Bytes received before the failure stay readable. Begin clears it.
	Err() error

	// Close releases the channel.
	Close() error
}
