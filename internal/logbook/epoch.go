package logbook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// EEPROM addresses of the boot epoch counter.
const (
	epochAddrLSB = 512
	epochAddrMSB = 513
)

// EEPROM is byte-addressable non-volatile memory.
type EEPROM interface {
	io.ReaderAt
	io.WriterAt
}

// OpenFileEEPROM opens (creating if needed) a file that stands in for the
// board EEPROM. Unwritten addresses read as zero.
func OpenFileEEPROM(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open eeprom image: %w", err)
	}
	return f, nil
}

// NextEpoch reads the 16-bit boot counter, increments it (wrapping) and
// writes it back. The returned value identifies this boot.
func NextEpoch(e EEPROM) (uint16, error) {
	var buf [2]byte
	n, err := e.ReadAt(buf[:], epochAddrLSB)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read epoch: %w", err)
	}
	// Anything past the end of a short image is unwritten.
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	epoch := uint16(buf[1])<<8 | uint16(buf[0])
	epoch++

	buf[0] = byte(epoch)
	buf[1] = byte(epoch >> 8)
	if _, err := e.WriteAt(buf[:1], epochAddrLSB); err != nil {
		return 0, fmt.Errorf("write epoch: %w", err)
	}
	if _, err := e.WriteAt(buf[1:], epochAddrMSB); err != nil {
		return 0, fmt.Errorf("write epoch: %w", err)
	}
	return epoch, nil
}

// FileName returns the log file name for a boot epoch.
func FileName(epoch uint16) string {
	return "Log_" + strconv.FormatUint(uint64(epoch), 10) + ".csv"
}

// LinePrefix returns the prefix stamped on every line of a boot epoch.
func LinePrefix(epoch uint16) string {
	return strconv.FormatUint(uint64(epoch), 10) + ","
}
