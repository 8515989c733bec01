package logbook

import (
	"bytes"
	"errors"
	"io"
)

// MemEEPROM is an in-memory EEPROM image.
type MemEEPROM struct {
	Data []byte
}

// NewMemEEPROM returns an erased (zeroed) image of size bytes.
func NewMemEEPROM(size int) *MemEEPROM {
	return &MemEEPROM{Data: make([]byte, size)}
}

// ReadAt implements io.ReaderAt.
func (e *MemEEPROM) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(e.Data)) {
		return 0, io.EOF
	}
	n := copy(p, e.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (e *MemEEPROM) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(e.Data)) {
		return 0, errors.New("eeprom: write past end")
	}
	return copy(e.Data[off:], p), nil
}

// FakeStorage is a scripted card.
type FakeStorage struct {
	CardError   error
	FSError     error
	FreeError   error
	CreateError error

	Blocks       uint64
	FreeClusters uint64
	PerCluster   uint64

	// Files holds everything written, by file name.
	Files map[string]*FakeFile
}

// NewFakeStorage returns a healthy card of 1GB with half of it free.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		Blocks:       2 * 1024 * 1024,
		FreeClusters: 16384,
		PerCluster:   64,
		Files:        make(map[string]*FakeFile),
	}
}

func (s *FakeStorage) CardBegin() error { return s.CardError }
func (s *FakeStorage) FSBegin() error   { return s.FSError }
func (s *FakeStorage) CardSize() uint64 { return s.Blocks }

func (s *FakeStorage) FreeClusterCount() (uint64, error) {
	return s.FreeClusters, s.FreeError
}

func (s *FakeStorage) BlocksPerCluster() uint64 { return s.PerCluster }

// Create returns a recording file.
func (s *FakeStorage) Create(name string) (io.WriteCloser, error) {
	if s.CreateError != nil {
		return nil, s.CreateError
	}
	f := &FakeFile{}
	s.Files[name] = f
	return f, nil
}

// FakeFile records writes.
type FakeFile struct {
	bytes.Buffer

	WriteError error
	Closed     bool
}

// Write records p unless WriteError is set.
func (f *FakeFile) Write(p []byte) (int, error) {
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	return f.Buffer.Write(p)
}

// Close marks the file closed.
func (f *FakeFile) Close() error {
	f.Closed = true
	return nil
}
