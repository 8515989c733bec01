//go:build !linux

package logbook

import (
	"errors"
	"io"
)

var errUnsupported = errors.New("card storage: not supported on this platform")

// DirStorage is unavailable off Linux.
type DirStorage struct {
	Dir string
}

// NewDirStorage returns storage for the mount directory dir.
func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{Dir: dir}
}

func (s *DirStorage) CardBegin() error                           { return errUnsupported }
func (s *DirStorage) FSBegin() error                             { return errUnsupported }
func (s *DirStorage) CardSize() uint64                           { return 0 }
func (s *DirStorage) FreeClusterCount() (uint64, error)          { return 0, errUnsupported }
func (s *DirStorage) BlocksPerCluster() uint64                   { return 0 }
func (s *DirStorage) Create(name string) (io.WriteCloser, error) { return nil, errUnsupported }
