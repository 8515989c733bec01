//go:build linux

package logbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const blockSize = 512

// DirStorage is a card mounted at Dir. Block and cluster figures come from
// statfs; a filesystem block is treated as a cluster.
type DirStorage struct {
	Dir string

	st unix.Statfs_t
}

// NewDirStorage returns storage for the mount directory dir.
func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{Dir: dir}
}

// CardBegin checks that the mount point is present and reads its geometry,
// so CardSize is valid once it returns.
func (s *DirStorage) CardBegin() error {
	fi, err := os.Stat(s.Dir)
	if err != nil {
		return fmt.Errorf("card: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("card: %s is not a directory", s.Dir)
	}
	if err := unix.Statfs(s.Dir, &s.st); err != nil {
		return fmt.Errorf("card: statfs %s: %w", s.Dir, err)
	}
	return nil
}

// FSBegin reads the filesystem geometry.
func (s *DirStorage) FSBegin() error {
	if err := unix.Statfs(s.Dir, &s.st); err != nil {
		return fmt.Errorf("statfs %s: %w", s.Dir, err)
	}
	return nil
}

// CardSize returns the volume size in 512-byte blocks.
func (s *DirStorage) CardSize() uint64 {
	return uint64(s.st.Blocks) * s.BlocksPerCluster()
}

// FreeClusterCount re-reads statfs and returns the blocks available to us.
func (s *DirStorage) FreeClusterCount() (uint64, error) {
	if err := s.FSBegin(); err != nil {
		return 0, err
	}
	return uint64(s.st.Bavail), nil
}

// BlocksPerCluster returns the 512-byte blocks per filesystem block.
func (s *DirStorage) BlocksPerCluster() uint64 {
	return uint64(s.st.Bsize) / blockSize
}

// Create opens name under Dir for appending.
func (s *DirStorage) Create(name string) (io.WriteCloser, error) {
	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}
