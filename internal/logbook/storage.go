package logbook

import "io"

// Storage is the removable card holding the log files.
type Storage interface {
	// CardBegin initialises the card. CardSize is valid after it succeeds.
	CardBegin() error
	// FSBegin mounts the filesystem on the card.
	FSBegin() error
	// CardSize returns the card size in 512-byte blocks.
	CardSize() uint64
	// FreeClusterCount returns the free clusters on the volume.
	FreeClusterCount() (uint64, error)
	// BlocksPerCluster returns the 512-byte blocks in a cluster.
	BlocksPerCluster() uint64
	// Create opens a log file for appending.
	Create(name string) (io.WriteCloser, error)
}

// FreeKb returns the free space of s in KB.
func FreeKb(s Storage) (uint64, error) {
	clusters, err := s.FreeClusterCount()
	if err != nil {
		return 0, err
	}
	return uint64(0.512 * float64(clusters) * float64(s.BlocksPerCluster())), nil
}
