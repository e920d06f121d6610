//go:build !giouring

package ioring

import (
	"github.com/cowfs/cowjournal/internal/logging"
)

// NewRing creates the default (pure syscall) Ring implementation. Built
// with -tags giouring, a Ring backed by
// github.com/pawelgaczynski/giouring is used instead and offers lower
// per-call overhead at high device counts.
func NewRing(config Config) (Ring, error) {
	logger := logging.Default()
	logger.Debugf("creating io_uring for device writes: entries=%d", config.Entries)

	ring, err := newMinimalRing(config.Entries)
	if err != nil {
		logger.Errorf("failed to create io_uring: %v", err)
		return nil, err
	}
	return ring, nil
}
