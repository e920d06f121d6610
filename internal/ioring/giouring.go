//go:build giouring

package ioring

import (
	"fmt"

	giouring "github.com/pawelgaczynski/giouring"

	"github.com/cowfs/cowjournal/internal/logging"
)

// realRing wraps github.com/pawelgaczynski/giouring for lower per-call
// overhead than the raw-syscall minimalRing, particularly at high device
// counts where batching more SQEs per io_uring_enter matters most.
type realRing struct {
	ring *giouring.Ring
}

// NewRing creates a Ring backed by giouring. Built only with -tags
// giouring; otherwise new_minimal.go's NewRing (raw syscalls) is used.
func NewRing(config Config) (Ring, error) {
	logger := logging.Default()

	entries := config.Entries
	if entries == 0 {
		entries = 8
	}

	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("giouring.CreateRing: %w", err)
	}

	logger.Debugf("giouring ring created: entries=%d", entries)
	return &realRing{ring: ring}, nil
}

func (r *realRing) Close() error {
	r.ring.QueueExit()
	return nil
}

func (r *realRing) PrepareWrite(fd int32, data []byte, offset int64, userData uint64) error {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	sqe.PrepareWrite(fd, uintptr(0), uint32(len(data)), uint64(offset))
	if len(data) > 0 {
		sqe.SetData64(userData)
	}
	return nil
}

func (r *realRing) FlushSubmissions() (uint32, error) {
	submitted, err := r.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("giouring submit: %w", err)
	}
	return uint32(submitted), nil
}

func (r *realRing) WaitForCompletion(minComplete int) ([]Result, error) {
	if minComplete <= 0 {
		minComplete = 1
	}

	cqes := make([]*giouring.CompletionQueueEvent, minComplete)
	n, err := r.ring.WaitCQEs(uint32(minComplete))
	if err != nil {
		return nil, fmt.Errorf("giouring wait: %w", err)
	}
	_ = n

	var out []Result
	for {
		cqe, err := r.ring.PeekCQE()
		if err != nil || cqe == nil {
			break
		}
		res := &realResult{userData: cqe.UserData, value: cqe.Res}
		if cqe.Res < 0 {
			res.err = fmt.Errorf("giouring completion error: res=%d", cqe.Res)
		}
		out = append(out, res)
		r.ring.CQESeen(cqe)
	}
	_ = cqes
	return out, nil
}

type realResult struct {
	userData uint64
	value    int32
	err      error
}

func (r *realResult) UserData() uint64 { return r.userData }
func (r *realResult) Value() int32     { return r.value }
func (r *realResult) Error() error     { return r.err }
