package ioring

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cowfs/cowjournal/internal/logging"
)

// Minimal raw io_uring plumbing for IORING_OP_WRITEV, sized for the
// DeviceRing's parallel-write fan-out: one SQE per device per flush.
// Based on kernel include/uapi/linux/io_uring.h; only the fields WRITEV
// needs are populated.

const (
	ioringOpWritev        = 26
	ioringEnterGetEvents  = 1 << 0
	ioringSetupDefaultCQs = 2 // cqEntries = sqEntries * this
)

// sqe is the standard 64-byte submission queue entry.
type sqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	length      uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	addr3       uint64
	_           uint64
}

// cqe is the standard 16-byte completion queue entry.
type cqe struct {
	userData uint64
	res      int32
	flags    uint32
}

type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCpu  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ringOffsets
	cqOff        ringOffsets
}

type ringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// iovec mirrors unix.Iovec with explicit field order for pointer math.
type iovec struct {
	base *byte
	len  uint64
}

type minimalRing struct {
	mu       sync.Mutex
	fd       int
	params   ioUringParams
	sqAddr   unsafe.Pointer
	cqAddr   unsafe.Pointer
	pending  uint32 // SQEs prepared but not yet flushed
	iovecs   []iovec
	keepData [][]byte // keep referenced buffers alive until completion
}

func newMinimalRing(entries uint32) (Ring, error) {
	logger := logging.Default()
	if entries == 0 {
		entries = 8
	}

	params := ioUringParams{
		sqEntries: entries,
		cqEntries: entries * ioringSetupDefaultCQs,
	}

	ringFd, _, errno := syscall.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup failed: %v", errno)
	}

	sqSize := params.sqOff.array + params.sqEntries*4
	cqSize := params.cqOff.cqes() + params.cqEntries*uint32(unsafe.Sizeof(cqe{}))

	sqAddr, err := unix.Mmap(int(ringFd), 0, int(sqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("mmap SQ failed: %v", err)
	}

	cqAddr, err := unix.Mmap(int(ringFd), 0x8000000, int(cqSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Munmap(sqAddr)
		syscall.Close(int(ringFd))
		return nil, fmt.Errorf("mmap CQ failed: %v", err)
	}

	logger.Debugf("io_uring ready: sq=%d cq=%d", params.sqEntries, params.cqEntries)

	return &minimalRing{
		fd:     int(ringFd),
		params: params,
		sqAddr: unsafe.Pointer(&sqAddr[0]),
		cqAddr: unsafe.Pointer(&cqAddr[0]),
	}, nil
}

// cqes returns the byte offset of the CQE array within the mmap'd region;
// kernels place it at cqOff.cqes, which this minimal struct doesn't carry
// directly to keep ringOffsets identical on both queues.
func (o ringOffsets) cqes() uint32 { return o.array }

func (r *minimalRing) Close() error {
	return syscall.Close(r.fd)
}

func (r *minimalRing) PrepareWrite(fd int32, data []byte, offset int64, userData uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqHead := (*uint32)(unsafe.Add(r.sqAddr, r.params.sqOff.head))
	sqTail := (*uint32)(unsafe.Add(r.sqAddr, r.params.sqOff.tail))
	if (*sqTail - *sqHead) >= r.params.sqEntries {
		return ErrRingFull
	}

	iov := iovec{len: uint64(len(data))}
	if len(data) > 0 {
		iov.base = &data[0]
	}
	r.iovecs = append(r.iovecs, iov)
	r.keepData = append(r.keepData, data)
	iovPtr := &r.iovecs[len(r.iovecs)-1]

	mask := r.params.sqOff.ringMask
	idx := *sqTail & mask
	slot := (*sqe)(unsafe.Add(r.sqAddr, uintptr(unsafe.Sizeof(sqe{}))*uintptr(idx)))
	*slot = sqe{
		opcode:   ioringOpWritev,
		fd:       fd,
		off:      uint64(offset),
		addr:     uint64(uintptr(unsafe.Pointer(iovPtr))),
		length:   1,
		userData: userData,
	}

	sqArray := unsafe.Add(r.sqAddr, uintptr(r.params.sqOff.array))
	*(*uint32)(unsafe.Add(sqArray, uintptr(4*idx))) = idx

	*sqTail++
	r.pending++
	return nil
}

func (r *minimalRing) FlushSubmissions() (uint32, error) {
	r.mu.Lock()
	toSubmit := r.pending
	r.pending = 0
	r.mu.Unlock()

	if toSubmit == 0 {
		return 0, nil
	}

	submitted, _, errno := syscall.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), uintptr(toSubmit), 0, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("io_uring_enter failed: %v", errno)
	}
	return uint32(submitted), nil
}

func (r *minimalRing) WaitForCompletion(minComplete int) ([]Result, error) {
	if minComplete <= 0 {
		minComplete = 1
	}

	_, _, errno := syscall.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 0, uintptr(minComplete), uintptr(ioringEnterGetEvents), 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_enter (wait) failed: %v", errno)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cqHead := (*uint32)(unsafe.Add(r.cqAddr, r.params.cqOff.head))
	cqTail := (*uint32)(unsafe.Add(r.cqAddr, r.params.cqOff.tail))
	cqMask := r.params.cqOff.ringMask

	var out []Result
	for *cqHead != *cqTail {
		idx := *cqHead & cqMask
		slot := (*cqe)(unsafe.Add(r.cqAddr, uintptr(unsafe.Sizeof(cqe{}))*uintptr(idx)))
		res := &minimalResult{userData: slot.userData, value: slot.res}
		if slot.res < 0 {
			res.err = syscall.Errno(-slot.res)
		}
		out = append(out, res)
		*cqHead++
	}

	// Release buffers referenced by completed writes.
	r.iovecs = r.iovecs[:0]
	r.keepData = r.keepData[:0]

	return out, nil
}

type minimalResult struct {
	userData uint64
	value    int32
	err      error
}

func (r *minimalResult) UserData() uint64 { return r.userData }
func (r *minimalResult) Value() int32     { return r.value }
func (r *minimalResult) Error() error     { return r.err }
