//go:build linux

package guda

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

type counterEvent struct {
	name   string
	typ    uint32
	config uint64
	field  func(*PerfCounters) *uint64
}

func cacheMissConfig(cache uint64) uint64 {
	return cache | unix.PERF_COUNT_HW_CACHE_OP_READ<<8 | unix.PERF_COUNT_HW_CACHE_RESULT_MISS<<16
}

var counterEvents = []counterEvent{
	{"cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES,
		func(pc *PerfCounters) *uint64 { return &pc.Cycles }},
	{"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS,
		func(pc *PerfCounters) *uint64 { return &pc.Instructions }},
	{"branch-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES,
		func(pc *PerfCounters) *uint64 { return &pc.BranchMisses }},
	{"cache-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES,
		func(pc *PerfCounters) *uint64 { return &pc.CacheMisses }},
	{"L1-dcache-misses", unix.PERF_TYPE_HW_CACHE, cacheMissConfig(unix.PERF_COUNT_HW_CACHE_L1D),
		func(pc *PerfCounters) *uint64 { return &pc.L1DCacheMisses }},
	{"LLC-misses", unix.PERF_TYPE_HW_CACHE, cacheMissConfig(unix.PERF_COUNT_HW_CACHE_LL),
		func(pc *PerfCounters) *uint64 { return &pc.LLCMisses }},
}

// counterSet holds one perf event descriptor per (event, thread).
type counterSet struct {
	fds [][]int // indexed like counterEvents
}

// openCounters opens every event on every current thread of the process,
// disabled. Kernel and hypervisor time are excluded so unprivileged users
// can count.
func openCounters() (*counterSet, error) {
	tasks, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(tasks))
	for _, t := range tasks {
		if tid, err := strconv.Atoi(t.Name()); err == nil {
			tids = append(tids, tid)
		}
	}

	cs := &counterSet{fds: make([][]int, len(counterEvents))}
	for i, ev := range counterEvents {
		for _, tid := range tids {
			attr := unix.PerfEventAttr{
				Type:   ev.typ,
				Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
				Config: ev.config,
				Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
			}
			fd, err := unix.PerfEventOpen(&attr, tid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
			if err == unix.ESRCH {
				continue // thread exited
			}
			if err != nil {
				cs.close()
				return nil, fmt.Errorf("perf_event_open %s: %w", ev.name, err)
			}
			cs.fds[i] = append(cs.fds[i], fd)
		}
	}
	return cs, nil
}

func (cs *counterSet) enable() error {
	for _, fds := range cs.fds {
		for _, fd := range fds {
			if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
				return err
			}
			if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// read disables the counters and sums each event over threads.
func (cs *counterSet) read() (PerfCounters, error) {
	var pc PerfCounters
	var buf [8]byte
	for i, fds := range cs.fds {
		total := counterEvents[i].field(&pc)
		for _, fd := range fds {
			_ = unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
			n, err := unix.Read(fd, buf[:])
			if err != nil {
				return pc, fmt.Errorf("read %s: %w", counterEvents[i].name, err)
			}
			if n == len(buf) {
				*total += binary.NativeEndian.Uint64(buf[:])
			}
		}
	}
	return pc, nil
}

func (cs *counterSet) close() {
	for i, fds := range cs.fds {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		cs.fds[i] = nil
	}
}
