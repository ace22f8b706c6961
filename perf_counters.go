package guda

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// errCountersUnsupported is returned by openCounters on platforms without
// perf_event_open.
var errCountersUnsupported = errors.New("hardware counters not supported on this platform")

// PerfCounters holds performance counter measurements for one region.
type PerfCounters struct {
	Duration time.Duration

	// Hardware reports whether the counters below were collected. Without
	// it only Duration is meaningful.
	Hardware bool

	Cycles         uint64
	Instructions   uint64
	BranchMisses   uint64
	CacheMisses    uint64
	L1DCacheMisses uint64
	LLCMisses      uint64

	IPC float64 // Instructions per cycle
}

func (pc *PerfCounters) derive() {
	if pc.Cycles > 0 {
		pc.IPC = float64(pc.Instructions) / float64(pc.Cycles)
	}
}

// PerOp divides every count by ops.
func (pc PerfCounters) PerOp(ops int) map[string]float64 {
	if ops <= 0 || !pc.Hardware {
		return nil
	}
	n := float64(ops)
	return map[string]float64{
		"cycles/op":        float64(pc.Cycles) / n,
		"instructions/op":  float64(pc.Instructions) / n,
		"branch-misses/op": float64(pc.BranchMisses) / n,
		"L1D-misses/op":    float64(pc.L1DCacheMisses) / n,
		"LLC-misses/op":    float64(pc.LLCMisses) / n,
	}
}

// String formats performance counters for display
func (pc PerfCounters) String() string {
	var sb strings.Builder

	sb.WriteString("Performance Counters:\n")
	fmt.Fprintf(&sb, "  Duration:          %v\n", pc.Duration)
	if !pc.Hardware {
		sb.WriteString("  (hardware counters unavailable)\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "  CPU Cycles:        %d\n", pc.Cycles)
	fmt.Fprintf(&sb, "  Instructions:      %d\n", pc.Instructions)
	fmt.Fprintf(&sb, "  IPC:               %.2f\n", pc.IPC)
	fmt.Fprintf(&sb, "  Branch Misses:     %d\n", pc.BranchMisses)
	fmt.Fprintf(&sb, "  L1D Cache Misses:  %d\n", pc.L1DCacheMisses)
	fmt.Fprintf(&sb, "  LLC Misses:        %d\n", pc.LLCMisses)
	return sb.String()
}

// MeasureCounters runs fn with hardware counters attached to every thread
// of the process. When counters cannot be opened (unsupported platform,
// perf_event_paranoid, containers) fn still runs and only Duration is set.
//
// Threads the runtime starts while fn runs are not counted.
func MeasureCounters(fn func() error) (PerfCounters, error) {
	cs, err := openCounters()
	if err != nil {
		slog.Debug("hardware counters unavailable", "error", err)
		start := time.Now()
		ferr := fn()
		return PerfCounters{Duration: time.Since(start)}, ferr
	}
	defer cs.close()

	if err := cs.enable(); err != nil {
		return PerfCounters{}, err
	}
	start := time.Now()
	ferr := fn()
	duration := time.Since(start)

	pc, err := cs.read()
	if err != nil {
		return PerfCounters{}, err
	}
	pc.Duration = duration
	pc.Hardware = true
	pc.derive()
	return pc, ferr
}
