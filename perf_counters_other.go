//go:build !linux

package guda

type counterSet struct{}

func openCounters() (*counterSet, error) { return nil, errCountersUnsupported }

func (cs *counterSet) enable() error               { return nil }
func (cs *counterSet) read() (PerfCounters, error) { return PerfCounters{}, nil }
func (cs *counterSet) close()                      {}
