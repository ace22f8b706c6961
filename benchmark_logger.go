package guda

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// BenchmarkResult captures the result of a single benchmark run
type BenchmarkResult struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"` // "pass", "fail"
	Type        string        `json:"type,omitempty"`
	LD          int           `json:"ld,omitempty"`
	Rows        int           `json:"rows,omitempty"`
	BlockSize   int           `json:"block_size,omitempty"`
	Shape       string        `json:"shape,omitempty"`
	Iterations  int           `json:"iterations,omitempty"`
	NsPerOp     float64       `json:"ns_per_op,omitempty"`
	MBPerSec    float64       `json:"mb_per_sec,omitempty"`
	MaxAbsError float32       `json:"max_abs_error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	// Hardware counters per launch, present when collected.
	CyclesPerOp    float64 `json:"cycles_per_op,omitempty"`
	IPC            float64 `json:"ipc,omitempty"`
	LLCMissesPerOp float64 `json:"llc_misses_per_op,omitempty"`
	L1DMissesPerOp float64 `json:"l1d_misses_per_op,omitempty"`

	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BenchmarkSession is the on-disk form of one logging session.
type BenchmarkSession struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Started time.Time         `json:"started"`
	Device  string            `json:"device"`
	Results []BenchmarkResult `json:"results"`
}

// BenchmarkLogger appends benchmark results to a JSON session file,
// rewriting the file after every result so a crash loses nothing.
type BenchmarkLogger struct {
	mu      sync.Mutex
	path    string
	session BenchmarkSession
}

// NewBenchmarkLogger starts a session named name under dir.
func NewBenchmarkLogger(dir, name string) (*BenchmarkLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	now := time.Now()
	id := uuid.New().String()
	bl := &BenchmarkLogger{
		path: filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", name, now.Format("20060102_150405"), id[:8])),
		session: BenchmarkSession{
			ID:      id,
			Name:    name,
			Started: now,
			Device:  fmt.Sprintf("%s (%d cores) %s", defaultDevice.Name, defaultDevice.NumCores, defaultDevice.Features),
		},
	}
	if err := bl.flush(); err != nil {
		return nil, err
	}
	return bl, nil
}

// Path returns the session file path.
func (bl *BenchmarkLogger) Path() string {
	return bl.path
}

// Log records a single benchmark result
func (bl *BenchmarkLogger) Log(result BenchmarkResult) error {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	bl.session.Results = append(bl.session.Results, result)
	return bl.flush()
}

// Results returns a copy of the results logged so far.
func (bl *BenchmarkLogger) Results() []BenchmarkResult {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return append([]BenchmarkResult(nil), bl.session.Results...)
}

// flush writes the session to disk
func (bl *BenchmarkLogger) flush() error {
	data, err := json.MarshalIndent(bl.session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return os.WriteFile(bl.path, data, 0o644)
}

// LoadBenchmarkSession reads a session file written by BenchmarkLogger.
func LoadBenchmarkSession(path string) (BenchmarkSession, error) {
	var s BenchmarkSession
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, nil
}

// WriteSummary prints a summary of the session to w
func (s BenchmarkSession) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "\nBenchmark session %s (%s)\n", s.Name, s.ID)
	fmt.Fprintln(w, strings.Repeat("=", 62))

	passed, failed := 0, 0
	for _, r := range s.Results {
		switch r.Status {
		case "pass":
			passed++
			fmt.Fprintf(w, "✓ %-40s %10.2f ns/op", r.Name, r.NsPerOp)
			if r.MBPerSec > 0 {
				fmt.Fprintf(w, " %10.2f MB/s", r.MBPerSec)
			}
			if r.CyclesPerOp > 0 {
				fmt.Fprintf(w, " %10.0f cycles/op IPC %.2f", r.CyclesPerOp, r.IPC)
			}
			fmt.Fprintln(w)
		case "fail":
			failed++
			fmt.Fprintf(w, "✗ %-40s FAILED: %s\n", r.Name, r.Error)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 62))
	fmt.Fprintf(w, "Total: %d | Passed: %d | Failed: %d\n", len(s.Results), passed, failed)
}
