package guda

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchmarkLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	bl, err := NewBenchmarkLogger(dir, "skipln")
	require.NoError(t, err)

	_, err = os.Stat(bl.Path())
	require.NoError(t, err, "session file is written on creation")

	require.NoError(t, bl.Log(BenchmarkResult{
		Name:      "float32/ld=384",
		Status:    "pass",
		Type:      "float32",
		LD:        384,
		Rows:      128,
		BlockSize: 384,
		Shape:     ShapeSinglePass.String(),
		NsPerOp:   1234.5,
		MBPerSec:  800,
		Duration:  time.Millisecond,
	}))
	require.NoError(t, bl.Log(BenchmarkResult{
		Name:   "float16/ld=10",
		Status: "fail",
		Error:  "n=25 ld=10",
	}))
	require.Len(t, bl.Results(), 2)

	s, err := LoadBenchmarkSession(bl.Path())
	require.NoError(t, err)
	assert.Equal(t, "skipln", s.Name)
	assert.NotEmpty(t, s.ID)
	require.Len(t, s.Results, 2)
	assert.Equal(t, 384, s.Results[0].LD)
	assert.Equal(t, time.Millisecond, s.Results[0].Duration)
	assert.False(t, s.Results[1].Timestamp.IsZero(), "timestamp filled in")

	var buf bytes.Buffer
	s.WriteSummary(&buf)
	assert.Contains(t, buf.String(), "float32/ld=384")
	assert.Contains(t, buf.String(), "FAILED: n=25 ld=10")
	assert.Contains(t, buf.String(), "Total: 2 | Passed: 1 | Failed: 1")
}

func TestLoadBenchmarkSessionErrors(t *testing.T) {
	_, err := LoadBenchmarkSession(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadBenchmarkSession(bad)
	assert.Error(t, err)
}
