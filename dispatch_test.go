package guda

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectLaunch(t *testing.T) {
	tests := []struct {
		ld    int
		block int
		shape Shape
	}{
		{1, 32, ShapeSinglePass},
		{16, 32, ShapeSinglePass},
		{32, 32, ShapeSinglePass},
		{33, 128, ShapeSinglePass},
		{64, 128, ShapeSinglePass},
		{128, 128, ShapeSinglePass},
		{129, 256, ShapeStrided},
		{256, 256, ShapeStrided},
		{383, 256, ShapeStrided},
		{384, 384, ShapeSinglePass},
		{385, 256, ShapeStrided},
		{768, 256, ShapeStrided},
		{1024, 256, ShapeStrided},
		{4096, 256, ShapeStrided},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("ld=%d", tt.ld), func(t *testing.T) {
			cfg := SelectLaunch(tt.ld)
			assert.Equal(t, tt.block, cfg.BlockSize)
			assert.Equal(t, tt.shape, cfg.Shape)
			if cfg.Shape == ShapeSinglePass {
				assert.GreaterOrEqual(t, cfg.BlockSize, tt.ld, "single pass needs a thread per element")
			}
			assert.LessOrEqual(t, cfg.BlockSize, MaxThreadsPerBlock)
		})
	}
}

func TestCheckSkipLayerNorm(t *testing.T) {
	tests := []struct {
		name  string
		dt    DataType
		ld, n int
		want  error
	}{
		{"ok float32", Float32, 4, 12, nil},
		{"ok float16", Float16, 384, 384 * 8, nil},
		{"single row", Float32, 7, 7, nil},
		{"partial row", Float32, 4, 10, ErrVolumeMismatch},
		{"fewer than ld", Float32, 8, 4, ErrVolumeMismatch},
		{"zero ld", Float32, 0, 12, ErrInvalidLD},
		{"zero n", Float16, 4, 0, ErrInvalidVolume},
		{"negative n", Float16, 4, -4, ErrInvalidVolume},
		{"bad type", DataType(3), 4, 12, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSkipLayerNorm(tt.dt, tt.ld, tt.n)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "single-pass", ShapeSinglePass.String())
	assert.Equal(t, "strided", ShapeStrided.String())
	assert.Equal(t, "Shape(9)", Shape(9).String())
}
