package plugin

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/exp/mmap"

	guda "github.com/LynnColeArt/guda-skipln"
)

// Serialized layout, little endian:
//
//	int32    type tag
//	int32    ld
//	int64    input volume
//	float32  beta[ld]
//	float32  gamma[ld]
const headerSize = 4 + 4 + 8

// SerializationSize returns the number of bytes MarshalBinary produces.
func (p *SkipLayerNorm) SerializationSize() int {
	return headerSize + 2*4*p.LD
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *SkipLayerNorm) MarshalBinary() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, p.SerializationSize())
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(p.Type))
	le.PutUint32(buf[4:], uint32(p.LD))
	le.PutUint64(buf[8:], uint64(p.inputVolume))
	off := headerSize
	for _, v := range p.Beta {
		le.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range p.Gamma {
		le.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The plugin is left
// uninitialized.
func (p *SkipLayerNorm) UnmarshalBinary(data []byte) error {
	const op = "UnmarshalBinary"
	if len(data) < headerSize {
		return guda.NewInvalidArgError(op, fmt.Sprintf("truncated header: %d bytes", len(data)))
	}
	le := binary.LittleEndian
	dt := guda.DataType(int32(le.Uint32(data[0:])))
	ld := int(int32(le.Uint32(data[4:])))
	volume := int64(le.Uint64(data[8:]))
	if ld <= 0 {
		return guda.NewPreconditionError(op, guda.ErrInvalidLD, fmt.Sprintf("ld=%d", ld))
	}
	if want := headerSize + 2*4*ld; len(data) != want {
		return guda.NewInvalidArgError(op, fmt.Sprintf("payload is %d bytes, want %d for ld=%d", len(data), want, ld))
	}
	if volume < 0 || volume%int64(ld) != 0 {
		return guda.NewPreconditionError(op, guda.ErrVolumeMismatch, fmt.Sprintf("volume=%d ld=%d", volume, ld))
	}

	readVec := func(off int) []float32 {
		v := make([]float32, ld)
		for i := range v {
			v[i] = math.Float32frombits(le.Uint32(data[off+4*i:]))
		}
		return v
	}
	q := SkipLayerNorm{
		Type:        dt,
		LD:          ld,
		Beta:        readVec(headerSize),
		Gamma:       readVec(headerSize + 4*ld),
		inputVolume: int(volume),
	}
	if err := q.validate(); err != nil {
		return err
	}
	if p.ctx != nil {
		if err := p.Terminate(); err != nil {
			return err
		}
	}
	*p = q
	return nil
}

// Deserialize builds a plugin from MarshalBinary output.
func Deserialize(data []byte) (*SkipLayerNorm, error) {
	p := new(SkipLayerNorm)
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteFile serializes the plugin to path.
func (p *SkipLayerNorm) WriteFile(path string) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load maps a serialized plugin file and deserializes it.
func Load(path string) (*SkipLayerNorm, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Deserialize(data)
}
