package plugin

import (
	"fmt"
	"sync"

	guda "github.com/LynnColeArt/guda-skipln"
)

// FieldType is the element type of a creation field.
type FieldType int

const (
	FieldInt32 FieldType = iota
	FieldFloat32
)

// Field is a named creation parameter. Data holds []int32 or []float32.
type Field struct {
	Name string
	Type FieldType
	Data any
}

// FieldSpec advertises a field a Creator understands.
type FieldSpec struct {
	Name string
	Type FieldType
}

// Creator builds SkipLayerNorm plugins from creation fields or from
// serialized bytes.
type Creator struct {
	Namespace string
}

// Name returns the operator name.
func (c *Creator) Name() string { return Name }

// Version returns the operator version.
func (c *Creator) Version() string { return Version }

// FieldNames lists the creation fields.
func (c *Creator) FieldNames() []FieldSpec {
	return []FieldSpec{
		{Name: "ld", Type: FieldInt32},
		{Name: "type_id", Type: FieldInt32},
		{Name: "beta", Type: FieldFloat32},
		{Name: "gamma", Type: FieldFloat32},
	}
}

// CreatePlugin builds a plugin from fields. ld defaults to the length of
// beta when absent.
func (c *Creator) CreatePlugin(fields []Field) (*SkipLayerNorm, error) {
	const op = "CreatePlugin"
	var (
		ld          = -1
		typeID      = -1
		gamma, beta []float32
	)
	for _, f := range fields {
		switch f.Name {
		case "ld", "type_id":
			v, ok := f.Data.([]int32)
			if !ok || len(v) != 1 {
				return nil, guda.NewInvalidArgError(op, fmt.Sprintf("field %q must be a single int32", f.Name))
			}
			if f.Name == "ld" {
				ld = int(v[0])
			} else {
				typeID = int(v[0])
			}
		case "beta", "gamma":
			v, ok := f.Data.([]float32)
			if !ok {
				return nil, guda.NewInvalidArgError(op, fmt.Sprintf("field %q must be float32 values", f.Name))
			}
			if f.Name == "beta" {
				beta = v
			} else {
				gamma = v
			}
		default:
			return nil, guda.NewInvalidArgError(op, fmt.Sprintf("unknown field %q", f.Name))
		}
	}
	if typeID < 0 {
		return nil, guda.NewPreconditionError(op, guda.ErrUnsupportedType, "missing type_id")
	}
	if beta == nil || gamma == nil {
		return nil, guda.NewInvalidArgError(op, "beta and gamma are required")
	}
	if ld < 0 {
		ld = len(beta)
	}
	return New(guda.DataType(typeID), ld, gamma, beta)
}

// DeserializePlugin rebuilds a plugin from MarshalBinary output.
func (c *Creator) DeserializePlugin(data []byte) (*SkipLayerNorm, error) {
	return Deserialize(data)
}

type registryKey struct {
	namespace, name, version string
}

// Registry maps operator name and version to creators. It is an ordinary
// value; callers decide its lifetime. The zero value is ready to use.
type Registry struct {
	mu       sync.RWMutex
	creators map[registryKey]*Creator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[registryKey]*Creator)}
}

// Register adds c. Registering the same name and version twice in one
// namespace fails.
func (r *Registry) Register(c *Creator) error {
	k := registryKey{c.Namespace, c.Name(), c.Version()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creators == nil {
		r.creators = make(map[registryKey]*Creator)
	}
	if _, ok := r.creators[k]; ok {
		return guda.NewInvalidArgError("Register", fmt.Sprintf("%s/%s version %s already registered", k.namespace, k.name, k.version))
	}
	r.creators[k] = c
	return nil
}

// Lookup returns the creator registered for name and version.
func (r *Registry) Lookup(namespace, name, version string) (*Creator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creators[registryKey{namespace, name, version}]
	return c, ok
}
