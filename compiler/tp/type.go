package tp

import (
	"tlog.app/go/errors"
)

type (
	TypeInfo struct {
		Name  string
		Size  uint32
		Align uint32

		Fields []FieldInfo // nil for primitives
	}

	FieldInfo struct {
		Name string
		Type *TypeInfo
	}

	// Registry maps type names to record types.
	// Primitives are never stored, they are resolved by name.
	Registry struct {
		types map[string]*TypeInfo
		order []string
	}
)

var ErrUnknownType = errors.New("unknown type")

var (
	S8     = &TypeInfo{Name: "s8", Size: 1, Align: 1}
	U8     = &TypeInfo{Name: "u8", Size: 1, Align: 1}
	S16    = &TypeInfo{Name: "s16", Size: 2, Align: 2}
	U16    = &TypeInfo{Name: "u16", Size: 2, Align: 2}
	S32    = &TypeInfo{Name: "s32", Size: 4, Align: 4}
	U32    = &TypeInfo{Name: "u32", Size: 4, Align: 4}
	S64    = &TypeInfo{Name: "s64", Size: 8, Align: 8}
	U64    = &TypeInfo{Name: "u64", Size: 8, Align: 8}
	Float  = &TypeInfo{Name: "float", Size: 4, Align: 4}
	Double = &TypeInfo{Name: "double", Size: 8, Align: 8}
	Char   = &TypeInfo{Name: "char", Size: 2, Align: 2}
	String = &TypeInfo{Name: "string", Size: 4, Align: 4}
	Void   = &TypeInfo{Name: "void", Size: 0, Align: 0}
)

var primitives = map[string]*TypeInfo{
	S8.Name:     S8,
	U8.Name:     U8,
	S16.Name:    S16,
	U16.Name:    U16,
	S32.Name:    S32,
	U32.Name:    U32,
	S64.Name:    S64,
	U64.Name:    U64,
	Float.Name:  Float,
	Double.Name: Double,
	Char.Name:   Char,
	String.Name: String,
	Void.Name:   Void,
}

func New() *Registry {
	r := &Registry{}
	r.Init()

	return r
}

// Init drops every registered record type.
func (r *Registry) Init() {
	r.types = make(map[string]*TypeInfo)
	r.order = r.order[:0]
}

// RegisterType adds t unless the name is taken.
// Primitive names are always taken.
func (r *Registry) RegisterType(t *TypeInfo) bool {
	if IsPrimitive(t.Name) {
		return false
	}

	if _, ok := r.types[t.Name]; ok {
		return false
	}

	r.types[t.Name] = t
	r.order = append(r.order, t.Name)

	return true
}

func (r *Registry) GetType(name string) (*TypeInfo, error) {
	if IsPrimitive(name) {
		return primitives[name], nil
	}

	t, ok := r.types[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownType, "%q", name)
	}

	return t, nil
}

// Types returns record types in registration order.
func (r *Registry) Types() []*TypeInfo {
	l := make([]*TypeInfo, len(r.order))

	for i, n := range r.order {
		l[i] = r.types[n]
	}

	return l
}

func (r *Registry) IsPrimitive(name string) bool {
	return IsPrimitive(name)
}

func IsPrimitive(name string) bool {
	_, ok := primitives[name]
	return ok
}

// NewRecord lays fields out back to back.
// No padding is inserted between fields, alignment is only recorded.
func NewRecord(name string, fields []FieldInfo) *TypeInfo {
	t := &TypeInfo{
		Name:   name,
		Align:  1,
		Fields: fields,
	}

	if t.Fields == nil {
		t.Fields = []FieldInfo{}
	}

	for _, f := range fields {
		t.Size += f.Type.Size

		if f.Type.Align > t.Align {
			t.Align = f.Type.Align
		}
	}

	return t
}

func (t *TypeInfo) IsRecord() bool {
	return t.Fields != nil
}

func (t *TypeInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return FieldInfo{}, false
}

func (t *TypeInfo) String() string {
	if t == nil {
		return "<nil>"
	}

	return t.Name
}
