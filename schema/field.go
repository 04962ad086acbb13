package schema

import "fmt"

// FieldType is the indexing type of a field.
type FieldType string

// Supported field types.
const (
	TagFieldType     FieldType = "tag"
	TextFieldType    FieldType = "text"
	NumericFieldType FieldType = "numeric"
	GeoFieldType     FieldType = "geo"
	VectorFieldType  FieldType = "vector"
)

// DistanceMetric scores vector similarity; lower is closer for all three.
type DistanceMetric string

// Supported distance metrics.
const (
	Cosine DistanceMetric = "cosine"
	L2     DistanceMetric = "l2"
	IP     DistanceMetric = "ip"
)

// IsValid checks if the metric is supported.
func (m DistanceMetric) IsValid() bool {
	return m == Cosine || m == L2 || m == IP
}

// Algorithm selects the vector index structure.
type Algorithm string

// Supported vector algorithms.
const (
	// Flat is the brute-force exact index.
	Flat Algorithm = "flat"
	// HNSW is the graph-based approximate index.
	HNSW Algorithm = "hnsw"
)

// IsValid checks if the algorithm is supported.
func (a Algorithm) IsValid() bool {
	return a == Flat || a == HNSW
}

// DataType is the element type of stored vectors.
type DataType string

// Supported vector element types.
const (
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

// IsValid checks if the data type is supported.
func (d DataType) IsValid() bool {
	return d == Float32 || d == Float64
}

// TagAttrs holds tag-field attributes.
type TagAttrs struct {
	Separator     string
	CaseSensitive bool
}

// TextAttrs holds text-field attributes.
type TextAttrs struct {
	Weight float64
	NoStem bool
}

// VectorAttrs holds vector-field attributes. Dims, Algorithm, Distance and
// DataType are always set; tunables not applicable to the chosen algorithm
// are carried but ignored downstream.
type VectorAttrs struct {
	Dims           int
	Algorithm      Algorithm
	Distance       DistanceMetric
	DataType       DataType
	M              int
	EFConstruction int
	EFRuntime      int
	BlockSize      int
	InitialCap     int
}

// Field is an immutable value object describing one indexed field.
// The logical name is the addressable query name unless an alias is set.
type Field struct {
	name     string
	alias    string
	path     string
	typ      FieldType
	sortable bool

	tag    TagAttrs
	text   TextAttrs
	vector VectorAttrs
}

// FieldOption customizes a field at construction time. Options that do not
// apply to the field's type are ignored, mirroring how the engine ignores
// irrelevant tunables.
type FieldOption func(*Field)

// WithAlias sets the addressable query name for the field.
func WithAlias(alias string) FieldOption {
	return func(f *Field) { f.alias = alias }
}

// WithPath sets an explicit JSON path for nested storage. Ignored for
// flat (hash) storage.
func WithPath(path string) FieldOption {
	return func(f *Field) { f.path = path }
}

// Sortable marks the field sortable in the index.
func Sortable() FieldOption {
	return func(f *Field) { f.sortable = true }
}

// WithSeparator sets the tag value separator (default ",").
func WithSeparator(sep string) FieldOption {
	return func(f *Field) { f.tag.Separator = sep }
}

// CaseSensitive makes tag matching case sensitive.
func CaseSensitive() FieldOption {
	return func(f *Field) { f.tag.CaseSensitive = true }
}

// WithWeight sets the text scoring weight.
func WithWeight(w float64) FieldOption {
	return func(f *Field) { f.text.Weight = w }
}

// NoStem disables stemming for a text field.
func NoStem() FieldOption {
	return func(f *Field) { f.text.NoStem = true }
}

// WithAlgorithm selects the vector index algorithm (default flat).
func WithAlgorithm(a Algorithm) FieldOption {
	return func(f *Field) { f.vector.Algorithm = a }
}

// WithDistanceMetric sets the vector distance metric (default cosine).
func WithDistanceMetric(m DistanceMetric) FieldOption {
	return func(f *Field) { f.vector.Distance = m }
}

// WithDataType sets the vector element type (default float32).
func WithDataType(d DataType) FieldOption {
	return func(f *Field) { f.vector.DataType = d }
}

// WithM sets the HNSW M tunable.
func WithM(m int) FieldOption {
	return func(f *Field) { f.vector.M = m }
}

// WithEFConstruction sets the HNSW build-time candidate list size.
func WithEFConstruction(ef int) FieldOption {
	return func(f *Field) { f.vector.EFConstruction = ef }
}

// WithEFRuntime sets the HNSW query-time candidate list size.
func WithEFRuntime(ef int) FieldOption {
	return func(f *Field) { f.vector.EFRuntime = ef }
}

// WithBlockSize sets the flat-index block size.
func WithBlockSize(n int) FieldOption {
	return func(f *Field) { f.vector.BlockSize = n }
}

// WithInitialCap sets the initial vector capacity hint.
func WithInitialCap(n int) FieldOption {
	return func(f *Field) { f.vector.InitialCap = n }
}

// NewTagField creates a tag (exact match) field.
func NewTagField(name string, opts ...FieldOption) Field {
	return newField(name, TagFieldType, opts)
}

// NewTextField creates a full-text field.
func NewTextField(name string, opts ...FieldOption) Field {
	return newField(name, TextFieldType, opts)
}

// NewNumericField creates a numeric field.
func NewNumericField(name string, opts ...FieldOption) Field {
	return newField(name, NumericFieldType, opts)
}

// NewGeoField creates a geo field.
func NewGeoField(name string, opts ...FieldOption) Field {
	return newField(name, GeoFieldType, opts)
}

// NewVectorField validates and creates a vector field.
// Dims must be positive; algorithm, metric and data type must be members of
// their enums when overridden.
func NewVectorField(name string, dims int, opts ...FieldOption) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("schema: vector field name is required: %w", ErrInvalidSchema)
	}
	if dims <= 0 {
		return Field{}, fmt.Errorf("schema: vector field %q requires positive dims: %w", name, ErrInvalidSchema)
	}

	f := newField(name, VectorFieldType, opts)
	f.vector.Dims = dims
	if f.vector.Algorithm == "" {
		f.vector.Algorithm = Flat
	}
	if f.vector.Distance == "" {
		f.vector.Distance = Cosine
	}
	if f.vector.DataType == "" {
		f.vector.DataType = Float32
	}

	if !f.vector.Algorithm.IsValid() {
		return Field{}, fmt.Errorf("schema: field %q: unknown algorithm %q: %w",
			name, f.vector.Algorithm, ErrInvalidSchema)
	}
	if !f.vector.Distance.IsValid() {
		return Field{}, fmt.Errorf("schema: field %q: unknown distance metric %q: %w",
			name, f.vector.Distance, ErrInvalidSchema)
	}
	if !f.vector.DataType.IsValid() {
		return Field{}, fmt.Errorf("schema: field %q: unknown data type %q: %w",
			name, f.vector.DataType, ErrInvalidSchema)
	}

	return f, nil
}

// MustVectorField calls NewVectorField and panics on error.
func MustVectorField(name string, dims int, opts ...FieldOption) Field {
	f, err := NewVectorField(name, dims, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func newField(name string, typ FieldType, opts []FieldOption) Field {
	f := Field{name: name, typ: typ}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Name returns the logical field name.
func (f Field) Name() string { return f.name }

// Alias returns the query alias, empty when the name is addressable directly.
func (f Field) Alias() string { return f.alias }

// Path returns the explicit JSON path override, if any.
func (f Field) Path() string { return f.path }

// Type returns the field's indexing type.
func (f Field) Type() FieldType { return f.typ }

// IsSortable reports whether the field is sortable.
func (f Field) IsSortable() bool { return f.sortable }

// Tag returns tag-field attributes.
func (f Field) Tag() TagAttrs { return f.tag }

// Text returns text-field attributes.
func (f Field) Text() TextAttrs { return f.text }

// Vector returns vector-field attributes.
func (f Field) Vector() VectorAttrs { return f.vector }

// QueryName returns the name the field is addressed by in queries:
// the alias when set, otherwise the logical name.
func (f Field) QueryName() string {
	if f.alias != "" {
		return f.alias
	}
	return f.name
}
