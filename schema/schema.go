// Package schema models index declarations: identity, key prefixing, storage
// layout, and typed field definitions. A schema is built once, validated
// eagerly, and consumed read-only by every query builder and the index
// facade; changing shape means building a new schema.
package schema

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/redivec/internal/db"
)

// ErrInvalidSchema marks schema validation failures; wrap-checked with
// errors.Is by callers.
var ErrInvalidSchema = errors.New("schema: invalid declaration")

// StorageType is the document storage layout behind an index.
type StorageType string

const (
	// Hash stores documents as flat attribute-per-key maps.
	Hash StorageType = "hash"
	// JSON stores documents as nested path-addressed JSON.
	JSON StorageType = "json"
)

// IsValid checks if the storage type is supported.
func (s StorageType) IsValid() bool {
	return s == Hash || s == JSON
}

// DefaultKeySeparator joins the key prefix and the document id.
const DefaultKeySeparator = ":"

// IndexInfo is the identity block of a schema declaration.
type IndexInfo struct {
	Name         string
	Prefix       string
	KeySeparator string
	StorageType  StorageType
}

// IndexSchema is an immutable index declaration: identity, key prefix,
// storage type, and ordered field definitions.
type IndexSchema struct {
	name         string
	prefix       string
	keySeparator string
	storage      StorageType
	fields       []Field
}

// New validates and creates an IndexSchema.
// Field names (or aliases) must be unique; prefix defaults to the index
// name, separator to ":", storage to hash.
func New(info IndexInfo, fields ...Field) (*IndexSchema, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("schema: index name is required: %w", ErrInvalidSchema)
	}
	if !db.IsValidIdentifier(info.Name) {
		return nil, fmt.Errorf("schema: index name %q contains invalid characters: %w",
			info.Name, ErrInvalidSchema)
	}
	if info.StorageType == "" {
		info.StorageType = Hash
	}
	if !info.StorageType.IsValid() {
		return nil, fmt.Errorf("schema: unknown storage type %q: %w",
			info.StorageType, ErrInvalidSchema)
	}
	if info.Prefix == "" {
		info.Prefix = info.Name
	}
	if info.KeySeparator == "" {
		info.KeySeparator = DefaultKeySeparator
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema: at least one field is required: %w", ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name() == "" {
			return nil, fmt.Errorf("schema: field name is required: %w", ErrInvalidSchema)
		}
		key := f.QueryName()
		if seen[key] {
			return nil, fmt.Errorf("schema: duplicate field name %q: %w", key, ErrInvalidSchema)
		}
		seen[key] = true
	}

	return &IndexSchema{
		name:         info.Name,
		prefix:       info.Prefix,
		keySeparator: info.KeySeparator,
		storage:      info.StorageType,
		fields:       fields,
	}, nil
}

// Name returns the index name.
func (s *IndexSchema) Name() string { return s.name }

// Prefix returns the document key prefix (without separator).
func (s *IndexSchema) Prefix() string { return s.prefix }

// KeySeparator returns the prefix/id separator.
func (s *IndexSchema) KeySeparator() string { return s.keySeparator }

// StorageType returns the document storage layout.
func (s *IndexSchema) StorageType() StorageType { return s.storage }

// Fields returns the ordered field definitions.
func (s *IndexSchema) Fields() []Field { return s.fields }

// FieldByName looks up a field by its addressable query name.
func (s *IndexSchema) FieldByName(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.QueryName() == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the addressable names of all fields, in order.
func (s *IndexSchema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.QueryName()
	}
	return names
}

// Key builds the physical document key for an id: prefix + separator + id.
func (s *IndexSchema) Key(id string) string {
	return s.prefix + s.keySeparator + id
}

// KeyPattern is the scan pattern covering every document of the index.
func (s *IndexSchema) KeyPattern() string {
	return s.prefix + s.keySeparator + "*"
}

// Compile resolves each field to its physical path for the schema's storage
// type and produces the wire-level index definition.
//
// For hash storage the physical identifier is the field name itself. For
// JSON storage fields are addressed by a root-relative path ($.name unless
// an explicit path is declared) and the logical name becomes the AS alias so
// queries never embed path syntax.
func (s *IndexSchema) Compile() (*db.IndexDefinition, error) {
	def := &db.IndexDefinition{
		Name:        s.name,
		StorageType: s.storageType(),
		Prefixes:    []string{s.prefix + s.keySeparator},
		Fields:      make([]db.IndexField, 0, len(s.fields)),
	}

	for _, f := range s.fields {
		idxField, err := s.compileField(f)
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, idxField)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", err, ErrInvalidSchema)
	}
	return def, nil
}

func (s *IndexSchema) storageType() db.StorageType {
	if s.storage == JSON {
		return db.StorageJSON
	}
	return db.StorageHash
}

func (s *IndexSchema) compileField(f Field) (db.IndexField, error) {
	out := db.IndexField{
		Name:     f.Name(),
		Alias:    f.Alias(),
		Sortable: f.IsSortable(),
	}

	if s.storage == JSON {
		out.Name = f.Path()
		if out.Name == "" {
			out.Name = "$." + f.Name()
		}
		out.Alias = f.QueryName()
	}

	switch f.Type() {
	case TagFieldType:
		out.Type = db.IndexFieldTag
		out.TagSeparator = f.Tag().Separator
		out.TagCaseSensitive = f.Tag().CaseSensitive

	case TextFieldType:
		out.Type = db.IndexFieldText
		out.TextWeight = f.Text().Weight
		out.TextNoStem = f.Text().NoStem

	case NumericFieldType:
		out.Type = db.IndexFieldNumeric

	case GeoFieldType:
		out.Type = db.IndexFieldGeo

	case VectorFieldType:
		out.Type = db.IndexFieldVector
		v := f.Vector()
		out.VectorDim = v.Dims
		out.VectorAlgo = compileAlgorithm(v.Algorithm)
		out.VectorDistance = compileMetric(v.Distance)
		out.VectorType = compileDataType(v.DataType)
		out.VectorM = v.M
		out.VectorEFConstruct = v.EFConstruction
		out.VectorEFRuntime = v.EFRuntime
		out.VectorBlockSize = v.BlockSize
		out.VectorInitialCap = v.InitialCap

	default:
		return db.IndexField{}, fmt.Errorf("schema: field %q: unknown type %q: %w",
			f.Name(), f.Type(), ErrInvalidSchema)
	}

	return out, nil
}

func compileAlgorithm(a Algorithm) db.VectorAlgorithm {
	if a == HNSW {
		return db.VectorHNSW
	}
	return db.VectorFlat
}

func compileMetric(m DistanceMetric) db.DistanceMetric {
	switch m {
	case L2:
		return db.DistanceL2
	case IP:
		return db.DistanceIP
	default:
		return db.DistanceCosine
	}
}

func compileDataType(d DataType) db.VectorDataType {
	if d == Float64 {
		return db.Float64
	}
	return db.Float32
}
