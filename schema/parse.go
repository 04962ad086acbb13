package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// declaration is the documented external schema shape: an index block plus
// a fields array.
type declaration struct {
	Index  indexDecl   `yaml:"index"`
	Fields []fieldDecl `yaml:"fields"`
}

type indexDecl struct {
	Name         string `yaml:"name"`
	Prefix       string `yaml:"prefix,omitempty"`
	KeySeparator string `yaml:"key_separator,omitempty"`
	StorageType  string `yaml:"storage_type,omitempty"`
}

type fieldDecl struct {
	Name  string         `yaml:"name"`
	Type  string         `yaml:"type"`
	Path  string         `yaml:"path,omitempty"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// FromYAML reads a schema declaration from a YAML file.
func FromYAML(path string) (*IndexSchema, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML parses a schema declaration from YAML bytes.
func ParseYAML(data []byte) (*IndexSchema, error) {
	var decl declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("schema: parse declaration: %w: %w", err, ErrInvalidSchema)
	}
	return fromDeclaration(&decl)
}

// FromMap parses a schema declaration from a nested map, the same shape the
// YAML format documents.
func FromMap(m map[string]any) (*IndexSchema, error) {
	// Round through YAML so map and file declarations share one decoder.
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("schema: encode declaration: %w: %w", err, ErrInvalidSchema)
	}
	return ParseYAML(data)
}

func fromDeclaration(decl *declaration) (*IndexSchema, error) {
	if decl.Index.StorageType != "" && !StorageType(decl.Index.StorageType).IsValid() {
		return nil, fmt.Errorf("schema: unknown storage type %q: %w",
			decl.Index.StorageType, ErrInvalidSchema)
	}

	info := IndexInfo{
		Name:         decl.Index.Name,
		Prefix:       decl.Index.Prefix,
		KeySeparator: decl.Index.KeySeparator,
		StorageType:  StorageType(decl.Index.StorageType),
	}

	fields := make([]Field, 0, len(decl.Fields))
	for _, fd := range decl.Fields {
		f, err := parseField(fd)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return New(info, fields...)
}

func parseField(fd fieldDecl) (Field, error) {
	if fd.Name == "" {
		return Field{}, fmt.Errorf("schema: field declaration lacks name: %w", ErrInvalidSchema)
	}
	if fd.Type == "" {
		return Field{}, fmt.Errorf("schema: field %q lacks type: %w", fd.Name, ErrInvalidSchema)
	}

	opts := commonOptions(fd)

	switch FieldType(fd.Type) {
	case TagFieldType:
		if sep, ok := attrString(fd.Attrs, "separator"); ok {
			opts = append(opts, WithSeparator(sep))
		}
		if attrBool(fd.Attrs, "case_sensitive") {
			opts = append(opts, CaseSensitive())
		}
		return NewTagField(fd.Name, opts...), nil

	case TextFieldType:
		if w, ok := attrFloat(fd.Attrs, "weight"); ok {
			opts = append(opts, WithWeight(w))
		}
		if attrBool(fd.Attrs, "no_stem") {
			opts = append(opts, NoStem())
		}
		return NewTextField(fd.Name, opts...), nil

	case NumericFieldType:
		return NewNumericField(fd.Name, opts...), nil

	case GeoFieldType:
		return NewGeoField(fd.Name, opts...), nil

	case VectorFieldType:
		dims, ok := attrInt(fd.Attrs, "dims")
		if !ok {
			return Field{}, fmt.Errorf("schema: vector field %q lacks dims: %w",
				fd.Name, ErrInvalidSchema)
		}
		if algo, ok := attrString(fd.Attrs, "algorithm"); ok {
			opts = append(opts, WithAlgorithm(Algorithm(algo)))
		}
		if metric, ok := attrString(fd.Attrs, "distance_metric"); ok {
			opts = append(opts, WithDistanceMetric(DistanceMetric(metric)))
		}
		if dtype, ok := attrString(fd.Attrs, "datatype"); ok {
			opts = append(opts, WithDataType(DataType(dtype)))
		}
		if v, ok := attrInt(fd.Attrs, "m"); ok {
			opts = append(opts, WithM(v))
		}
		if v, ok := attrInt(fd.Attrs, "ef_construction"); ok {
			opts = append(opts, WithEFConstruction(v))
		}
		if v, ok := attrInt(fd.Attrs, "ef_runtime"); ok {
			opts = append(opts, WithEFRuntime(v))
		}
		if v, ok := attrInt(fd.Attrs, "block_size"); ok {
			opts = append(opts, WithBlockSize(v))
		}
		if v, ok := attrInt(fd.Attrs, "initial_cap"); ok {
			opts = append(opts, WithInitialCap(v))
		}
		return NewVectorField(fd.Name, dims, opts...)

	default:
		return Field{}, fmt.Errorf("schema: field %q: unknown type %q: %w",
			fd.Name, fd.Type, ErrInvalidSchema)
	}
}

func commonOptions(fd fieldDecl) []FieldOption {
	var opts []FieldOption
	if fd.Path != "" {
		opts = append(opts, WithPath(fd.Path))
	}
	if alias, ok := attrString(fd.Attrs, "alias"); ok {
		opts = append(opts, WithAlias(alias))
	}
	if attrBool(fd.Attrs, "sortable") {
		opts = append(opts, Sortable())
	}
	return opts
}

// ToMap serializes the schema back to the documented declaration shape.
// Parsing the result reproduces an equivalent schema.
func (s *IndexSchema) ToMap() map[string]any {
	index := map[string]any{
		"name":          s.name,
		"prefix":        s.prefix,
		"key_separator": s.keySeparator,
		"storage_type":  string(s.storage),
	}

	fields := make([]any, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, fieldToMap(f))
	}

	return map[string]any{"index": index, "fields": fields}
}

func fieldToMap(f Field) map[string]any {
	m := map[string]any{
		"name": f.Name(),
		"type": string(f.Type()),
	}
	if f.Path() != "" {
		m["path"] = f.Path()
	}

	attrs := map[string]any{}
	if f.Alias() != "" {
		attrs["alias"] = f.Alias()
	}
	if f.IsSortable() {
		attrs["sortable"] = true
	}

	switch f.Type() {
	case TagFieldType:
		if f.Tag().Separator != "" {
			attrs["separator"] = f.Tag().Separator
		}
		if f.Tag().CaseSensitive {
			attrs["case_sensitive"] = true
		}
	case TextFieldType:
		if f.Text().Weight != 0 {
			attrs["weight"] = f.Text().Weight
		}
		if f.Text().NoStem {
			attrs["no_stem"] = true
		}
	case VectorFieldType:
		v := f.Vector()
		attrs["dims"] = v.Dims
		attrs["algorithm"] = string(v.Algorithm)
		attrs["distance_metric"] = string(v.Distance)
		attrs["datatype"] = string(v.DataType)
		if v.M != 0 {
			attrs["m"] = v.M
		}
		if v.EFConstruction != 0 {
			attrs["ef_construction"] = v.EFConstruction
		}
		if v.EFRuntime != 0 {
			attrs["ef_runtime"] = v.EFRuntime
		}
		if v.BlockSize != 0 {
			attrs["block_size"] = v.BlockSize
		}
		if v.InitialCap != 0 {
			attrs["initial_cap"] = v.InitialCap
		}
	}

	if len(attrs) > 0 {
		m["attrs"] = attrs
	}
	return m
}

// --- attr readers: declaration attrs arrive as loosely typed YAML values ---

func attrString(attrs map[string]any, key string) (string, bool) {
	v, ok := attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func attrBool(attrs map[string]any, key string) bool {
	v, ok := attrs[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func attrInt(attrs map[string]any, key string) (int, bool) {
	switch v := attrs[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func attrFloat(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
