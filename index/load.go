package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/db"
	"github.com/kailas-cloud/redivec/query"
	"github.com/kailas-cloud/redivec/schema"
)

// LoadOption customizes a Load call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	idField string
	keys    []string
	ttl     time.Duration
}

// WithIDField names the document field whose value becomes the key id.
// Documents missing the field fall back to a generated UUID.
func WithIDField(name string) LoadOption {
	return func(o *loadOptions) { o.idField = name }
}

// WithKeys supplies explicit fully-qualified keys, one per document.
func WithKeys(keys []string) LoadOption {
	return func(o *loadOptions) { o.keys = keys }
}

// WithTTL sets a per-document expiry applied after each write.
func WithTTL(ttl time.Duration) LoadOption {
	return func(o *loadOptions) { o.ttl = ttl }
}

// Load writes documents under the schema's key convention and returns the
// keys written, in input order. Field values are validated against the
// schema's declared types before any write is issued; a single bad document
// fails the whole batch.
func (i *SearchIndex) Load(ctx context.Context, docs []map[string]any, opts ...LoadOption) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys != nil && len(o.keys) != len(docs) {
		return nil, fmt.Errorf("got %d keys for %d documents", len(o.keys), len(docs))
	}

	keys := make([]string, len(docs))
	for n, doc := range docs {
		if err := i.validateDocument(doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", n, err)
		}
		if o.keys != nil {
			keys[n] = o.keys[n]
			continue
		}
		keys[n] = i.schema.Key(i.documentID(doc, o.idField))
	}

	var err error
	if i.schema.StorageType() == schema.JSON {
		err = i.loadJSON(ctx, keys, docs)
	} else {
		err = i.loadHash(ctx, keys, docs)
	}
	if err != nil {
		return nil, err
	}

	if o.ttl > 0 {
		for _, key := range keys {
			if err := i.store.Expire(ctx, key, o.ttl); err != nil {
				return nil, err
			}
		}
	}

	i.log.Debug("documents loaded",
		zap.String("index", i.schema.Name()),
		zap.Int("count", len(keys)))
	return keys, nil
}

func (i *SearchIndex) documentID(doc map[string]any, idField string) string {
	if idField != "" {
		if v, ok := doc[idField]; ok {
			if s := toKeyString(v); s != "" {
				return s
			}
		}
	}
	return uuid.NewString()
}

func (i *SearchIndex) loadHash(ctx context.Context, keys []string, docs []map[string]any) error {
	items := make([]db.HashSetItem, len(docs))
	for n, doc := range docs {
		fields, err := i.hashFields(doc)
		if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		items[n] = db.HashSetItem{Key: keys[n], Fields: fields}
	}
	return i.store.HSetMulti(ctx, items)
}

func (i *SearchIndex) loadJSON(ctx context.Context, keys []string, docs []map[string]any) error {
	items := make([]db.JSONSetItem, len(docs))
	for n, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
		items[n] = db.JSONSetItem{Key: keys[n], Path: "$", Data: data}
	}
	return i.store.JSONSetMulti(ctx, items)
}

// validateDocument checks declared fields present in the document against
// their schema types. Undeclared fields pass through untouched; declared
// fields may be absent.
func (i *SearchIndex) validateDocument(doc map[string]any) error {
	for _, f := range i.schema.Fields() {
		v, ok := doc[f.Name()]
		if !ok || v == nil {
			continue
		}
		if err := validateFieldValue(f, v); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldValue(f schema.Field, v any) error {
	switch f.Type() {
	case schema.NumericFieldType:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return nil
		}
		return fmt.Errorf("field %q: numeric field holds %T", f.Name(), v)

	case schema.VectorFieldType:
		dims := f.Vector().Dims
		switch vec := v.(type) {
		case []float32:
			if len(vec) != dims {
				return fmt.Errorf("field %q: vector has %d dims, schema declares %d",
					f.Name(), len(vec), dims)
			}
		case []float64:
			if len(vec) != dims {
				return fmt.Errorf("field %q: vector has %d dims, schema declares %d",
					f.Name(), len(vec), dims)
			}
		case []byte, string:
			// pre-serialized blob, length checked by the engine
		default:
			return fmt.Errorf("field %q: vector field holds %T", f.Name(), v)
		}
		return nil

	default:
		// tag, text and geo accept any stringifiable value
		return nil
	}
}

// hashFields flattens a document to the string map HSET requires. Vectors
// become little-endian blobs matching the field's declared data type.
func (i *SearchIndex) hashFields(doc map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(doc))
	for name, v := range doc {
		if v == nil {
			continue
		}
		s, err := i.hashValue(name, v)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

func (i *SearchIndex) hashValue(name string, v any) (string, error) {
	switch tv := v.(type) {
	case []float32:
		if f, ok := i.schema.FieldByName(name); ok && f.Vector().DataType == schema.Float64 {
			return query.VectorBlob64(toFloat64s(tv)), nil
		}
		return query.VectorBlob32(tv), nil
	case []float64:
		if f, ok := i.schema.FieldByName(name); ok && f.Vector().DataType == schema.Float64 {
			return query.VectorBlob64(tv), nil
		}
		return query.VectorBlob32(toFloat32s(tv)), nil
	case []byte:
		return string(tv), nil
	case string:
		return tv, nil
	case bool:
		return strconv.FormatBool(tv), nil
	case int:
		return strconv.Itoa(tv), nil
	case int32:
		return strconv.FormatInt(int64(tv), 10), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	case float32:
		return strconv.FormatFloat(float64(tv), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("field %q: cannot store %T in a hash document", name, v)
	}
}

func toKeyString(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64)
	default:
		return ""
	}
}

func toFloat32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for n, x := range v {
		out[n] = float32(x)
	}
	return out
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for n, x := range v {
		out[n] = float64(x)
	}
	return out
}
