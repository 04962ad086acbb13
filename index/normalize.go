package index

import (
	"encoding/json"
	"strconv"

	"github.com/kailas-cloud/redivec/internal/db"
	"github.com/kailas-cloud/redivec/query"
	"github.com/kailas-cloud/redivec/schema"
)

// IDField is the key under which the document key appears in result rows.
const IDField = "id"

// normalizeEntry converts a raw search hit into a result row: the document
// key under "id", the distance as float64, and schema-declared numeric
// fields parsed from their string form.
func (i *SearchIndex) normalizeEntry(e db.SearchEntry) map[string]any {
	row := make(map[string]any, len(e.Fields)+1)
	row[IDField] = e.Key
	for name, v := range e.Fields {
		row[name] = i.normalizeValue(name, v)
	}
	return row
}

// normalizeAggregateRow converts a raw pipeline row. The reduced alias and
// any yielded distance come back as float64; grouped fields stay strings.
func (i *SearchIndex) normalizeAggregateRow(raw map[string]string, reduceAs string) map[string]any {
	row := make(map[string]any, len(raw))
	for name, v := range raw {
		if name == reduceAs || name == query.DistanceField {
			row[name] = parseFloat(v)
			continue
		}
		row[name] = i.normalizeValue(name, v)
	}
	return row
}

// normalizeFetched converts a full hash document. Vector fields decode from
// their binary blob form back to slices.
func (i *SearchIndex) normalizeFetched(fields map[string]string) map[string]any {
	row := make(map[string]any, len(fields))
	for name, v := range fields {
		f, ok := i.schema.FieldByName(name)
		if ok && f.Type() == schema.VectorFieldType {
			row[name] = query.BlobToVector32([]byte(v))
			continue
		}
		row[name] = i.normalizeValue(name, v)
	}
	return row
}

func (i *SearchIndex) normalizeValue(name, v string) any {
	if name == query.DistanceField {
		return parseFloat(v)
	}
	if f, ok := i.schema.FieldByName(name); ok && f.Type() == schema.NumericFieldType {
		return parseFloat(v)
	}
	return v
}

// parseFloat keeps the raw string when the value does not parse, rather
// than silently zeroing it.
func parseFloat(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return f
}

// decodeJSONDocument unmarshals a JSON.GET payload into a document map.
func decodeJSONDocument(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		// dialect-3 style responses wrap the root object in an array
		var docs []map[string]any
		if err2 := json.Unmarshal(data, &docs); err2 == nil && len(docs) > 0 {
			return docs[0], nil
		}
		return nil, err
	}
	return doc, nil
}
