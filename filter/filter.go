// Package filter builds RediSearch query-language filter expressions.
//
// Expressions are immutable value objects; String() renders the wire-format
// query string deterministically. Leaves reference a field by its addressable
// name (the alias for JSON-backed schemas), combinators preserve the tree
// structure with explicit parentheses so precedence never depends on nesting
// depth.
package filter

import (
	"fmt"
	"strings"
)

// Expression is a renderable filter tree node.
type Expression interface {
	// String renders the expression as a RediSearch dialect-2 query fragment.
	String() string
}

// matchNothing is the sentinel emitted for leaves with no usable values.
// An empty value list degrades to "match nothing", never to match-all.
const matchNothing = "@%s:{__rvl_empty__}"

// Wildcard matches every document.
func Wildcard() Expression { return wildcard{} }

type wildcard struct{}

func (wildcard) String() string { return "*" }

// IsWildcard reports whether e renders as the match-all wildcard.
func IsWildcard(e Expression) bool {
	return e == nil || e.String() == "*"
}

// Raw is a literal query fragment passed through without validation.
// Caller is responsible for correct syntax and escaping.
func Raw(query string) Expression { return raw(query) }

type raw string

func (r raw) String() string { return string(r) }

// --- Tag ---

type tagFilter struct {
	field  string
	values []string
}

// Tag matches documents whose tag field holds any of the given values.
// Renders @field:{v1|v2|...} with reserved characters escaped. An empty
// value list renders the match-nothing sentinel.
func Tag(field string, values ...string) Expression {
	return tagFilter{field: field, values: values}
}

func (f tagFilter) String() string {
	vals := make([]string, 0, len(f.values))
	for _, v := range f.values {
		if v == "" {
			continue
		}
		vals = append(vals, escapeTag(v))
	}
	if len(vals) == 0 {
		return fmt.Sprintf(matchNothing, f.field)
	}
	return fmt.Sprintf("@%s:{%s}", f.field, strings.Join(vals, "|"))
}

// --- Text ---

type textFilter struct {
	field string
	value string
}

// Text matches documents whose text field contains the given phrase.
// Renders @field:(value). An empty value renders the match-nothing sentinel.
func Text(field, value string) Expression {
	return textFilter{field: field, value: value}
}

func (f textFilter) String() string {
	if f.value == "" {
		return fmt.Sprintf(matchNothing, f.field)
	}
	return fmt.Sprintf("@%s:(%s)", f.field, escapeText(f.value))
}

// --- Prefix ---

type prefixFilter struct {
	field string
	value string
}

// Prefix matches text fields by term prefix. Renders @field:value*.
func Prefix(field, value string) Expression {
	return prefixFilter{field: field, value: value}
}

func (f prefixFilter) String() string {
	if f.value == "" {
		return fmt.Sprintf(matchNothing, f.field)
	}
	return fmt.Sprintf("@%s:%s*", f.field, escapeText(f.value))
}

// --- Numeric ---

// NumericFilter is a fluent range builder over a numeric field.
// Bounds are inclusive unless marked exclusive; exclusive bounds render with
// a leading "(" per RediSearch range syntax.
type NumericFilter struct {
	field        string
	min, max     string
	negate       bool
	hasCondition bool
}

// Numeric starts a range filter on the given numeric field.
// With no condition applied it renders the full range @field:[-inf +inf].
func Numeric(field string) NumericFilter {
	return NumericFilter{field: field, min: "-inf", max: "+inf"}
}

// Eq matches values equal to v.
func (f NumericFilter) Eq(v float64) NumericFilter {
	f.min, f.max = formatNum(v), formatNum(v)
	f.hasCondition = true
	return f
}

// Ne matches values not equal to v. Renders as a negated point range.
func (f NumericFilter) Ne(v float64) NumericFilter {
	f = f.Eq(v)
	f.negate = true
	return f
}

// Gt matches values strictly greater than v.
func (f NumericFilter) Gt(v float64) NumericFilter {
	f.min = "(" + formatNum(v)
	f.hasCondition = true
	return f
}

// Gte matches values greater than or equal to v.
func (f NumericFilter) Gte(v float64) NumericFilter {
	f.min = formatNum(v)
	f.hasCondition = true
	return f
}

// Lt matches values strictly less than v.
func (f NumericFilter) Lt(v float64) NumericFilter {
	f.max = "(" + formatNum(v)
	f.hasCondition = true
	return f
}

// Lte matches values less than or equal to v.
func (f NumericFilter) Lte(v float64) NumericFilter {
	f.max = formatNum(v)
	f.hasCondition = true
	return f
}

// Between matches values in the inclusive range [min, max].
func (f NumericFilter) Between(min, max float64) NumericFilter {
	f.min, f.max = formatNum(min), formatNum(max)
	f.hasCondition = true
	return f
}

func (f NumericFilter) String() string {
	s := fmt.Sprintf("@%s:[%s %s]", f.field, f.min, f.max)
	if f.negate {
		return "(-" + s + ")"
	}
	return s
}

// --- Geo ---

// GeoUnit is the distance unit for geo radius filters.
type GeoUnit string

// Geo radius units accepted by the engine.
const (
	Meters     GeoUnit = "m"
	Kilometers GeoUnit = "km"
	Miles      GeoUnit = "mi"
	Feet       GeoUnit = "ft"
)

type geoFilter struct {
	field    string
	lon, lat float64
	radius   float64
	unit     GeoUnit
}

// GeoRadius matches documents whose geo field lies within radius of the
// given point. Renders @field:[lon lat radius unit].
func GeoRadius(field string, lon, lat, radius float64, unit GeoUnit) Expression {
	if unit == "" {
		unit = Kilometers
	}
	return geoFilter{field: field, lon: lon, lat: lat, radius: radius, unit: unit}
}

func (f geoFilter) String() string {
	return fmt.Sprintf("@%s:[%s %s %s %s]",
		f.field, formatNum(f.lon), formatNum(f.lat), formatNum(f.radius), f.unit)
}

// --- Composition ---

type andFilter struct{ left, right Expression }

// And intersects two expressions: (left right).
// A wildcard operand is absorbed so (* f) collapses to f.
func And(left, right Expression) Expression {
	if IsWildcard(left) {
		return orWildcard(right)
	}
	if IsWildcard(right) {
		return left
	}
	return andFilter{left: left, right: right}
}

func (f andFilter) String() string {
	return fmt.Sprintf("(%s %s)", f.left.String(), f.right.String())
}

type orFilter struct{ left, right Expression }

// Or unions two expressions: (left | right).
// A wildcard operand makes the whole union a wildcard.
func Or(left, right Expression) Expression {
	if IsWildcard(left) || IsWildcard(right) {
		return wildcard{}
	}
	return orFilter{left: left, right: right}
}

func (f orFilter) String() string {
	return fmt.Sprintf("(%s | %s)", f.left.String(), f.right.String())
}

type notFilter struct{ inner Expression }

// Not negates an expression: (-inner).
func Not(inner Expression) Expression {
	return notFilter{inner: orWildcard(inner)}
}

func (f notFilter) String() string {
	return fmt.Sprintf("(-%s)", f.inner.String())
}

func orWildcard(e Expression) Expression {
	if e == nil {
		return wildcard{}
	}
	return e
}

func formatNum(v float64) string {
	return fmt.Sprintf("%g", v)
}
