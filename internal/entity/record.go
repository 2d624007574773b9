// Package entity defines the typed records a snapshot run produces and
// persists.
package entity

import (
	"encoding/json"
	"maps"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// MaxNameLength bounds display names. Full names are never truncated.
const MaxNameLength = 80

// Record is one persisted entity. ID is zero until the record has been
// written at least once.
type Record struct {
	Kind   Kind           `json:"kind"`
	ID     int64          `json:"id"`
	Key    string         `json:"key"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields"`
}

// New stamps a field map with its kind. The content key is left to the
// caller since it usually depends on values known only after construction.
func New(kind Kind, name string, fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Kind: kind, Name: name, Fields: fields}
}

// Merge returns a new record holding old's values overlaid with every value
// set on next. Nil fields, an empty name, an empty key and a zero id on next
// leave old's value in place. Neither argument is modified.
func Merge(old, next *Record) *Record {
	out := &Record{
		Kind:   old.Kind,
		ID:     old.ID,
		Key:    old.Key,
		Name:   old.Name,
		Fields: make(map[string]any, len(old.Fields)+len(next.Fields)),
	}
	maps.Copy(out.Fields, old.Fields)
	for k, v := range next.Fields {
		if v != nil {
			out.Fields[k] = v
		}
	}
	if next.ID != 0 {
		out.ID = next.ID
	}
	if next.Key != "" {
		out.Key = next.Key
	}
	if next.Name != "" {
		out.Name = next.Name
	}
	return out
}

// TruncateName cuts s to MaxNameLength UTF-16 code units. A surrogate pair
// that would be split at the boundary is dropped whole.
func TruncateName(s string) string {
	if utf8.RuneCountInString(s) <= MaxNameLength/2 {
		return s
	}
	units := utf16.Encode([]rune(s))
	if len(units) <= MaxNameLength {
		return s
	}
	units = units[:MaxNameLength]
	if utf16.IsSurrogate(rune(units[MaxNameLength-1])) && units[MaxNameLength-1] < 0xdc00 {
		units = units[:MaxNameLength-1]
	}
	return string(utf16.Decode(units))
}

// Set assigns a field and returns the record for chaining.
func (r *Record) Set(field string, v any) *Record {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields[field] = v
	return r
}

// Has reports whether field carries a non-nil value.
func (r *Record) Has(field string) bool {
	v, ok := r.Fields[field]
	return ok && v != nil
}

// String returns a string field, or "" when unset.
func (r *Record) String(field string) string {
	switch v := r.Fields[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Bool returns a boolean field, or false when unset.
func (r *Record) Bool(field string) bool {
	b, _ := r.Fields[field].(bool)
	return b
}

// Int returns an integral field. Values decoded from JSON arrive as float64 or
// json.Number and are converted.
func (r *Record) Int(field string) int64 {
	switch v := r.Fields[field].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return int64(f)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Float returns a numeric field as float64.
func (r *Record) Float(field string) float64 {
	switch v := r.Fields[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// Ref returns the live id stored in a relationship field, or 0.
func (r *Record) Ref(field string) int64 {
	return r.Int(field)
}

// Line and Column return the record's source location.
func (r *Record) Line() int   { return int(r.Int(FieldLine)) }
func (r *Record) Column() int { return int(r.Int(FieldColumn)) }

// Score returns the record's reference score.
func (r *Record) Score() float64 { return r.Float(FieldScore) }
