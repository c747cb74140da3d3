// Package model defines the row-level data types shared by the local and
// network reconciliation stores: a tagged-union column value and the open
// ended Entity row it composes into.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the dynamic type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindTime
	KindString
	KindBytes
)

// Value is a tagged-union column value, replacing the open "object" slot
// the source system passes around column maps as. Exactly one of the
// typed fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	t    time.Time
	s    string
	by   []byte
}

func Null() Value                { return Value{kind: KindNull} }
func Int64(v int64) Value        { return Value{kind: KindInt64, i: v} }
func Float64(v float64) Value    { return Value{kind: KindFloat64, f: v} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func Time(v time.Time) Value     { return Value{kind: KindTime, t: v.UTC()} }
func String(v string) Value      { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value       { return Value{kind: KindBytes, by: v} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Int64() (int64, bool)     { return v.i, v.kind == KindInt64 }
func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindFloat64 }
func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Time() (time.Time, bool)  { return v.t, v.kind == KindTime }
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindString:
		return v.s
	case KindBytes:
		return string(v.by)
	default:
		return ""
	}
}
func (v Value) Bytes() ([]byte, bool) { return v.by, v.kind == KindBytes }

// Raw returns the value in the form the database/sql driver expects for
// parameter binding: nil, int64, float64, bool, time.Time, string, or []byte.
func (v Value) Raw() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t.UTC().Format("2006-01-02 15:04:05.000")
	case KindString:
		return v.s
	case KindBytes:
		return v.by
	default:
		return nil
	}
}

// FromRaw wraps a value scanned out of database/sql (interface{} of nil,
// int64, float64, bool, []byte, string, or time.Time) as a Value.
func FromRaw(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case int64:
		return Int64(x)
	case int:
		return Int64(int64(x))
	case float64:
		return Float64(x)
	case bool:
		return Bool(x)
	case time.Time:
		return Time(x)
	case string:
		return String(x)
	case []byte:
		return Bytes(append([]byte(nil), x...))
	default:
		return String(fmt.Sprintf("%v", x))
	}
}

// ColumnType names the target type for CoerceTo, mirroring the OLE DB type
// coercion the source system performs before binding parameters.
type ColumnType int

const (
	ColTypeUnknown ColumnType = iota
	ColTypeInt64
	ColTypeFloat64
	ColTypeBool
	ColTypeDateTime
	ColTypeString
	ColTypeBytes
)

// CoerceTo mirrors the OLE coercion described in the design notes: a single
// function that converts any Value into the target column type, parsing
// strings as dates with invariant (ISO-8601) format first and an fr-FR
// fallback, as the spec calls out for interoperating with the source
// system's locale.
func CoerceTo(v Value, target ColumnType) (Value, error) {
	if v.IsNull() {
		return Null(), nil
	}
	switch target {
	case ColTypeInt64:
		if n, ok := v.Int64(); ok {
			return Int64(n), nil
		}
		if f, ok := v.Float64(); ok {
			return Int64(int64(f)), nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("coerce %q to int64: %w", v.String(), err)
		}
		return Int64(n), nil
	case ColTypeFloat64:
		if f, ok := v.Float64(); ok {
			return Float64(f), nil
		}
		if n, ok := v.Int64(); ok {
			return Float64(float64(n)), nil
		}
		s := strings.ReplaceAll(strings.TrimSpace(v.String()), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("coerce %q to float64: %w", v.String(), err)
		}
		return Float64(f), nil
	case ColTypeBool:
		if b, ok := v.Bool(); ok {
			return Bool(b), nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v.String()))
		if err != nil {
			return Value{}, fmt.Errorf("coerce %q to bool: %w", v.String(), err)
		}
		return Bool(b), nil
	case ColTypeDateTime:
		if t, ok := v.Time(); ok {
			return Time(t), nil
		}
		t, err := parseFlexibleTime(v.String())
		if err != nil {
			return Value{}, fmt.Errorf("coerce %q to datetime: %w", v.String(), err)
		}
		return Time(t), nil
	case ColTypeBytes:
		if b, ok := v.Bytes(); ok {
			return Bytes(b), nil
		}
		return Bytes([]byte(v.String())), nil
	case ColTypeString, ColTypeUnknown:
		return String(v.String()), nil
	default:
		return String(v.String()), nil
	}
}

// invariant-culture first, then fr-FR-shaped layouts, matching the spec's
// "dates parsed with invariant culture then fr-FR fallback" requirement.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func parseFlexibleTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
