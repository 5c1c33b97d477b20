package chatflow

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind tags the dynamic type of a context value
type ValueKind string

const (
	KindString ValueKind = "STRING"
	KindNumber ValueKind = "NUMBER"
	KindTime   ValueKind = "TIME"
	KindObject ValueKind = "OBJECT"
)

// Value is a tagged context value: string, number, timestamp or structured
// object. The external JSON shape stays a plain JSON value so serialized
// contexts look like ordinary string-keyed payloads.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	ts   time.Time
	obj  any
}

// StringValue creates a string value
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue creates a numeric value
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// TimeValue creates a timestamp value
func TimeValue(t time.Time) Value {
	return Value{kind: KindTime, ts: t}
}

// ObjectValue creates a structured value (maps, slices)
func ObjectValue(v any) Value {
	return Value{kind: KindObject, obj: v}
}

// FromAny converts an arbitrary value (typically a parsed JSON value) into
// a tagged Value
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return StringValue("")
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return StringValue(strconv.FormatBool(t))
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case time.Time:
		return TimeValue(t)
	default:
		return ObjectValue(v)
	}
}

// Kind returns the value's tag
func (v Value) Kind() ValueKind {
	return v.kind
}

// String returns the value's string form, used for placeholder substitution
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		return v.ts.Format(time.RFC3339)
	case KindObject:
		b, err := json.Marshal(v.obj)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return v.str
	}
}

// Float returns the value as a float64 when it is numeric or parses as one
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	}
	return 0, false
}

// Time returns the timestamp when the value holds one
func (v Value) Time() (time.Time, bool) {
	if v.kind == KindTime {
		return v.ts, true
	}
	if v.kind == KindString {
		t, err := time.Parse(time.RFC3339, v.str)
		return t, err == nil
	}
	return time.Time{}, false
}

// Object returns the structured payload when the value holds one
func (v Value) Object() (any, bool) {
	if v.kind == KindObject {
		return v.obj, true
	}
	return nil, false
}

// MarshalJSON emits the plain JSON form of the value
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindTime:
		return json.Marshal(v.ts.Format(time.RFC3339))
	case KindObject:
		return json.Marshal(v.obj)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON infers the value kind from the plain JSON form. Strings in
// RFC3339 form come back as timestamps.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			*v = TimeValue(ts)
		} else {
			*v = StringValue(t)
		}
	default:
		*v = FromAny(raw)
	}
	return nil
}

// Context is the execution-scoped, string-keyed value map shared between
// the steps of a single run. Within one execution it is only ever written
// by the step executor on behalf of the single active step.
type Context map[string]Value

// NewContext creates an empty context
func NewContext() Context {
	return make(Context)
}

// Set stores a value
func (c Context) Set(key string, v Value) {
	c[key] = v
}

// SetAny converts and stores an arbitrary value
func (c Context) SetAny(key string, v any) {
	c[key] = FromAny(v)
}

// Get retrieves a value
func (c Context) Get(key string) (Value, bool) {
	v, ok := c[key]
	return v, ok
}

// GetString retrieves a value's string form
func (c Context) GetString(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Has reports whether a key exists
func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Clone creates a copy of the context
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	cp := make(Context, len(c))
	for k, v := range c {
		cp[k] = v
	}
	return cp
}

// AsMap flattens the context into a plain map of JSON-like values
func (c Context) AsMap() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		switch v.kind {
		case KindNumber:
			out[k] = v.num
		case KindTime:
			out[k] = v.ts.Format(time.RFC3339)
		case KindObject:
			out[k] = v.obj
		default:
			out[k] = v.str
		}
	}
	return out
}
