package xmsg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Values is an immutable, ordered mapping from string keys to arbitrary values.
// It carries message payloads and metadata. The zero value is "absent";
// NewValues() with no arguments is present but empty.
//
// Values are normalized on the way in so that a mapping survives a JSON round
// trip unchanged:
//
//   - nil, bool and string are kept as is
//   - every integer and float kind becomes a json.Number
//   - map[string]any and nested objects become Values (map keys sorted)
//   - []any keeps its shape with normalized elements
//   - anything else is passed through encoding/json and normalized again
//
// Get therefore returns json.Number for numbers; use Int64 or Float64 to read
// them back.
type Values struct {
	om *orderedmap.OrderedMap[string, any]
}

// NewValues builds Values from alternating key/value pairs.
// It panics on an odd number of arguments, a non-string key or a value that
// cannot be encoded as JSON. A repeated key keeps its first position and its
// last value.
func NewValues(pairs ...any) Values {
	if len(pairs)%2 != 0 {
		panic("xmsg: NewValues requires key/value pairs")
	}
	v := Values{om: orderedmap.New[string, any](len(pairs) / 2)}
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("xmsg: NewValues key at %d is %T, not string", i, pairs[i]))
		}
		v.mustSet(k, pairs[i+1])
	}
	return v
}

// ValuesFromMap builds Values from a map. Keys are sorted so the result is
// deterministic. It panics on a value that cannot be encoded as JSON.
func ValuesFromMap(m map[string]any) Values {
	v, err := valuesFromMap(m)
	if err != nil {
		panic("xmsg: ValuesFromMap: " + err.Error())
	}
	return v
}

func valuesFromMap(m map[string]any) (Values, error) {
	if m == nil {
		return Values{}, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := Values{om: orderedmap.New[string, any](len(m))}
	for _, k := range keys {
		val, err := normalize(m[k])
		if err != nil {
			return Values{}, fmt.Errorf("value %q: %w", k, err)
		}
		v.om.Set(k, val)
	}
	return v, nil
}

func (v Values) mustSet(k string, val any) {
	n, err := normalize(val)
	if err != nil {
		panic(fmt.Sprintf("xmsg: value %q: %v", k, err))
	}
	v.om.Set(k, n)
}

// IsZero reports whether the mapping is absent (never constructed).
func (v Values) IsZero() bool { return v.om == nil }

// Len returns the number of entries.
func (v Values) Len() int {
	if v.om == nil {
		return 0
	}
	return v.om.Len()
}

// Get returns the value stored under k.
func (v Values) Get(k string) (any, bool) {
	if v.om == nil {
		return nil, false
	}
	return v.om.Get(k)
}

// String returns the value under k when it is a string.
func (v Values) String(k string) string {
	val, _ := v.Get(k)
	s, _ := val.(string)
	return s
}

// Int64 returns the number under k when it is an integer.
func (v Values) Int64(k string) (int64, bool) {
	val, _ := v.Get(k)
	n, ok := val.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	return i, err == nil
}

// Float64 returns the number under k.
func (v Values) Float64(k string) (float64, bool) {
	val, _ := v.Get(k)
	n, ok := val.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}

// Keys returns the keys in insertion order.
func (v Values) Keys() []string {
	out := make([]string, 0, v.Len())
	v.Range(func(k string, _ any) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (v Values) Range(fn func(k string, val any) bool) {
	if v.om == nil {
		return
	}
	for p := v.om.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// With returns a copy of v with k set to val. Setting a key on an absent
// mapping yields a present one. It panics on a value that cannot be encoded
// as JSON.
func (v Values) With(k string, val any) Values {
	out := v.clone()
	out.mustSet(k, val)
	return out
}

// Map returns a shallow copy as a plain map.
func (v Values) Map() map[string]any {
	if v.om == nil {
		return nil
	}
	out := make(map[string]any, v.om.Len())
	v.Range(func(k string, val any) bool {
		out[k] = val
		return true
	})
	return out
}

// Equal reports whether both mappings hold the same keys in the same order
// with equal values. Absent and empty are different.
func (v Values) Equal(o Values) bool {
	if v.IsZero() != o.IsZero() || v.Len() != o.Len() {
		return false
	}
	if v.om == nil {
		return true
	}
	for a, b := v.om.Oldest(), o.om.Oldest(); a != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || !valueEqual(a.Value, b.Value) {
			return false
		}
	}
	return true
}

func (v Values) clone() Values {
	out := Values{om: orderedmap.New[string, any](v.Len() + 1)}
	v.Range(func(k string, val any) bool {
		out.om.Set(k, val)
		return true
	})
	return out
}

// MarshalJSON writes an object with keys in insertion order; absent is null.
func (v Values) MarshalJSON() ([]byte, error) {
	if v.om == nil {
		return []byte("null"), nil
	}
	return v.om.MarshalJSON()
}

// UnmarshalJSON reads an object preserving key order, nested objects
// included. Numbers decode as json.Number. null leaves v absent.
func (v *Values) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = Values{}
		return nil
	}
	if len(b) == 0 || b[0] != '{' {
		return fmt.Errorf("xmsg: values must be a JSON object, got %.20q", b)
	}
	raw := orderedmap.New[string, json.RawMessage]()
	if err := raw.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("xmsg: values: %w", err)
	}
	out := Values{om: orderedmap.New[string, any](raw.Len())}
	for p := raw.Oldest(); p != nil; p = p.Next() {
		val, err := decodeValue(p.Value)
		if err != nil {
			return fmt.Errorf("xmsg: value %q: %w", p.Key, err)
		}
		out.om.Set(p.Key, val)
	}
	*v = out
	return nil
}

func normalize(val any) (any, error) {
	switch x := val.(type) {
	case nil, bool, string:
		return x, nil
	case json.Number:
		if _, err := strconv.ParseFloat(string(x), 64); err != nil {
			return nil, fmt.Errorf("invalid number %q", string(x))
		}
		return x, nil
	case int:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int8:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(x, 10)), nil
	case uint:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint8:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return json.Number(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(x, 10)), nil
	case float32, float64:
		// encoding/json picks the shortest form for the float's own width.
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return json.Number(b), nil
	case Values:
		if x.IsZero() {
			return nil, nil
		}
		return x, nil
	case map[string]any:
		if x == nil {
			return nil, nil
		}
		return valuesFromMap(x)
	case []any:
		if x == nil {
			return nil, nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return decodeValue(b)
}

// decodeValue turns one JSON value into its normalized form.
func decodeValue(raw []byte) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch raw[0] {
	case '{':
		var v Values
		if err := v.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return v, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			e, err := decodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case Values:
		y, ok := b.(Values)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	switch b.(type) {
	case Values, []any:
		return false
	}
	return a == b
}
