package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetaKind is the type tag of a MetaValue
type MetaKind int

const (
	MetaString MetaKind = iota
	MetaNumber
	MetaBool
	MetaNested
)

// MetaValue is a typed variant for free-form strategy metadata
// 개방형 dynamic object 대신 타입 태그가 붙은 값으로 표현
type MetaValue struct {
	Kind   MetaKind
	Str    string
	Num    float64
	Bool   bool
	Nested MetaMap
}

// MetaEntry is one key/value pair of a MetaMap
type MetaEntry struct {
	Key   string
	Value MetaValue
}

// MetaMap is an insertion-ordered string-keyed mapping.
// 필수 키 검증은 전략별 정책이고 여기서는 구조만 책임짐
type MetaMap []MetaEntry

// String constructs a string MetaValue
func String(s string) MetaValue { return MetaValue{Kind: MetaString, Str: s} }

// Number constructs a numeric MetaValue
func Number(n float64) MetaValue { return MetaValue{Kind: MetaNumber, Num: n} }

// Bool constructs a boolean MetaValue
func Bool(b bool) MetaValue { return MetaValue{Kind: MetaBool, Bool: b} }

// Nested constructs a nested-mapping MetaValue
func Nested(m MetaMap) MetaValue { return MetaValue{Kind: MetaNested, Nested: m} }

// Get returns the value for key and whether it exists
func (m MetaMap) Get(key string) (MetaValue, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return MetaValue{}, false
}

// Set replaces the value for key, appending when absent (순서 유지)
func (m MetaMap) Set(key string, v MetaValue) MetaMap {
	for i, e := range m {
		if e.Key == key {
			m[i].Value = v
			return m
		}
	}
	return append(m, MetaEntry{Key: key, Value: v})
}

// Clone returns a deep copy
func (m MetaMap) Clone() MetaMap {
	if m == nil {
		return nil
	}
	cp := make(MetaMap, len(m))
	for i, e := range m {
		cp[i] = e
		if e.Value.Kind == MetaNested {
			cp[i].Value.Nested = e.Value.Nested.Clone()
		}
	}
	return cp
}

// MarshalJSON serializes the map as a JSON object in insertion order
func (m MetaMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := e.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object preserving key order
func (m *MetaMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("meta: expected JSON object, got %v", tok)
	}

	out, err := decodeMetaObject(dec)
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON serializes a single variant value
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaString:
		return json.Marshal(v.Str)
	case MetaNumber:
		return json.Marshal(v.Num)
	case MetaBool:
		return json.Marshal(v.Bool)
	case MetaNested:
		return v.Nested.MarshalJSON()
	default:
		return nil, fmt.Errorf("meta: unknown kind %d", v.Kind)
	}
}

// UnmarshalJSON parses a single variant value
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	parsed, err := decodeMetaToken(dec, tok)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// decodeMetaObject reads entries until the closing brace
func decodeMetaObject(dec *json.Decoder) (MetaMap, error) {
	out := make(MetaMap, 0)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("meta: object key is not a string: %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, err := decodeMetaToken(dec, valTok)
		if err != nil {
			return nil, err
		}

		out = append(out, MetaEntry{Key: key, Value: val})
	}

	// Consume closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return out, nil
}

func decodeMetaToken(dec *json.Decoder, tok json.Token) (MetaValue, error) {
	switch t := tok.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return MetaValue{}, err
		}
		return Number(f), nil
	case json.Delim:
		if t == '{' {
			nested, err := decodeMetaObject(dec)
			if err != nil {
				return MetaValue{}, err
			}
			return Nested(nested), nil
		}
		return MetaValue{}, fmt.Errorf("meta: unsupported JSON value %v", t)
	default:
		return MetaValue{}, fmt.Errorf("meta: unsupported JSON value %v", tok)
	}
}
