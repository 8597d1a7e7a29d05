// Package codec converts between typed entity instances and their JSON
// representation, driven entirely by catalog descriptors. It also owns the
// canonical reference-string scheme used to address instances externally.
package codec

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"arena/internal/catalog"
	"arena/internal/core/apperror"
)

// RefKey is the reserved top-level JSON key carrying an instance's reference.
const RefKey = "_ref"

// refSeparator joins primary-key values in a reference string.
const refSeparator = "_"

// FormatKey renders a primary key as its canonical reference string: the
// decimal values joined in column-declaration order.
func FormatKey(key catalog.Key) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, refSeparator)
}

// FormatRef returns the canonical reference string of an instance.
func FormatRef(inst *catalog.Instance) string {
	return FormatKey(inst.Key)
}

// ParseKey splits a reference string into a primary key for the given
// entity. It requires exactly as many parts as primary-key columns, each a
// decimal integer.
func ParseKey(desc *catalog.Descriptor, ref string) (catalog.Key, error) {
	parts := strings.Split(ref, refSeparator)
	if len(parts) != len(desc.PrimaryKey) {
		return nil, apperror.NewInvalidReference(desc.Table, ref)
	}
	key := make(catalog.Key, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, apperror.NewInvalidReference(desc.Table, ref)
		}
		key[i] = v
	}
	return key, nil
}

// ParseRef resolves a reference string to a live instance via the resolver.
// It fails with NotFound if no such row exists.
func ParseRef(ctx context.Context, desc *catalog.Descriptor, ref string, res catalog.Resolver) (*catalog.Instance, error) {
	key, err := ParseKey(desc, ref)
	if err != nil {
		return nil, err
	}
	inst, err := res.Resolve(ctx, desc, key)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, apperror.NewNotFound(desc.Table, ref)
	}
	return inst, nil
}

// Encode renders an instance as a JSON-safe map. The map always carries
// RefKey; scalar columns follow their semantic-type rule; owning to-one
// relationships are embedded as reference strings. Primary-key and
// foreign-key columns never appear as plain scalars.
func Encode(inst *catalog.Instance) (map[string]any, error) {
	content := make(map[string]any, len(inst.Desc.Columns)+len(inst.Desc.Relationships)+1)
	content[RefKey] = FormatRef(inst)

	for _, col := range inst.Desc.Columns {
		val := inst.Columns[col.Key]
		if val == nil {
			content[col.Key] = nil
			continue
		}
		enc, err := encodeValue(col, val)
		if err != nil {
			return nil, err
		}
		content[col.Key] = enc
	}

	for _, rel := range inst.Desc.Relationships {
		if !rel.Owning() {
			continue
		}
		ref, ok := foreignRef(inst, rel)
		if !ok {
			content[rel.Key] = nil
			continue
		}
		content[rel.Key] = ref
	}

	return content, nil
}

// foreignRef builds the reference string held by an owning relationship's
// FK columns. Returns false if any component is NULL.
func foreignRef(inst *catalog.Instance, rel catalog.Relationship) (string, bool) {
	key := make(catalog.Key, len(rel.ForeignKey))
	for i, col := range rel.ForeignKey {
		v, ok := inst.Columns[col].(int64)
		if !ok {
			return "", false
		}
		key[i] = v
	}
	return FormatKey(key), true
}

func encodeValue(col catalog.Column, val any) (any, error) {
	switch col.Type {
	case catalog.Bool:
		v, ok := val.(bool)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return v, nil
	case catalog.Int:
		v, ok := val.(int64)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return v, nil
	case catalog.Float:
		v, ok := val.(float64)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return v, nil
	case catalog.Latin1:
		v, ok := val.([]byte)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return latin1Decode(v), nil
	case catalog.Unicode:
		v, ok := val.(string)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return v, nil
	case catalog.Timestamp:
		v, ok := val.(time.Time)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return float64(v.UnixMicro()) / 1e6, nil
	case catalog.Duration:
		v, ok := val.(time.Duration)
		if !ok {
			return nil, apperror.NewInternal(typeErr(col.Key, val))
		}
		return v.Seconds(), nil
	}
	return nil, apperror.NewInternal(typeErr(col.Key, val))
}

func typeErr(key string, val any) error {
	return &valueError{key: key, val: val}
}

type valueError struct {
	key string
	val any
}

func (e *valueError) Error() string {
	return "codec: column " + e.key + ": unexpected stored value type"
}

// Decode type-checks a raw JSON object against the descriptor and returns
// typed column values and resolved relationship values. It never mutates
// target state itself: the caller applies both maps atomically.
//
// Relationship values are *catalog.Instance (to-one), []*catalog.Instance
// (to-many-list) or map[string]*catalog.Instance (to-many-keyed); a JSON
// null yields an untyped nil meaning "clear".
func Decode(ctx context.Context, desc *catalog.Descriptor, content map[string]any, res catalog.Resolver) (map[string]any, map[string]any, error) {
	cols := make(map[string]any)
	rels := make(map[string]any)

	for key, raw := range content {
		if col, ok := desc.Column(key); ok {
			if raw == nil {
				cols[key] = nil
				continue
			}
			val, err := decodeValue(col, raw)
			if err != nil {
				return nil, nil, err
			}
			cols[key] = val
			continue
		}

		if rel, ok := desc.Relationship(key); ok {
			if raw == nil {
				rels[key] = nil
				continue
			}
			val, err := decodeRelationship(ctx, rel, key, raw, res)
			if err != nil {
				return nil, nil, err
			}
			rels[key] = val
			continue
		}

		return nil, nil, apperror.NewUnknownField(key)
	}

	return cols, rels, nil
}

func decodeValue(col catalog.Column, raw any) (any, error) {
	switch col.Type {
	case catalog.Bool:
		v, ok := raw.(bool)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "boolean", jsonTypeName(raw))
		}
		return v, nil
	case catalog.Int:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "integer", jsonTypeName(raw))
		}
		v, err := n.Int64()
		if err != nil {
			return nil, apperror.NewTypeMismatch(col.Key, "integer", "number")
		}
		return v, nil
	case catalog.Float:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "number", jsonTypeName(raw))
		}
		v, err := n.Float64()
		if err != nil {
			return nil, apperror.NewTypeMismatch(col.Key, "number", "string")
		}
		return v, nil
	case catalog.Latin1:
		s, ok := raw.(string)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "string", jsonTypeName(raw))
		}
		b, err := latin1Encode(s)
		if err != nil {
			return nil, apperror.NewTypeMismatch(col.Key, "latin1 string", "string")
		}
		return b, nil
	case catalog.Unicode:
		s, ok := raw.(string)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "string", jsonTypeName(raw))
		}
		return s, nil
	case catalog.Timestamp:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "number", jsonTypeName(raw))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, apperror.NewTypeMismatch(col.Key, "number", "string")
		}
		return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), nil
	case catalog.Duration:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, apperror.NewTypeMismatch(col.Key, "number", jsonTypeName(raw))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, apperror.NewTypeMismatch(col.Key, "number", "string")
		}
		return time.Duration(math.Round(f * float64(time.Second))), nil
	}
	return nil, apperror.NewTypeMismatch(col.Key, string(col.Type), jsonTypeName(raw))
}

func decodeRelationship(ctx context.Context, rel catalog.Relationship, key string, raw any, res catalog.Resolver) (any, error) {
	// The registry is validated at build time, so the target always exists.
	target := rel.TargetDescriptor()

	resolve := func(v any) (*catalog.Instance, error) {
		ref, ok := v.(string)
		if !ok {
			return nil, apperror.NewTypeMismatch(key, "reference string", jsonTypeName(v))
		}
		inst, err := ParseRef(ctx, target, ref, res)
		if err != nil {
			return nil, apperror.NewInvalidReference(key, ref).WithCause(err)
		}
		return inst, nil
	}

	switch rel.Cardinality {
	case catalog.One:
		return resolve(raw)
	case catalog.List:
		items, ok := raw.([]any)
		if !ok {
			return nil, apperror.NewTypeMismatch(key, "array of references", jsonTypeName(raw))
		}
		out := make([]*catalog.Instance, 0, len(items))
		for _, item := range items {
			inst, err := resolve(item)
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		}
		return out, nil
	case catalog.Keyed:
		items, ok := raw.(map[string]any)
		if !ok {
			return nil, apperror.NewTypeMismatch(key, "object of references", jsonTypeName(raw))
		}
		out := make(map[string]*catalog.Instance, len(items))
		for label, item := range items {
			inst, err := resolve(item)
			if err != nil {
				return nil, err
			}
			out[label] = inst
		}
		return out, nil
	}
	return nil, apperror.NewUnknownField(key)
}

// jsonTypeName names the dynamic JSON type of a decoded value, for error
// messages.
func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}

// latin1Decode maps each byte to the unicode codepoint with the same value.
func latin1Decode(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// latin1Encode is the inverse mapping; it fails on codepoints above U+00FF.
func latin1Encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, errors.New("codec: codepoint outside latin1 range")
		}
		out = append(out, byte(r))
	}
	return out, nil
}
