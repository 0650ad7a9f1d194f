// Package rowcodec implements the schema-aware but deserialization-agnostic
// row encoding of spec.md §4.4: serialize/deserialize a self-describing
// document to/from a compact binary form, preserving every field (including
// _uid) across a round trip.
//
// Row is expressed as a capability set (Field, TableName) per Design Note
// §9, with Encode and Decode as package functions: the planner and executor
// only ever touch this interface, never the concrete representation.
//
// The wire format is the teacher's own choice of serializer: a
// bin.NewBorshEncoder/NewBorshDecoder pair (bucketteer/write.go,
// indexmeta/indexmeta.go) rather than hand-rolled encoding/binary calls.
// Borsh itself is schema-free at this level — the encoder only ever writes
// primitives (uint32 length prefixes, raw bytes, a bool byte, a float64) in
// the order this package chooses, the same way the original's
// BorshRowSerializer serialized an arbitrary serde_json::Value one field at
// a time instead of a statically-typed struct.
package rowcodec

import (
	"bytes"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"

	"github.com/charmful0x/schema-js/internal/schema"
)

// Row is the capability set the query executor and index manager use to
// inspect and persist a decoded document without knowing its concrete type.
type Row interface {
	Field(name string) (any, bool)
	TableName() string
}

// DocumentRow is the one concrete Row implementation required by this
// specification (Design Note §9).
type DocumentRow struct {
	Table string
	Doc   schema.Document
}

func (r *DocumentRow) Field(name string) (any, bool) {
	v, ok := r.Doc[name]
	return v, ok
}

func (r *DocumentRow) TableName() string { return r.Table }

// value type tags. float64, float32, int and int64 fields are normalized to
// float64 on encode (the same convention encoding/json uses for interface{}
// destinations), so a round trip returns float64 for any of them; other Go
// numeric types (int32, uint, ...) are rejected by Encode.
const (
	tagNil byte = iota
	tagString
	tagBool
	tagFloat64
)

// Encode serializes doc as a field-count header followed by
// (name, type-tag, value) tuples, fields sorted by name for a stable
// byte-for-byte encoding.
func Encode(doc schema.Document) ([]byte, error) {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteUint32(uint32(len(names)), bin.LE); err != nil {
		return nil, fmt.Errorf("rowcodec: write field count: %w", err)
	}
	for _, name := range names {
		if err := enc.WriteString(name); err != nil {
			return nil, fmt.Errorf("rowcodec: field %q: write name: %w", name, err)
		}
		if err := encodeValue(enc, doc[name]); err != nil {
			return nil, fmt.Errorf("rowcodec: field %q: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *bin.Encoder, v any) error {
	switch val := v.(type) {
	case nil:
		return enc.WriteUint8(tagNil)
	case string:
		if err := enc.WriteUint8(tagString); err != nil {
			return err
		}
		return enc.WriteString(val)
	case bool:
		if err := enc.WriteUint8(tagBool); err != nil {
			return err
		}
		return enc.WriteBool(val)
	case float64:
		if err := enc.WriteUint8(tagFloat64); err != nil {
			return err
		}
		return enc.WriteFloat64(val, bin.LE)
	case float32:
		if err := enc.WriteUint8(tagFloat64); err != nil {
			return err
		}
		return enc.WriteFloat64(float64(val), bin.LE)
	case int:
		if err := enc.WriteUint8(tagFloat64); err != nil {
			return err
		}
		return enc.WriteFloat64(float64(val), bin.LE)
	case int64:
		if err := enc.WriteUint8(tagFloat64); err != nil {
			return err
		}
		return enc.WriteFloat64(float64(val), bin.LE)
	default:
		return fmt.Errorf("unsupported field value type %T", v)
	}
}

// Decode parses bytes previously produced by Encode into a Document.
func Decode(b []byte) (schema.Document, error) {
	dec := bin.NewBorshDecoder(b)
	count, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("rowcodec: read field count: %w", err)
	}
	doc := make(schema.Document, count)
	for i := uint32(0); i < count; i++ {
		name, err := dec.ReadString()
		if err != nil {
			return nil, fmt.Errorf("rowcodec: read field name: %w", err)
		}
		tag, err := dec.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("rowcodec: read tag for field %q: %w", name, err)
		}
		switch tag {
		case tagNil:
			doc[name] = nil
		case tagString:
			s, err := dec.ReadString()
			if err != nil {
				return nil, fmt.Errorf("rowcodec: read string for field %q: %w", name, err)
			}
			doc[name] = s
		case tagBool:
			v, err := dec.ReadBool()
			if err != nil {
				return nil, fmt.Errorf("rowcodec: read bool for field %q: %w", name, err)
			}
			doc[name] = v
		case tagFloat64:
			f, err := dec.ReadFloat64(bin.LE)
			if err != nil {
				return nil, fmt.Errorf("rowcodec: read float for field %q: %w", name, err)
			}
			doc[name] = f
		default:
			return nil, fmt.Errorf("rowcodec: unknown type tag %d for field %q", tag, name)
		}
	}
	return doc, nil
}
