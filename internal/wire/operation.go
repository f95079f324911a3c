// Package wire holds the CBOR encode/decode boundary for entries,
// operations and replication messages: CBOR operation encoding and
// Bamboo-style entry encoding, built on the fxamacker/cbor codec rather
// than a hand-rolled one.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// operationWire is the CBOR-serializable shape of types.Operation. Field
// names are short to mirror the compact encoding real p2p log formats use.
type operationWire struct {
	Action   string              `cbor:"action"`
	SchemaID string              `cbor:"schema_id"`
	Previous []string            `cbor:"previous,omitempty"`
	Fields   map[string]fieldWire `cbor:"fields,omitempty"`
}

type fieldWire struct {
	Type  string      `cbor:"type"`
	Value cbor.RawMessage `cbor:"value"`
}

// EncodeOperation serializes an operation to CBOR bytes. The result is
// what entry.payload_hash must hash to, and what an entry's payload
// carries on the wire.
func EncodeOperation(op *types.Operation) ([]byte, error) {
	w := operationWire{
		Action:   string(op.Action),
		SchemaID: string(op.SchemaID),
		Fields:   make(map[string]fieldWire, len(op.Fields)),
	}
	for _, p := range op.Previous {
		w.Previous = append(w.Previous, string(p))
	}
	for name, fv := range op.Fields {
		raw, typ, err := encodeFieldValue(fv)
		if err != nil {
			return nil, fmt.Errorf("wire: encode field %q: %w", name, err)
		}
		w.Fields[name] = fieldWire{Type: typ, Value: raw}
	}
	out, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal operation: %w", err)
	}
	return out, nil
}

// DecodeOperation parses CBOR operation bytes. The caller must supply the
// operation id (the validator derives it as the hash of the operation
// bytes) since the id itself is not part of the encoded payload.
func DecodeOperation(data []byte) (*types.Operation, error) {
	var w operationWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wire: unmarshal operation: %w", err)
	}
	op := &types.Operation{
		Action:       types.Action(w.Action),
		SchemaID:     types.SchemaID(w.SchemaID),
		Fields:       make(map[string]types.FieldValue, len(w.Fields)),
		EncodedBytes: data,
	}
	for _, p := range w.Previous {
		op.Previous = append(op.Previous, types.OperationID(p))
	}
	for name, fw := range w.Fields {
		fv, err := decodeFieldValue(fw)
		if err != nil {
			return nil, fmt.Errorf("wire: decode field %q: %w", name, err)
		}
		op.Fields[name] = fv
	}
	return op, nil
}

func encodeFieldValue(fv types.FieldValue) (cbor.RawMessage, string, error) {
	var raw []byte
	var err error
	switch fv.Type {
	case types.FieldTypeBool:
		raw, err = cbor.Marshal(fv.Bool)
	case types.FieldTypeInt:
		raw, err = cbor.Marshal(fv.Int)
	case types.FieldTypeFloat:
		raw, err = cbor.Marshal(fv.Float)
	case types.FieldTypeString:
		raw, err = cbor.Marshal(fv.Str)
	case types.FieldTypeBytes:
		raw, err = cbor.Marshal(fv.Bytes)
	case types.FieldTypeRelation:
		raw, err = cbor.Marshal(string(fv.Relation))
	case types.FieldTypePinnedRelation:
		raw, err = cbor.Marshal(string(fv.PinnedRelation))
	case types.FieldTypeList:
		items := make([]fieldWire, 0, len(fv.List))
		for _, item := range fv.List {
			r, t, ierr := encodeFieldValue(item)
			if ierr != nil {
				return nil, "", ierr
			}
			items = append(items, fieldWire{Type: t, Value: r})
		}
		raw, err = cbor.Marshal(items)
	default:
		return nil, "", fmt.Errorf("wire: unknown field type %q", fv.Type)
	}
	if err != nil {
		return nil, "", err
	}
	return raw, string(fv.Type), nil
}

func decodeFieldValue(fw fieldWire) (types.FieldValue, error) {
	switch types.SchemaFieldType(fw.Type) {
	case types.FieldTypeBool:
		var v bool
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.BoolValue(v), nil
	case types.FieldTypeInt:
		var v string
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.IntValue(v), nil
	case types.FieldTypeFloat:
		var v float64
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.FloatValue(v), nil
	case types.FieldTypeString:
		var v string
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.StringValue(v), nil
	case types.FieldTypeBytes:
		var v []byte
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.BytesValue(v), nil
	case types.FieldTypeRelation:
		var v string
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.RelationValue(types.DocumentID(v)), nil
	case types.FieldTypePinnedRelation:
		var v string
		if err := cbor.Unmarshal(fw.Value, &v); err != nil {
			return types.FieldValue{}, err
		}
		return types.PinnedRelationValue(types.ViewID(v)), nil
	case types.FieldTypeList:
		var items []fieldWire
		if err := cbor.Unmarshal(fw.Value, &items); err != nil {
			return types.FieldValue{}, err
		}
		out := make([]types.FieldValue, 0, len(items))
		for _, item := range items {
			v, err := decodeFieldValue(item)
			if err != nil {
				return types.FieldValue{}, err
			}
			out = append(out, v)
		}
		return types.ListValue(out), nil
	default:
		return types.FieldValue{}, fmt.Errorf("wire: unknown field type %q", fw.Type)
	}
}
