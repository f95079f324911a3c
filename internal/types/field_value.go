package types

import "fmt"

// FieldValue is a tagged union over the scalar and list value types an
// operation field may hold. Only the member matching Type is meaningful.
type FieldValue struct {
	Type SchemaFieldType

	Bool bool
	// Int holds a u64 rendered as a decimal string — this sidesteps SQLite's
	// signed 64-bit column and Go's own int64 range when values exceed it.
	Int            string
	Float          float64
	Str            string
	Bytes          []byte
	Relation       DocumentID
	PinnedRelation ViewID
	List           []FieldValue
}

// BoolValue, IntValue, ... are constructors kept terse for call sites in
// the materializer and test fixtures.
func BoolValue(v bool) FieldValue   { return FieldValue{Type: FieldTypeBool, Bool: v} }
func IntValue(v string) FieldValue  { return FieldValue{Type: FieldTypeInt, Int: v} }
func FloatValue(v float64) FieldValue { return FieldValue{Type: FieldTypeFloat, Float: v} }
func StringValue(v string) FieldValue { return FieldValue{Type: FieldTypeString, Str: v} }
func BytesValue(v []byte) FieldValue  { return FieldValue{Type: FieldTypeBytes, Bytes: v} }

func RelationValue(v DocumentID) FieldValue {
	return FieldValue{Type: FieldTypeRelation, Relation: v}
}

func PinnedRelationValue(v ViewID) FieldValue {
	return FieldValue{Type: FieldTypePinnedRelation, PinnedRelation: v}
}

func ListValue(items []FieldValue) FieldValue {
	return FieldValue{Type: FieldTypeList, List: items}
}

// Equal reports whether two field values are structurally identical. Used
// by the materializer's idempotency checks (reduce ∘ reduce = reduce).
func (v FieldValue) Equal(other FieldValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case FieldTypeBool:
		return v.Bool == other.Bool
	case FieldTypeInt:
		return v.Int == other.Int
	case FieldTypeFloat:
		return v.Float == other.Float
	case FieldTypeString:
		return v.Str == other.Str
	case FieldTypeBytes:
		return string(v.Bytes) == string(other.Bytes)
	case FieldTypeRelation:
		return v.Relation == other.Relation
	case FieldTypePinnedRelation:
		return v.PinnedRelation == other.PinnedRelation
	case FieldTypeList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for logging and cursor derivation. It is not a
// wire format.
func (v FieldValue) String() string {
	switch v.Type {
	case FieldTypeBool:
		return fmt.Sprintf("%t", v.Bool)
	case FieldTypeInt:
		return v.Int
	case FieldTypeFloat:
		return fmt.Sprintf("%g", v.Float)
	case FieldTypeString:
		return v.Str
	case FieldTypeBytes:
		return fmt.Sprintf("%x", v.Bytes)
	case FieldTypeRelation:
		return string(v.Relation)
	case FieldTypePinnedRelation:
		return string(v.PinnedRelation)
	case FieldTypeList:
		out := "["
		for i, item := range v.List {
			if i > 0 {
				out += ","
			}
			out += item.String()
		}
		return out + "]"
	default:
		return ""
	}
}

// Relations returns every document/view id a field value points at,
// flattening lists. Used by the dependency task to discover missing
// materializations.
func (v FieldValue) Relations() (documents []DocumentID, views []ViewID) {
	switch v.Type {
	case FieldTypeRelation:
		documents = append(documents, v.Relation)
	case FieldTypePinnedRelation:
		views = append(views, v.PinnedRelation)
	case FieldTypeList:
		for _, item := range v.List {
			d, vw := item.Relations()
			documents = append(documents, d...)
			views = append(views, vw...)
		}
	}
	return documents, views
}
