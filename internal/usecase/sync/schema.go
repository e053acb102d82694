package sync

import (
	"fmt"
	"strconv"
)

// FieldKind is the declared type of a metadata field.
type FieldKind string

// Supported metadata field kinds.
const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
)

// CategorySchema declares the expected kind of known metadata fields for
// one document category. Fields not declared here stay an open map.
type CategorySchema map[string]FieldKind

// MetadataSchema maps a category to its declared metadata fields.
// Validation happens at write time; reads trust the stored values.
type MetadataSchema map[string]CategorySchema

// ParseMetadataSchema builds a MetadataSchema from raw configuration,
// rejecting unknown field kinds.
func ParseMetadataSchema(raw map[string]map[string]string) (MetadataSchema, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	schema := make(MetadataSchema, len(raw))
	for category, fields := range raw {
		cs := make(CategorySchema, len(fields))
		for name, kind := range fields {
			k := FieldKind(kind)
			switch k {
			case KindString, KindNumber, KindBool:
				cs[name] = k
			default:
				return nil, fmt.Errorf("metadata schema %s.%s: unknown kind %q", category, name, kind)
			}
		}
		schema[category] = cs
	}
	return schema, nil
}

// Check validates metadata against the category's declared fields, dropping
// mismatched values from the map. Returns one note per dropped field.
// Undeclared fields and unknown categories pass untouched.
func (s MetadataSchema) Check(id, category string, metadata map[string]string) []ItemError {
	cs, ok := s[category]
	if !ok {
		return nil
	}

	var notes []ItemError
	for name, kind := range cs {
		v, present := metadata[name]
		if !present {
			continue
		}
		if kindMatches(kind, v) {
			continue
		}
		delete(metadata, name)
		notes = append(notes, ItemError{
			DocumentID: id,
			Field:      "metadata." + name,
			Message:    fmt.Sprintf("not a %s: %q", kind, v),
		})
	}
	return notes
}

func kindMatches(kind FieldKind, v string) bool {
	switch kind {
	case KindNumber:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case KindBool:
		_, err := strconv.ParseBool(v)
		return err == nil
	default:
		return true
	}
}
