// Copyright 2021 The Rode Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"reflect"
)

// FieldEncoder encodes one value of a value field into its stored representation.
type FieldEncoder func(field *ValueField, value interface{}) (interface{}, error)

// EncodeDocument walks document along the schema and encodes every value with encode. Keys that
// match no field are rejected, and only multi-valued fields and objects accept slices.
func EncodeDocument(schema *IndexSchema, document map[string]interface{}, encode FieldEncoder) (map[string]interface{}, error) {
	return encodeObject(schema, schema.Root(), document, encode)
}

func encodeObject(schema *IndexSchema, object *ObjectField, document map[string]interface{}, encode FieldEncoder) (map[string]interface{}, error) {
	indexes := []string{schema.IndexName()}
	encoded := make(map[string]interface{}, len(document))
	for name, value := range document {
		path := name
		if !object.IsRoot() {
			path = object.AbsolutePath() + "." + name
		}
		if value == nil {
			continue
		}

		if field, ok := schema.ValueField(path); ok {
			stored, err := encodeValues(field, value, encode)
			if err != nil {
				return nil, WithFieldContext(err, ErrorKindEncoding, indexes, path)
			}
			encoded[name] = stored
			continue
		}

		child, ok := schema.ObjectField(path)
		if !ok {
			return nil, NewFieldError(ErrorKindUnknownField, indexes, path, "unknown field '%s'", path)
		}
		switch v := value.(type) {
		case map[string]interface{}:
			stored, err := encodeObject(schema, child, v, encode)
			if err != nil {
				return nil, err
			}
			encoded[name] = stored
		case []map[string]interface{}:
			items := make([]interface{}, len(v))
			for i := range v {
				items[i] = v[i]
			}
			stored, err := encodeObjects(schema, child, items, encode)
			if err != nil {
				return nil, err
			}
			encoded[name] = stored
		case []interface{}:
			stored, err := encodeObjects(schema, child, v, encode)
			if err != nil {
				return nil, err
			}
			encoded[name] = stored
		default:
			return nil, NewFieldError(ErrorKindTypeMismatch, indexes, path, "'%s' is an object field, got a value of type '%T'", path, value)
		}
	}

	return encoded, nil
}

func encodeObjects(schema *IndexSchema, object *ObjectField, items []interface{}, encode FieldEncoder) ([]interface{}, error) {
	indexes := []string{schema.IndexName()}
	if !object.MultiValued() {
		return nil, NewFieldError(ErrorKindInvalidArgument, indexes, object.AbsolutePath(), "object field '%s' is not multi-valued", object.AbsolutePath())
	}

	stored := make([]interface{}, 0, len(items))
	for _, item := range items {
		document, ok := item.(map[string]interface{})
		if !ok {
			return nil, NewFieldError(ErrorKindTypeMismatch, indexes, object.AbsolutePath(), "'%s' is an object field, got a value of type '%T'", object.AbsolutePath(), item)
		}
		encoded, err := encodeObject(schema, object, document, encode)
		if err != nil {
			return nil, err
		}
		stored = append(stored, encoded)
	}

	return stored, nil
}

func encodeValues(field *ValueField, value interface{}, encode FieldEncoder) (interface{}, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return encode(field, value)
	}
	if !field.MultiValued() {
		return nil, NewError(ErrorKindInvalidArgument, "field '%s' is not multi-valued", field.AbsolutePath())
	}

	stored := make([]interface{}, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if item == nil {
			continue
		}
		encoded, err := encode(field, item)
		if err != nil {
			return nil, err
		}
		stored = append(stored, encoded)
	}

	return stored, nil
}
