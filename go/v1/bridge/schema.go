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

package bridge

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/embedded"
	"github.com/rode/search-bridge/go/v1/search/esbackend"
)

// FieldTypeFunc creates the field type a field configuration declares.
type FieldTypeFunc func(field *config.FieldConfig) (*search.IndexValueFieldType, error)

type fieldTypeOptions[O any] interface {
	Searchable(searchable bool) O
	Sortable(sortable bool) O
	Projectable(projectable bool) O
	Aggregable(aggregable bool) O
	Normalizer(name string) O
	ToIndexFieldType() (*search.IndexValueFieldType, error)
}

// configure applies the capabilities left unset to the backend defaults.
func configure[O fieldTypeOptions[O]](options O, field *config.FieldConfig) (*search.IndexValueFieldType, error) {
	if field.Searchable != nil {
		options.Searchable(*field.Searchable)
	}
	if field.Sortable != nil {
		options.Sortable(*field.Sortable)
	}
	if field.Projectable != nil {
		options.Projectable(*field.Projectable)
	}
	if field.Aggregable != nil {
		options.Aggregable(*field.Aggregable)
	}
	if field.Normalizer != "" {
		options.Normalizer(field.Normalizer)
	}

	return options.ToIndexFieldType()
}

func ElasticsearchFieldTypes(types *esbackend.FieldTypeFactory) FieldTypeFunc {
	return func(field *config.FieldConfig) (*search.IndexValueFieldType, error) {
		var options *esbackend.FieldTypeOptions
		switch field.Type {
		case "string":
			options = types.AsString()
		case "text":
			options = types.AsText(field.Analyzer)
		case "boolean":
			options = types.AsBoolean()
		case "integer":
			options = types.AsInteger()
		case "long":
			options = types.AsLong()
		case "double":
			options = types.AsDouble()
		case "decimal":
			options = types.AsDecimal(int32(field.Scale))
		case "date":
			options = types.AsDate(field.Format...)
		case "geo_point":
			options = types.AsGeoPoint()
		default:
			return nil, fmt.Errorf("unknown field type %s", field.Type)
		}

		return configure(options, field)
	}
}

func EmbeddedFieldTypes(types *embedded.FieldTypeFactory) FieldTypeFunc {
	return func(field *config.FieldConfig) (*search.IndexValueFieldType, error) {
		if len(field.Format) > 0 {
			return nil, fmt.Errorf("date formats are not supported by the embedded backend")
		}

		var options *embedded.FieldTypeOptions
		switch field.Type {
		case "string":
			options = types.AsString()
		case "text":
			options = types.AsText(field.Analyzer)
		case "boolean":
			options = types.AsBoolean()
		case "integer":
			options = types.AsInteger()
		case "long":
			options = types.AsLong()
		case "double":
			options = types.AsDouble()
		case "decimal":
			options = types.AsDecimal(int32(field.Scale))
		case "date":
			options = types.AsDate()
		case "geo_point":
			options = types.AsGeoPoint()
		default:
			return nil, fmt.Errorf("unknown field type %s", field.Type)
		}

		return configure(options, field)
	}
}

var objectStructures = map[string]search.ObjectStructure{
	"":          search.ObjectStructureDefault,
	"default":   search.ObjectStructureDefault,
	"flattened": search.ObjectStructureFlattened,
	"nested":    search.ObjectStructureNested,
}

// NewSchema builds the schema an index configuration declares. Objects enclosing a field are
// created with the default structure unless the configuration declares them.
func NewSchema(backendName string, index *config.IndexConfig, fieldTypes FieldTypeFunc) (*search.IndexSchema, error) {
	b := search.NewIndexSchemaBuilder(backendName, index.Name)
	declared := map[string]*config.ObjectConfig{}
	for _, o := range index.Objects {
		declared[o.Path] = o
	}
	objects := map[string]*search.ObjectFieldBuilder{"": b.Root()}

	var object func(path string) *search.ObjectFieldBuilder
	object = func(path string) *search.ObjectFieldBuilder {
		if o, ok := objects[path]; ok {
			return o
		}
		parent, name := split(path)
		structure := search.ObjectStructureDefault
		multiValued := false
		if o, ok := declared[path]; ok {
			structure = objectStructures[o.Structure]
			multiValued = o.MultiValued
		}
		o := object(parent).Object(name, structure)
		if multiValued {
			o.MultiValued()
		}
		objects[path] = o

		return o
	}

	for _, o := range index.Objects {
		object(o.Path)
	}

	var errs *multierror.Error
	for _, field := range index.Fields {
		fieldType, err := fieldTypes(field)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %s: %w", field.Path, err))
			continue
		}
		parent, name := split(field.Path)
		f := object(parent).Field(name, fieldType)
		if field.MultiValued {
			f.MultiValued()
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindBootstrap,
			Message: "invalid field configuration",
			Context: search.EventContext{Indexes: []string{index.Name}},
			Err:     err,
		}
	}

	return b.Build()
}

func split(path string) (string, string) {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return "", path
	}

	return path[:i], path[i+1:]
}
