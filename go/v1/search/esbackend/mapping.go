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

package esbackend

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
)

// PropertyMapping is one entry of an Elasticsearch mapping, value or object.
type PropertyMapping struct {
	Type           string                      `json:"type,omitempty"`
	Index          *bool                       `json:"index,omitempty"`
	Norms          *bool                       `json:"norms,omitempty"`
	DocValues      *bool                       `json:"doc_values,omitempty"`
	NullValue      interface{}                 `json:"null_value,omitempty"`
	Analyzer       string                      `json:"analyzer,omitempty"`
	SearchAnalyzer string                      `json:"search_analyzer,omitempty"`
	Normalizer     string                      `json:"normalizer,omitempty"`
	Format         string                      `json:"format,omitempty"`
	ScalingFactor  *float64                    `json:"scaling_factor,omitempty"`
	Fielddata      *bool                       `json:"fielddata,omitempty"`
	Properties     map[string]*PropertyMapping `json:"properties,omitempty"`
	Fields         map[string]*PropertyMapping `json:"fields,omitempty"`
	Dynamic        string                      `json:"dynamic,omitempty"`
}

// TypeMapping is the root mapping of an index.
type TypeMapping struct {
	Dynamic    string                      `json:"dynamic,omitempty"`
	Properties map[string]*PropertyMapping `json:"properties,omitempty"`
}

const (
	esTypeObject  = "object"
	esTypeNested  = "nested"
	dynamicStrict = "strict"
)

// BuildTypeMapping renders the mapping of an index from its schema. Documents are only ever
// written through the schema, so dynamic fields are refused.
func BuildTypeMapping(schema *search.IndexSchema) (*TypeMapping, error) {
	var errs *multierror.Error
	properties := buildProperties(schema.Root(), &errs)
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindBootstrap,
			Message: "invalid Elasticsearch mapping",
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}

	return &TypeMapping{
		Dynamic:    dynamicStrict,
		Properties: properties,
	}, nil
}

func buildProperties(object *search.ObjectField, errs **multierror.Error) map[string]*PropertyMapping {
	properties := map[string]*PropertyMapping{}
	for _, field := range object.ValueFields() {
		metadata, ok := field.Type().Metadata().(*PropertyMapping)
		if !ok {
			*errs = multierror.Append(*errs, fmt.Errorf("field '%s' has no Elasticsearch mapping", field.AbsolutePath()))
			continue
		}
		property := *metadata
		properties[field.RelativeName()] = &property
	}

	for _, child := range object.ObjectFields() {
		esType := esTypeObject
		if child.Nested() {
			esType = esTypeNested
		}
		properties[child.RelativeName()] = &PropertyMapping{
			Type:       esType,
			Dynamic:    dynamicStrict,
			Properties: buildProperties(child, errs),
		}
	}

	return properties
}
