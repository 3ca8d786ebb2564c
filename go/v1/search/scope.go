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
	"sort"
)

// IndexScope is the view of the indexes targeted by one query. It is created per query,
// is not safe for concurrent use and must not be reused across queries.
type IndexScope struct {
	backend        Backend
	schemas        []*IndexSchema
	names          []string
	convertContext ConvertContext

	valueFields  map[string]*ValueFieldContext
	objectFields map[string]*ObjectFieldContext
}

func NewIndexScope(backend Backend, schemas ...*IndexSchema) (*IndexScope, error) {
	if len(schemas) == 0 {
		return nil, NewError(ErrorKindInvalidArgument, "a search scope must target at least one index")
	}

	sorted := append([]*IndexSchema(nil), schemas...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].IndexName() < sorted[j].IndexName()
	})

	s := &IndexScope{
		backend:      backend,
		valueFields:  map[string]*ValueFieldContext{},
		objectFields: map[string]*ObjectFieldContext{},
	}
	for i, schema := range sorted {
		if i > 0 && sorted[i-1].IndexName() == schema.IndexName() {
			continue
		}
		if schema.BackendName() != backend.Name() {
			return nil, NewError(ErrorKindInvalidArgument, "index '%s' belongs to backend '%s' and cannot be searched with backend '%s'",
				schema.IndexName(), schema.BackendName(), backend.Name())
		}
		s.schemas = append(s.schemas, schema)
		s.names = append(s.names, schema.IndexName())
	}

	return s, nil
}

// WithConvertContext returns a scope over the same indexes handing ctx to converters.
func (s *IndexScope) WithConvertContext(ctx ConvertContext) *IndexScope {
	scoped := &IndexScope{
		backend:        s.backend,
		schemas:        s.schemas,
		names:          s.names,
		convertContext: ctx,
		valueFields:    map[string]*ValueFieldContext{},
		objectFields:   map[string]*ObjectFieldContext{},
	}

	return scoped
}

func (s *IndexScope) Backend() Backend {
	return s.backend
}

// IndexNames returns the targeted index names, sorted.
func (s *IndexScope) IndexNames() []string {
	return append([]string(nil), s.names...)
}

func (s *IndexScope) Schemas() []*IndexSchema {
	return append([]*IndexSchema(nil), s.schemas...)
}

func (s *IndexScope) ConvertContext() ConvertContext {
	return s.convertContext
}

func (s *IndexScope) targetsExactly(names []string) bool {
	if len(names) != len(s.names) {
		return false
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i := range sorted {
		if sorted[i] != s.names[i] {
			return false
		}
	}

	return true
}

// Field resolves a value field in every targeted index. The field may be missing from some
// indexes but not from all of them.
func (s *IndexScope) Field(absolutePath string) (*ValueFieldContext, error) {
	if f, ok := s.valueFields[absolutePath]; ok {
		return f, nil
	}

	f := &ValueFieldContext{
		scope:        s,
		absolutePath: absolutePath,
		factories:    map[string]interface{}{},
	}
	for _, schema := range s.schemas {
		if field, ok := schema.ValueField(absolutePath); ok {
			f.nodes = append(f.nodes, indexedValueField{index: schema.IndexName(), field: field})
			continue
		}
		if _, ok := schema.ObjectField(absolutePath); ok {
			return nil, NewFieldError(ErrorKindIncompatible, s.IndexNames(), absolutePath,
				"inconsistent field kind: '%s' is an object field in index '%s' but a value field is expected", absolutePath, schema.IndexName())
		}
	}
	if len(f.nodes) == 0 {
		if s.hasObjectField(absolutePath) {
			return nil, NewFieldError(ErrorKindInvalidArgument, s.IndexNames(), absolutePath,
				"'%s' is an object field; this operation requires a value field", absolutePath)
		}
		return nil, NewFieldError(ErrorKindUnknownField, s.IndexNames(), absolutePath, "unknown field '%s'", absolutePath)
	}

	s.valueFields[absolutePath] = f

	return f, nil
}

func (s *IndexScope) hasObjectField(absolutePath string) bool {
	for _, schema := range s.schemas {
		if _, ok := schema.ObjectField(absolutePath); ok {
			return true
		}
	}

	return false
}

// ObjectField resolves an object field in every targeted index.
func (s *IndexScope) ObjectField(absolutePath string) (*ObjectFieldContext, error) {
	if o, ok := s.objectFields[absolutePath]; ok {
		return o, nil
	}

	o := &ObjectFieldContext{absolutePath: absolutePath, targets: len(s.schemas)}
	for _, schema := range s.schemas {
		if object, ok := schema.ObjectField(absolutePath); ok {
			o.indexes = append(o.indexes, schema.IndexName())
			o.objects = append(o.objects, object)
			continue
		}
		if _, ok := schema.ValueField(absolutePath); ok {
			return nil, NewFieldError(ErrorKindIncompatible, s.IndexNames(), absolutePath,
				"inconsistent field kind: '%s' is a value field in index '%s' but an object field is expected", absolutePath, schema.IndexName())
		}
	}
	if len(o.objects) == 0 {
		return nil, NewFieldError(ErrorKindUnknownField, s.IndexNames(), absolutePath, "unknown object field '%s'", absolutePath)
	}
	for i, object := range o.objects[1:] {
		if object.Structure() != o.objects[0].Structure() {
			return nil, NewFieldError(ErrorKindIncompatible, []string{o.indexes[0], o.indexes[i+1]}, absolutePath,
				"inconsistent object structure: '%s' in index '%s' but '%s' in index '%s'",
				o.objects[0].Structure(), o.indexes[0], object.Structure(), o.indexes[i+1])
		}
	}

	s.objectFields[absolutePath] = o

	return o, nil
}

func (s *IndexScope) Predicates() PredicateBuilders {
	return s.backend.Predicates(s)
}

func (s *IndexScope) Projections() ProjectionBuilders {
	return s.backend.Projections(s)
}

func (s *IndexScope) Sorts() SortBuilders {
	return s.backend.Sorts(s)
}

func (s *IndexScope) NewQuery() QueryBuilder {
	return s.backend.NewQuery(s)
}

func (s *IndexScope) MatchPredicate(absolutePath string, convert ValueConvert) (MatchPredicateBuilder, error) {
	return fieldElement(s, absolutePath, MatchPredicateKey, convert)
}

func (s *IndexScope) RangePredicate(absolutePath string, convert ValueConvert) (RangePredicateBuilder, error) {
	return fieldElement(s, absolutePath, RangePredicateKey, convert)
}

func (s *IndexScope) ExistsPredicate(absolutePath string) (ExistsPredicateBuilder, error) {
	return fieldElement(s, absolutePath, ExistsPredicateKey, ValueConvertYes)
}

func (s *IndexScope) WithinCirclePredicate(absolutePath string, center GeoPoint, radius float64, unit DistanceUnit) (SpatialWithinCirclePredicateBuilder, error) {
	builder, err := fieldElement(s, absolutePath, SpatialWithinCirclePredicateKey, ValueConvertYes)
	if err != nil {
		return nil, err
	}
	if err := builder.Circle(center, radius, unit); err != nil {
		return nil, err
	}

	return builder, nil
}

// FieldProjection creates a projection on the values of a field. expectedType, when not nil,
// must be assignable from the type the selected projection converter returns.
func (s *IndexScope) FieldProjection(absolutePath string, expectedType reflect.Type, convert ValueConvert) (FieldProjectionBuilder, error) {
	field, err := s.Field(absolutePath)
	if err != nil {
		return nil, err
	}
	builder, err := QueryElement(field, FieldProjectionKey, convert)
	if err != nil {
		return nil, err
	}
	if expectedType != nil {
		converter, err := field.ProjectionConverter(convert)
		if err != nil {
			return nil, err
		}
		if !converter.ValueType().AssignableTo(expectedType) {
			return nil, NewFieldError(ErrorKindTypeMismatch, field.IndexNames(), absolutePath,
				"invalid type for returned values: '%s'; the field projects values of type '%s', which is not assignable to it",
				TypeName(expectedType), TypeName(converter.ValueType()))
		}
	}

	return builder, nil
}

func (s *IndexScope) DistanceProjection(absolutePath string, center GeoPoint) (DistanceProjectionBuilder, error) {
	builder, err := fieldElement(s, absolutePath, DistanceProjectionKey, ValueConvertYes)
	if err != nil {
		return nil, err
	}
	if err := builder.Center(center); err != nil {
		return nil, err
	}

	return builder, nil
}

func (s *IndexScope) FieldSort(absolutePath string, convert ValueConvert) (FieldSortBuilder, error) {
	return fieldElement(s, absolutePath, FieldSortKey, convert)
}

func (s *IndexScope) DistanceSort(absolutePath string, center GeoPoint) (DistanceSortBuilder, error) {
	builder, err := fieldElement(s, absolutePath, DistanceSortKey, ValueConvertYes)
	if err != nil {
		return nil, err
	}
	if err := builder.Center(center); err != nil {
		return nil, err
	}

	return builder, nil
}

func (s *IndexScope) TermsAggregation(absolutePath string, convert ValueConvert) (TermsAggregationBuilder, error) {
	return fieldElement(s, absolutePath, TermsAggregationKey, convert)
}

func (s *IndexScope) RangeAggregation(absolutePath string, convert ValueConvert) (RangeAggregationBuilder, error) {
	return fieldElement(s, absolutePath, RangeAggregationKey, convert)
}

func fieldElement[B any](s *IndexScope, absolutePath string, key ElementKey[B], convert ValueConvert) (B, error) {
	field, err := s.Field(absolutePath)
	if err != nil {
		var zero B
		return zero, err
	}

	return QueryElement(field, key, convert)
}
